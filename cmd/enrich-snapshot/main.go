// Command enrich-snapshot runs one enrichment pass over a saved page and
// writes the page back out with contact overlays inserted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"whatsapp-crm-lookup/internal/config"
	"whatsapp-crm-lookup/internal/crm"
	"whatsapp-crm-lookup/internal/dom"
	"whatsapp-crm-lookup/internal/engine"
	"whatsapp-crm-lookup/internal/logging"
	"whatsapp-crm-lookup/internal/settings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	var inPath, outPath, apiKey, locationID string
	flagSet := pflag.NewFlagSet("enrich-snapshot", pflag.ContinueOnError)
	flagSet.StringVar(&inPath, "in", "-", "saved page html to read (- for stdin)")
	flagSet.StringVar(&outPath, "out", "-", "where to write the enriched page (- for stdout)")
	flagSet.StringVar(&apiKey, "api-key", cfg.CRMAPIKey, "CRM api key (default from CRM_API_KEY)")
	flagSet.StringVar(&locationID, "location-id", cfg.CRMLocationID, "CRM location id (default from CRM_LOCATION_ID)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, closeIn, err := openInput(inPath, stdin)
	if err != nil {
		return err
	}
	doc, err := dom.NewDocument(in)
	closeIn()
	if err != nil {
		return fmt.Errorf("parse %s: %w", inPath, err)
	}

	finder := engine.CRMFinder(crm.Options{
		BaseURL:      cfg.CRMBaseURL,
		APIVersion:   cfg.CRMAPIVersion,
		RateLimitRPS: cfg.LookupRPS,
	}, logger)
	creds := settings.Static{APIKey: apiKey, LocationID: locationID}
	eng := engine.New(doc, creds, finder, nil, engine.DefaultOptions(), logger)

	status, err := eng.ScanOnce(ctx)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	logger.Info("snapshot enriched",
		zap.Int("contacts", status.CachedContacts),
		zap.Int("overlays", status.TrackedOverlays))

	return writeOutput(outPath, stdout, doc)
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func writeOutput(path string, stdout io.Writer, doc *dom.Document) error {
	if path == "-" {
		return doc.Render(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
