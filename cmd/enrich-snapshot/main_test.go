package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshot = `<html><body>
<div data-testid="chat-list"><div id="ada" style="height: 72px"><span title="+1 (555) 123-4567">Ada</span></div></div>
<div id="main"><header data-testid="conversation-header"><span>+1 555 123 4567</span></header></div>
</body></html>`

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	assert.NoError(t, run([]string{"--help"}, strings.NewReader(""), &out))
	assert.Empty(t, out.String())
}

func TestRunRejectsArguments(t *testing.T) {
	err := run([]string{"extra"}, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorContains(t, err, "unexpected argument")
}

func TestRunWithoutCredentials(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	err := run(nil, strings.NewReader(snapshot), &bytes.Buffer{})
	assert.ErrorContains(t, err, "enrich")
}

func TestRunEnrichesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "loc", r.URL.Query().Get("locationId"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"contacts":[{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com"}]}`))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("CRM_BASE_URL", srv.URL)
	t.Setenv("LOG_LEVEL", "error")

	t.Run("stdin to stdout", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"--api-key", "key", "--location-id", "loc"}, strings.NewReader(snapshot), &out))
		assert.Contains(t, out.String(), `class="ghl-contact-overlay"`)
		assert.Contains(t, out.String(), `class="ghl-header-overlay"`)
		assert.Contains(t, out.String(), `style="height: 72px; position: relative"`)
	})

	t.Run("files", func(t *testing.T) {
		dir := t.TempDir()
		in := filepath.Join(dir, "page.html")
		outPath := filepath.Join(dir, "annotated.html")
		require.NoError(t, os.WriteFile(in, []byte(snapshot), 0o644))

		require.NoError(t, run([]string{"--in", in, "--out", outPath, "--api-key", "key", "--location-id", "loc"}, nil, nil))
		got, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Contains(t, string(got), "Ada Lovelace")
	})
}
