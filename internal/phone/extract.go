// Package phone pulls a phone number out of loosely structured chat UI
// fragments. It is a heuristic: a display name with ten or more digits in a
// row is taken for a number.
package phone

import (
	"regexp"
	"strings"
	"unicode"

	"whatsapp-crm-lookup/internal/dom"

	"golang.org/x/net/html"
)

var (
	// Substring match, used on title attributes.
	titlePattern = regexp.MustCompile(`\+?[\d\s\p{Zs}\-()]+`)
	// Whole-string match, used on span text once whitespace is gone.
	fullPattern = regexp.MustCompile(`^\+?[\d\-()]{10,}$`)
)

// Normalize keeps digits and a single leading '+'.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FromTitle returns the first phone-shaped run in a title attribute.
// Runs without a digit (a lone space, a hyphen) are skipped.
func FromTitle(title string) (string, bool) {
	for _, m := range titlePattern.FindAllString(title, -1) {
		if n := Normalize(m); hasDigit(n) {
			return n, true
		}
	}
	return "", false
}

// IsPhoneNumber drops all whitespace and requires the rest to be an optional
// '+' followed by at least ten digits, hyphens or parentheses, end to end.
func IsPhoneNumber(text string) bool {
	return fullPattern.MatchString(stripSpace(text))
}

// Extract finds the phone number for a chat-list entry or conversation
// header: first the title of the first titled descendant, then the first
// span whose trimmed text is a phone number.
func Extract(page dom.Page, el *html.Node) (string, bool) {
	if titled, ok := page.Query(el, "[title]"); ok {
		title, _ := page.Attr(titled, "title")
		if n, ok := FromTitle(title); ok {
			return n, true
		}
	}
	return fromSpans(page, el)
}

func fromSpans(page dom.Page, el *html.Node) (string, bool) {
	for _, span := range page.QueryAll(el, "span") {
		text := strings.TrimSpace(page.ReadText(span))
		if !IsPhoneNumber(text) {
			continue
		}
		if n := Normalize(text); hasDigit(n) {
			return n, true
		}
	}
	return "", false
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}
