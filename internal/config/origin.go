package config

import "strings"

// OriginAllowed reports whether a browser Origin header may use the API.
// Requests without an Origin header come from non-browser clients and pass.
// "*" in allowed admits every origin.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}
