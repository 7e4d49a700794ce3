package auth

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WriteCookieGuide prints how to copy the session cookies out of a browser
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "COPYING YOUR TIKTOK COOKIES")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Open https://www.tiktok.com in a browser and log in.")
	fmt.Fprintln(w, "2. Open developer tools (F12, or Cmd+Option+I on macOS).")
	fmt.Fprintln(w, "3. Application tab (Chrome) or Storage tab (Firefox) > Cookies > https://www.tiktok.com")
	fmt.Fprintln(w, "4. Copy the values of:")
	fmt.Fprintf(w, "     %-10s required unless ttwid is given\n", CookieSessionID)
	fmt.Fprintf(w, "     %-10s device cookie, works for anonymous sessions\n", CookieTTWID)
	fmt.Fprintf(w, "     %-10s optional, refreshed by the site on every page\n", CookieMsToken)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "You can also paste the whole Cookie request header from the Network tab.")
	fmt.Fprintln(w, "Cookies expire; run 'sharetok auth login' again when lookups start failing.")
	fmt.Fprintln(w, rule)
}

// ParseCookieHeader reads a "name=value; name2=value2" Cookie header into a map
func ParseCookieHeader(header string) map[string]string {
	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Cookie:"))
	cookies := make(map[string]string)
	for _, c := range (&http.Request{Header: http.Header{"Cookie": {header}}}).Cookies() {
		if c.Value != "" {
			cookies[c.Name] = c.Value
		}
	}
	return cookies
}
