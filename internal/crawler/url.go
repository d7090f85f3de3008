package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var externalIDPattern = regexp.MustCompile(`__(\d+)-`)

// ExternalID extracts the site's numeric question id from a question URL of
// the form .../category__subcategory__12345-title-slug.
func ExternalID(rawURL string) (string, bool) {
	m := externalIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ResolveURL turns a site-relative href into an absolute URL against base.
// It drops fragments so the same page is never fetched twice under two names.
func ResolveURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	u := b.ResolveReference(ref)
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// ListPageURL builds the URL of page n of a category listing.
func ListPageURL(base, path string, page int) string {
	return fmt.Sprintf("%s/%s__oldal-%d", strings.TrimRight(base, "/"), strings.Trim(path, "/"), page)
}
