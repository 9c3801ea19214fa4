package fetch

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"
)

// ResolveHref resolves href against base, returning an absolute URL string.
// If href is invalid, it is returned unchanged.
func ResolveHref(base *url.URL, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// ResolveString is ResolveHref for a string base.
func ResolveString(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return ResolveHref(b, href)
}

// FlatFilename maps a URL to a flat, filesystem-safe file name:
// path segments sanitised and joined with "-", "index" for an empty path,
// "-<sha1(query)[:10]>" when there is a query, and ".html".
func FlatFilename(rawURL string) string {
	path, query := rawURL, ""
	if u, err := url.Parse(rawURL); err == nil {
		path, query = u.EscapedPath(), u.RawQuery
		if p, err := url.PathUnescape(path); err == nil {
			path = p
		}
	}

	path = strings.Trim(path, "/")
	if path == "" {
		path = "index"
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = sanitizeSegment(s)
	}
	stem := strings.Join(segs, "-")
	if query != "" {
		sum := sha1.Sum([]byte(query))
		stem += "-" + hex.EncodeToString(sum[:])[:10]
	}
	return stem + ".html"
}

func sanitizeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "x"
	}
	return out
}
