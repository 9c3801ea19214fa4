package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// ErrUnparseable is returned for bodies that cannot be treated as HTML.
// It is the only document-level failure of this package.
var ErrUnparseable = errors.New("unparseable document")

const sniffLen = 512

// ParseDocument decodes body using the declared content type (or a meta
// charset / BOM sniff) and parses it into a goquery document.
func ParseDocument(body []byte, contentType string) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnparseable)
	}
	head := body
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, fmt.Errorf("%w: binary content", ErrUnparseable)
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: decode charset: %v", ErrUnparseable, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrUnparseable, err)
	}
	return doc, nil
}

// ParseString parses an already-decoded HTML fragment or page.
func ParseString(s string) (*goquery.Document, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty body", ErrUnparseable)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrUnparseable, err)
	}
	return doc, nil
}
