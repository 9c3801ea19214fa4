package extract

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// blockTags end a line when flattening text.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tbody": true, "td": true, "tfoot": true, "th": true,
	"thead": true, "tr": true, "ul": true,
}

// inlineBoundary stops the positional walk after an anchor.
var inlineBoundary = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true,
	"p": true, "ul": true, "ol": true, "table": true, "div": true, "br": true,
}

// labelBoundary also ends the text after a label at the next list item,
// definition or table cell.
var labelBoundary = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true,
	"p": true, "ul": true, "ol": true, "table": true, "div": true, "br": true,
	"li": true, "dt": true, "dd": true, "tr": true, "td": true, "th": true,
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true}

func isHeading(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// Collapse squeezes runs of whitespace into one space and trims the ends.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FoldLabel canonicalises label text for comparison: NFKC, case folded,
// whitespace collapsed and leading/trailing punctuation removed.
func FoldLabel(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = Collapse(s)
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
}

// nodeText joins the trimmed text nodes under n with single spaces.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode && skipTags[c.Data] {
			return
		}
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return Collapse(strings.Join(parts, " "))
}

// nodeLines flattens n into lines, breaking at block elements and <br>.
func nodeLines(n *html.Node) []string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			if skipTags[c.Data] {
				return
			}
			if blockTags[c.Data] {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
		if c.Type == html.ElementNode && blockTags[c.Data] {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return splitLines(b.String())
}

// Lines flattens the first node of sel into non-empty, whitespace-collapsed
// lines. Script, style and noscript content is skipped.
func Lines(sel *goquery.Selection) []string {
	if sel.Length() == 0 {
		return nil
	}
	return nodeLines(sel.Get(0))
}

func splitLines(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln = Collapse(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

// inlineAfter concatenates the inline text that follows n up to a boundary
// tag or the next anchor, then strips leading separators and a leading
// "or " connective.
func inlineAfter(n *html.Node, boundary map[string]bool) string {
	var pieces []string
	for c := n.NextSibling; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			pieces = append(pieces, c.Data)
			continue
		}
		if c.Type != html.ElementNode {
			continue
		}
		if c.Data == "a" || boundary[c.Data] {
			break
		}
		pieces = append(pieces, nodeText(c))
	}
	return cleanInline(strings.Join(pieces, " "))
}

// ownTextAfter returns the text of n that follows the first of labels when
// a separator (":", "-", "|") comes next, as in "Location: Dallas, TX".
func ownTextAfter(n *html.Node, labels []string) string {
	txt := nodeText(n)
	low := strings.ToLower(txt)
	if len(low) != len(txt) {
		return ""
	}
	for _, l := range labels {
		l = strings.ToLower(Collapse(l))
		l = strings.TrimRight(l, " :")
		if l == "" {
			continue
		}
		i := strings.Index(low, l)
		if i < 0 {
			continue
		}
		rest := strings.TrimSpace(txt[i+len(l):])
		if rest == "" || !strings.ContainsRune(":-–|", []rune(rest)[0]) {
			continue
		}
		if v := strings.TrimSpace(strings.TrimLeft(rest, " :-–|")); v != "" {
			return v
		}
	}
	return ""
}

func cleanInline(s string) string {
	txt := strings.TrimSpace(strings.TrimLeft(Collapse(s), " -:•·|"))
	if strings.HasPrefix(strings.ToLower(txt), "or ") {
		txt = strings.TrimSpace(strings.TrimLeft(txt[3:], " -:"))
	}
	return txt
}

func isAncestor(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}
