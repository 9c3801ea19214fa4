package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DebugPrintSelector prints either outer HTML or text of matches for a selector.
// This is used by the extract command's "-selector" debug mode.
func DebugPrintSelector(w io.Writer, doc *goquery.Document, selector string, textOnly bool) {
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, strings.Join(nodeLines(s.Get(0)), "\n"))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			out, _ = s.Html()
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
}
