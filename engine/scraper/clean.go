package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CleanMarkup turns an HTML fragment into plain text. Entities are decoded,
// line breaks and paragraph ends become newlines, whitespace runs inside a
// line collapse to one space and blank lines are dropped.
func CleanMarkup(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithNodes(&html.Node{Type: html.TextNode, Data: "\n"})
	})
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		s.AppendNodes(&html.Node{Type: html.TextNode, Data: "\n"})
	})
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
