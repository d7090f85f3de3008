package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
)

var questionLinkPattern = regexp.MustCompile(`.+__\d+-.+`)

// ParseListPage returns the question links of a category list page together
// with the answer count shown next to each, in page order and without
// duplicates.
func (p *Parser) ParseListPage(doc *goquery.Document) []crawler.ListEntry {
	var entries []crawler.ListEntry
	seen := make(map[string]struct{})
	doc.Find(".kerdeslista_szoveg a").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if !questionLinkPattern.MatchString(href) {
			return
		}
		u, ok := p.absolute(href)
		if !ok {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		externalID, ok := crawler.ExternalID(u)
		if !ok {
			return
		}
		seen[u] = struct{}{}
		entries = append(entries, crawler.ListEntry{
			URL:             u,
			ExternalID:      externalID,
			ObservedAnswers: observedAnswers(a),
		})
	})
	return entries
}

// observedAnswers reads the answer count from the link's table row: the
// dedicated answers cell if present, otherwise the first purely numeric cell.
func observedAnswers(link *goquery.Selection) *int {
	row := link.Closest("tr")
	if row.Length() == 0 {
		return nil
	}
	if cell := row.Find("td.kerdeslista_valasz").First(); cell.Length() > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(cell.Text())); err == nil {
			return intPtr(n)
		}
		return nil
	}
	var count *int
	row.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if n, err := strconv.Atoi(strings.TrimSpace(td.Text())); err == nil {
			count = intPtr(n)
			return false
		}
		return true
	})
	return count
}
