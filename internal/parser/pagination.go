package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// LastListPage returns the highest page of a category listing, read from the
// last link of the second pager box. It returns nil when the listing has no
// pager and logs a warning when the pager is present but unreadable.
func (p *Parser) LastListPage(doc *goquery.Document) *int {
	pagers := doc.Find("div.oldalszamok")
	if pagers.Length() < 2 {
		return nil
	}
	links := pagers.Eq(1).Find("a")
	if links.Length() == 0 {
		p.logger.Warn("list pager has no links")
		return nil
	}
	href := links.Last().AttrOr("href", "")
	n, ok := pageSuffix(href)
	if !ok {
		p.logger.Warn("unreadable list pager link", zap.String("href", href))
		return nil
	}
	return intPtr(n)
}

// LastAnswerPage returns the number of answer pages of a thread. It reads
// the last link of the answers cell and falls back to the highest numbered
// link of the thread pager, ignoring the next-page arrow. Single page threads yield nil.
func (p *Parser) LastAnswerPage(doc *goquery.Document) *int {
	if cell := doc.Find("td.valaszok").First(); cell.Length() > 0 {
		links := cell.Find("a")
		if links.Length() == 0 {
			return nil
		}
		href := links.Last().AttrOr("href", "")
		n, ok := pageSuffix(href)
		if !ok {
			p.logger.Warn("unreadable answer pager link", zap.String("href", href))
			return nil
		}
		return intPtr(n)
	}

	pager := doc.Find("div.oldalszamok").First()
	if pager.Length() == 0 {
		return nil
	}
	highest := 0
	pager.Find("a").Each(func(_ int, a *goquery.Selection) {
		if strings.TrimSpace(a.Text()) == nextPageGlyph {
			return
		}
		if n, ok := pageSuffix(a.AttrOr("href", "")); ok && n > highest {
			highest = n
		}
	})
	if highest == 0 {
		p.logger.Warn("answer pager has no numbered links")
		return nil
	}
	return intPtr(highest)
}
