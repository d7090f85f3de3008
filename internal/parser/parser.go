// Package parser extracts questions, answers, list entries and pager
// positions from gyakorikerdesek.hu HTML.
//
// Every field has its own sub-extractor that either returns a value or
// reports absence; the exported entry points decide which absences are
// fatal for the record being built.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
)

// Parser holds the site base URL used to absolutize links.
type Parser struct {
	baseURL string
	logger  *zap.Logger
}

// New builds a Parser.
func New(baseURL string, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("parser"),
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// textWithoutDivs returns the text of sel with every nested div removed.
func textWithoutDivs(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("div").Remove()
	return clone.Text()
}

func (p *Parser) absolute(href string) (string, bool) {
	u, err := crawler.ResolveURL(p.baseURL+"/", href)
	if err != nil {
		p.logger.Debug("unresolvable link", zap.String("href", href), zap.Error(err))
		return "", false
	}
	return u, true
}

// pageSuffix reads the page number after the last '-' of a pager href.
func pageSuffix(href string) (int, bool) {
	idx := strings.LastIndex(href, "-")
	if idx < 0 || idx == len(href)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(href[idx+1:]))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func intPtr(v int) *int {
	return &v
}
