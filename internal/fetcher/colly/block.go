package collyfetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
)

// Page titles served instead of content when the site throttles a client.
const (
	captchaTitle = "Captcha!"
	banTitle     = "Ideiglenes letiltás!"
)

// DetectBlock reports whether doc is a captcha or temporary-ban page.
func DetectBlock(doc *goquery.Document) (crawler.BlockKind, bool) {
	if doc == nil {
		return "", false
	}
	switch strings.TrimSpace(doc.Find("title").First().Text()) {
	case captchaTitle:
		return crawler.BlockCaptcha, true
	case banTitle:
		return crawler.BlockBan, true
	default:
		return "", false
	}
}
