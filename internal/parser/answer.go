package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/hudate"
)

const (
	anonymousName = "anonim"
	linkToken     = "[link]"
	nextPageGlyph = "❯"
)

var (
	responderPattern = regexp.MustCompile(`\d+/\d+(.+)válasza`)
	starIconPattern  = regexp.MustCompile(`vsz(\d)\.png`)
	digitsPattern    = regexp.MustCompile(`^\d+$`)
)

// AnswerPage is the result of extracting one page of a thread.
type AnswerPage struct {
	Answers []crawler.AnswerRecord
	// NextPage is the absolute URL of the following page, or "" on the last page.
	NextPage string
	// Skipped counts answer containers that could not be extracted.
	Skipped int
}

// ParseAnswers extracts every answer container on the page in document
// order. A malformed container is logged and skipped without affecting the
// others.
func (p *Parser) ParseAnswers(doc *goquery.Document, ref time.Time) AnswerPage {
	var page AnswerPage
	doc.Find(`div[id^="valasz-"]`).Each(func(_ int, sel *goquery.Selection) {
		rec, err := p.parseAnswer(sel, ref)
		if err != nil {
			page.Skipped++
			id, _ := sel.Attr("id")
			p.logger.Warn("skipping answer", zap.String("container", id), zap.Error(err))
			return
		}
		page.Answers = append(page.Answers, rec)
	})
	page.NextPage = p.nextPage(doc)
	return page
}

func (p *Parser) parseAnswer(sel *goquery.Selection, ref time.Time) (crawler.AnswerRecord, error) {
	id, ok := answerID(sel)
	if !ok {
		raw, _ := sel.Attr("id")
		return crawler.AnswerRecord{}, fmt.Errorf("container id %q: %w", raw, crawler.ErrParse)
	}
	header := sel.Find(`div[class$="_fejlec"]`).First()
	if header.Length() == 0 {
		return crawler.AnswerRecord{}, &crawler.MissingRequiredFieldError{Field: "answer_header", Source: id}
	}
	raw, ok := answerDate(sel)
	if !ok {
		return crawler.AnswerRecord{}, &crawler.MissingRequiredFieldError{Field: "answer_date", Source: id}
	}
	postedAt, err := hudate.Normalize(raw, ref)
	if err != nil {
		return crawler.AnswerRecord{}, fmt.Errorf("answer %s: %w", id, err)
	}

	rec := crawler.AnswerRecord{
		ExternalID: id,
		Responder:  responder(header),
		PostedAt:   postedAt,
		Body:       answerBody(sel, id),
	}
	if !rec.IsOP() {
		rec.UserPercent = userPercent(header)
		rec.AnswerPercent = answerPercent(sel)
	}
	return rec, nil
}

// answerID is the numeric suffix of the container id.
func answerID(sel *goquery.Selection) (string, bool) {
	raw, ok := sel.Attr("id")
	if !ok {
		return "", false
	}
	_, id, found := strings.Cut(raw, "-")
	if !found || !digitsPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// responder yields the OP sentinel when the header has no "N/M <name> válasza"
// line and "" for anonymous answers.
func responder(header *goquery.Selection) string {
	m := responderPattern.FindStringSubmatch(header.Text())
	if m == nil {
		return crawler.OPSentinel
	}
	name := cleanText(m[1])
	switch name {
	case "":
		return crawler.OPSentinel
	case anonymousName:
		return ""
	default:
		return name
	}
}

// userPercent sums ten points per star digit. No star box or an icon that
// does not match the vsz<d>.png pattern yields nil.
func userPercent(header *goquery.Selection) *int {
	stars := header.Find("span.vsz").First()
	if stars.Length() == 0 {
		return nil
	}
	total := 0
	valid := true
	stars.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		m := starIconPattern.FindStringSubmatch(img.AttrOr("src", ""))
		if m == nil {
			valid = false
			return false
		}
		d, _ := strconv.Atoi(m[1])
		total += 10 * d
		return true
	})
	if !valid {
		return nil
	}
	return intPtr(total)
}

// answerPercent reads the rendered usefulness gauge; answers with too few
// votes have none and yield nil.
func answerPercent(sel *goquery.Selection) *int {
	gauge := sel.Find(`text[x="50"]`).First()
	if gauge.Length() == 0 {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(gauge.Text(), "%", "")))
	if err != nil {
		return nil
	}
	return intPtr(v)
}

// answerDate is the first div of the status footer.
func answerDate(sel *goquery.Selection) (string, bool) {
	first := sel.Find(`div[class$="_statusz"]`).First().Find("div").First()
	if first.Length() == 0 {
		return "", false
	}
	raw := strings.TrimSpace(first.Text())
	return raw, raw != ""
}

// answerBody is the answer text without nested divs or "[link]" tokens.
// A missing body box yields "".
func answerBody(sel *goquery.Selection, id string) string {
	box := sel.Find("div#valasz" + id).First()
	if box.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(textWithoutDivs(box), linkToken, ""))
}

func (p *Parser) nextPage(doc *goquery.Document) string {
	next := doc.Find("div.oldalszamok").First().Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return strings.TrimSpace(a.Text()) == nextPageGlyph
	}).First()
	href, ok := next.Attr("href")
	if !ok {
		return ""
	}
	u, ok := p.absolute(href)
	if !ok {
		return ""
	}
	return u
}
