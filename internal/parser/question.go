package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/hudate"
)

const (
	askerSuffix     = "kérdése:"
	questionDateSel = `div[title="A kérdés kiírásának időpontja"]`
)

// ParseQuestion builds the question record from the first page of a thread.
// Title, both breadcrumb categories and the URL's external id are mandatory
// and reported as *crawler.MissingRequiredFieldError. A present but
// unreadable posted date is a *crawler.DateParseError; an absent one is nil.
func (p *Parser) ParseQuestion(doc *goquery.Document, sourceURL string, ref time.Time) (crawler.QuestionRecord, error) {
	externalID, ok := crawler.ExternalID(sourceURL)
	if !ok {
		return crawler.QuestionRecord{}, &crawler.MissingRequiredFieldError{Field: "external_id", Source: sourceURL}
	}
	title, ok := questionTitle(doc)
	if !ok {
		return crawler.QuestionRecord{}, &crawler.MissingRequiredFieldError{Field: "title", Source: sourceURL}
	}
	category, subcategory, ok := breadcrumb(doc)
	if !ok {
		return crawler.QuestionRecord{}, &crawler.MissingRequiredFieldError{Field: "category", Source: sourceURL}
	}

	var postedAt *time.Time
	if raw, found := questionDate(doc); found {
		ts, err := hudate.Normalize(raw, ref)
		if err != nil {
			return crawler.QuestionRecord{}, err
		}
		postedAt = ts
	}

	return crawler.QuestionRecord{
		ExternalID:  externalID,
		URL:         sourceURL,
		Title:       title,
		Category:    category,
		Subcategory: subcategory,
		Body:        questionBody(doc),
		Keywords:    keywords(doc),
		Asker:       asker(doc),
		PostedAt:    postedAt,
	}, nil
}

// questionTitle: mandatory, absent or blank reports false.
func questionTitle(doc *goquery.Document) (string, bool) {
	title := cleanText(doc.Find("div.kerdes_fejlec h1").First().Text())
	return title, title != ""
}

// breadcrumb reads the 2nd and 3rd breadcrumb links. Fewer than three links
// reports false.
func breadcrumb(doc *goquery.Document) (string, string, bool) {
	links := doc.Find("div.morzsamenu").First().Find("a")
	if links.Length() < 3 {
		return "", "", false
	}
	category := cleanText(links.Eq(1).Text())
	subcategory := cleanText(links.Eq(2).Text())
	if category == "" || subcategory == "" {
		return "", "", false
	}
	return category, subcategory, true
}

// keywords never fails; a missing tag box yields an empty slice.
func keywords(doc *goquery.Document) []string {
	out := []string{}
	doc.Find("div.kerdes_kulcsszo a").Each(func(_ int, a *goquery.Selection) {
		kw := cleanText(strings.ReplaceAll(a.Text(), "#", ""))
		if kw != "" {
			out = append(out, kw)
		}
	})
	return out
}

// questionDate returns the raw posted-date text, if the labeled element exists.
func questionDate(doc *goquery.Document) (string, bool) {
	sel := doc.Find(questionDateSel).First()
	if sel.Length() == 0 {
		return "", false
	}
	raw := strings.TrimSpace(sel.Text())
	return raw, raw != ""
}

// asker falls back to the OP sentinel when the header carries no name line.
func asker(doc *goquery.Document) string {
	line := doc.Find("div.kerdes_fejlec").First().Find("div").First()
	if line.Length() == 0 {
		return crawler.OPSentinel
	}
	name := strings.TrimSpace(strings.TrimSuffix(cleanText(line.Text()), askerSuffix))
	if name == "" {
		return crawler.OPSentinel
	}
	return name
}

// questionBody strips nested metadata divs; when nothing is left it joins
// the paragraphs instead. A missing body box yields "".
func questionBody(doc *goquery.Document) string {
	box := doc.Find("div.kerdes_kerdes").First()
	if box.Length() == 0 {
		return ""
	}
	text := strings.TrimSpace(strings.ReplaceAll(textWithoutDivs(box), "\n", " "))
	if text != "" {
		return text
	}
	var parts []string
	box.Find("p").Each(func(_ int, para *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(para.Text()))
	})
	return strings.TrimSpace(strings.Join(parts, " "))
}
