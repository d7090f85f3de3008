package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/parser"
)

const base = "https://www.gyakorikerdesek.hu"

func TestAssembleFollowsPagesInOrder(t *testing.T) {
	t.Parallel()

	url := base + "/kat__alkat__42-cim"
	fetcher := &fakeFetcher{pages: map[string]string{
		url:              questionHTML("kerdezo", answerHTML("1", "1/3 bela válasza:")+answerHTML("2", "2/3 A kérdező kommentje:")+pager("kat__alkat__42-cim", 2, 2)),
		url + "__oldal-2": answerHTML("3", "3/3 geza válasza:") + answerHTML("4", "4/3 A kérdező kommentje:"),
	}}
	asm := newAssembler(fetcher, 0)

	doc, err := asm.Assemble(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, "42", doc.Question.ExternalID)
	require.Equal(t, []string{url, url + "__oldal-2"}, fetcher.calls)

	var ids, who []string
	for _, a := range doc.Answers {
		ids = append(ids, a.ExternalID)
		who = append(who, a.Responder)
	}
	require.Equal(t, []string{"1", "2", "3", "4"}, ids)
	require.Equal(t, []string{"bela", "kerdezo", "geza", "kerdezo"}, who)
}

func TestAssembleKeepsSentinelWhenAskerUnknown(t *testing.T) {
	t.Parallel()

	url := base + "/kat__alkat__43-cim"
	fetcher := &fakeFetcher{pages: map[string]string{
		url: questionHTML("", answerHTML("7", "1/1 A kérdező kommentje:")),
	}}

	doc, err := newAssembler(fetcher, 0).Assemble(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, doc.Answers, 1)
	require.Equal(t, crawler.OPSentinel, doc.Answers[0].Responder)
}

func TestAssembleStopsOnPagerLoop(t *testing.T) {
	t.Parallel()

	url := base + "/kat__alkat__44-cim"
	fetcher := &fakeFetcher{pages: map[string]string{
		url:              questionHTML("x", answerHTML("1", "1/2 a válasza:")+pager("kat__alkat__44-cim", 2, 5)),
		url + "__oldal-2": answerHTML("2", "2/2 b válasza:") + `<div class="oldalszamok"><a href="/kat__alkat__44-cim__oldal-2">❯</a></div>`,
	}}

	doc, err := newAssembler(fetcher, 0).Assemble(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, doc.Answers, 2)
	require.Len(t, fetcher.calls, 2)
}

func TestAssembleRespectsPageCeiling(t *testing.T) {
	t.Parallel()

	url := base + "/kat__alkat__45-cim"
	pages := map[string]string{
		url: questionHTML("x", answerHTML("1", "1/9 a válasza:")+`<div class="oldalszamok"><a href="/kat__alkat__45-cim__oldal-2">❯</a></div>`),
	}
	for i := 2; i <= 9; i++ {
		pages[fmt.Sprintf("%s__oldal-%d", url, i)] = answerHTML(fmt.Sprint(i), fmt.Sprintf("%d/9 a válasza:", i)) +
			fmt.Sprintf(`<div class="oldalszamok"><a href="/kat__alkat__45-cim__oldal-%d">❯</a></div>`, i+1)
	}
	fetcher := &fakeFetcher{pages: pages}

	doc, err := newAssembler(fetcher, 3).Assemble(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, doc.Answers, 3)
	require.Len(t, fetcher.calls, 3)
}

func TestAssemblePropagatesErrors(t *testing.T) {
	t.Parallel()

	url := base + "/kat__alkat__46-cim"

	_, err := newAssembler(&fakeFetcher{pages: map[string]string{}}, 0).Assemble(context.Background(), url)
	require.ErrorIs(t, err, crawler.ErrFetch)

	broken := &fakeFetcher{pages: map[string]string{url: `<div class="kerdes_fejlec"></div>`}}
	_, err = newAssembler(broken, 0).Assemble(context.Background(), url)
	require.ErrorIs(t, err, crawler.ErrMissingRequiredField)

	midway := &fakeFetcher{pages: map[string]string{
		url: questionHTML("x", answerHTML("1", "1/2 a válasza:")+pager("kat__alkat__46-cim", 2, 2)),
	}}
	_, err = newAssembler(midway, 0).Assemble(context.Background(), url)
	require.ErrorIs(t, err, crawler.ErrFetch)
	require.Contains(t, err.Error(), "answer page 2")
}

func newAssembler(f crawler.Fetcher, maxPages int) *Assembler {
	return New(f, parser.New(base, zap.NewNop()), fixedClock{}, maxPages, zap.NewNop())
}

func questionHTML(asker, answers string) string {
	askerLine := ""
	if asker != "" {
		askerLine = "<div>" + asker + " kérdése:</div>"
	}
	return `<html><head><title>k</title></head><body>
<div class="morzsamenu"><a href="/">Gyik</a><a href="/kat">Kat</a><a href="/kat__alkat">Alkat</a></div>
<div class="kerdes_fejlec">` + askerLine + `<h1>Cím</h1></div>
<div class="kerdes_kerdes">Kérdés szövege</div>
<div title="A kérdés kiírásának időpontja">ma 10:00</div>` + answers + `</body></html>`
}

func answerHTML(id, header string) string {
	return `<div id="valasz-` + id + `"><div class="valasz_fejlec">` + header + `</div>` +
		`<div id="valasz` + id + `">válasz ` + id + `</div>` +
		`<div class="valasz_statusz"><div>ma 11:00</div></div></div>`
}

// pager renders the answers cell and next link of the thread at path.
func pager(path string, next, last int) string {
	return fmt.Sprintf(`<table><tr><td class="valaszok"><a href="/%s__oldal-%d">%d</a></td></tr></table>`, path, last, last) +
		fmt.Sprintf(`<div class="oldalszamok"><a href="/%s__oldal-%d">❯</a></div>`, path, next)
}

type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (crawler.Page, error) {
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	if !ok {
		return crawler.Page{}, &crawler.FetchError{URL: url, StatusCode: 404, Attempts: 1, Err: errors.New("not found")}
	}
	if !strings.Contains(html, "<html") {
		html = "<html><body>" + html + "</body></html>"
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.Page{}, err
	}
	return crawler.Page{URL: url, FinalURL: url, StatusCode: 200, Doc: doc}, nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
}
