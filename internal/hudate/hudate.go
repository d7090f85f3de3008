// Package hudate normalizes the Hungarian relative and absolute timestamps
// rendered by gyakorikerdesek.hu into time.Time values.
package hudate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
)

// months maps the site's month abbreviations (and full names) to time.Month.
var months = map[string]time.Month{
	"jan":        time.January,
	"január":     time.January,
	"feb":        time.February,
	"febr":       time.February,
	"február":    time.February,
	"márc":       time.March,
	"március":    time.March,
	"ápr":        time.April,
	"április":    time.April,
	"máj":        time.May,
	"május":      time.May,
	"jún":        time.June,
	"június":     time.June,
	"júl":        time.July,
	"július":     time.July,
	"aug":        time.August,
	"augusztus":  time.August,
	"szep":       time.September,
	"szept":      time.September,
	"szeptember": time.September,
	"okt":        time.October,
	"október":    time.October,
	"nov":        time.November,
	"november":   time.November,
	"dec":        time.December,
	"december":   time.December,
}

// Day offsets for the relative keywords, relative to the reference date.
var relativeDays = map[string]int{
	"ma":          0,
	"tegnap":      -1,
	"tegnapelőtt": -2,
}

var (
	relativePattern = regexp.MustCompile(`^(ma|tegnap|tegnapelőtt),?\s+(\d{1,2}):(\d{2})$`)
	absolutePattern = regexp.MustCompile(`^(\d{4})\.\s*(\p{L}+)\.?\s*(\d{1,2})\.\s+(\d{1,2}):(\d{2})$`)
	noYearPattern   = regexp.MustCompile(`^(\p{L}+)\.?\s*(\d{1,2})\.\s+(\d{1,2}):(\d{2})$`)
	spaces          = regexp.MustCompile(`\s+`)
)

// Normalize converts a raw site date into a timestamp in ref's location.
//
// A blank input yields nil without error. Relative keywords resolve against
// ref's calendar day, and dates rendered without a year take ref's year.
// Anything else that does not match "<year>. <month>. <day>. <hour>:<minute>"
// returns a *crawler.DateParseError.
func Normalize(raw string, ref time.Time) (*time.Time, error) {
	s := spaces.ReplaceAllString(strings.TrimSpace(raw), " ")
	if s == "" {
		return nil, nil
	}
	lower := strings.ToLower(s)
	loc := ref.Location()

	if m := relativePattern.FindStringSubmatch(lower); m != nil {
		day := ref.AddDate(0, 0, relativeDays[m[1]])
		return build(raw, day.Year(), day.Month(), day.Day(), m[2], m[3], loc)
	}
	if m := absolutePattern.FindStringSubmatch(lower); m != nil {
		year, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, &crawler.DateParseError{Raw: raw}
		}
		month, ok := months[m[2]]
		if !ok {
			return nil, &crawler.DateParseError{Raw: raw}
		}
		day, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, &crawler.DateParseError{Raw: raw}
		}
		return build(raw, year, month, day, m[4], m[5], loc)
	}
	if m := noYearPattern.FindStringSubmatch(lower); m != nil {
		month, ok := months[m[1]]
		if !ok {
			return nil, &crawler.DateParseError{Raw: raw}
		}
		day, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, &crawler.DateParseError{Raw: raw}
		}
		return build(raw, ref.Year(), month, day, m[3], m[4], loc)
	}
	return nil, &crawler.DateParseError{Raw: raw}
}

func build(raw string, year int, month time.Month, day int, hh, mm string, loc *time.Location) (*time.Time, error) {
	hour, err := strconv.Atoi(hh)
	if err != nil || hour > 23 {
		return nil, &crawler.DateParseError{Raw: raw}
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute > 59 {
		return nil, &crawler.DateParseError{Raw: raw}
	}
	if day < 1 || day > daysIn(year, month) {
		return nil, &crawler.DateParseError{Raw: raw}
	}
	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	return &t, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
