package hudate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
)

var ref = time.Date(2024, time.May, 1, 18, 0, 0, 0, time.UTC)

func TestNormalizeRelative(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"ma 14:30", time.Date(2024, time.May, 1, 14, 30, 0, 0, time.UTC)},
		{"tegnap 09:00", time.Date(2024, time.April, 30, 9, 0, 0, 0, time.UTC)},
		{"tegnapelőtt 23:59", time.Date(2024, time.April, 29, 23, 59, 0, 0, time.UTC)},
		{"  Ma   7:05 ", time.Date(2024, time.May, 1, 7, 5, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.raw, ref)
		require.NoError(t, err, tc.raw)
		require.NotNil(t, got, tc.raw)
		require.True(t, tc.want.Equal(*got), "%s: got %v want %v", tc.raw, got, tc.want)
	}
}

func TestNormalizeAbsolute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2023. márc. 02. 11:15", time.Date(2023, time.March, 2, 11, 15, 0, 0, time.UTC)},
		{"2019. jan. 31. 00:01", time.Date(2019, time.January, 31, 0, 1, 0, 0, time.UTC)},
		{"2020. febr. 29. 12:00", time.Date(2020, time.February, 29, 12, 0, 0, 0, time.UTC)},
		{"2021. szept. 9. 8:45", time.Date(2021, time.September, 9, 8, 45, 0, 0, time.UTC)},
		{"2022. okt. 10. 10:10", time.Date(2022, time.October, 10, 10, 10, 0, 0, time.UTC)},
		{"2018. máj. 5. 16:20", time.Date(2018, time.May, 5, 16, 20, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.raw, ref)
		require.NoError(t, err, tc.raw)
		require.True(t, tc.want.Equal(*got), "%s: got %v want %v", tc.raw, got, tc.want)
	}
}

func TestNormalizeMissingYearUsesReferenceYear(t *testing.T) {
	t.Parallel()

	got, err := Normalize("ápr. 12. 13:37", ref)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.April, 12, 13, 37, 0, 0, time.UTC), *got)
}

func TestNormalizeBlankIsNil(t *testing.T) {
	t.Parallel()

	got, err := Normalize("", ref)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = Normalize("   \n", ref)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"holnap 10:00",
		"2023. foo. 02. 11:15",
		"2023. márc. 32. 11:15",
		"2023. márc. 02. 25:15",
		"2023-03-02 11:15",
		"ma",
	} {
		got, err := Normalize(raw, ref)
		require.Nil(t, got, raw)
		require.ErrorIs(t, err, crawler.ErrDateParse, raw)

		var dpe *crawler.DateParseError
		require.ErrorAs(t, err, &dpe, raw)
		require.Equal(t, raw, dpe.Raw)
	}
}

func TestNormalizeKeepsReferenceLocation(t *testing.T) {
	t.Parallel()

	budapest := time.FixedZone("CET", 3600)
	got, err := Normalize("tegnap 00:30", time.Date(2024, time.January, 1, 0, 10, 0, 0, budapest))
	require.NoError(t, err)
	require.Equal(t, budapest, got.Location())
	require.Equal(t, time.Date(2023, time.December, 31, 0, 30, 0, 0, budapest), *got)
}
