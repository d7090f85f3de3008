package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, fetchesTotal)
	require.NotNil(t, blocksTotal)
	require.NotNil(t, questionsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchesTotal.WithLabelValues(FetchOK))
	bytesBefore := testutil.ToFloat64(fetchBytesTotal)

	ObserveFetch(FetchOK, 512, 20*time.Millisecond)

	require.InDelta(t, before+1, testutil.ToFloat64(fetchesTotal.WithLabelValues(FetchOK)), 0.001)
	require.InDelta(t, bytesBefore+512, testutil.ToFloat64(fetchBytesTotal), 0.001)
}

func TestObserveCrawlCounters(t *testing.T) {
	ObserveBlock("captcha")
	ObserveQuestion("ingest", "stored")
	ObserveAnswers(3, 1)
	ObserveListPage("ok")
	ObserveRetry()
	ObserveArchive("ok")

	require.GreaterOrEqual(t, testutil.ToFloat64(blocksTotal.WithLabelValues("captcha")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(questionsTotal.WithLabelValues("ingest", "stored")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(answersStoredTotal), 3.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(answersSkippedTotal), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(listPagesTotal.WithLabelValues("ok")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(fetchRetriesTotal), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(archiveWritesTotal.WithLabelValues("ok")), 1.0)
}
