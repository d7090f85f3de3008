package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
)

func TestPublisherRecordsIngestEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	event := crawler.IngestEvent{RunID: "run-1", ExternalID: "42", QuestionID: 7, Answers: 3, Action: "ingest", IngestedAt: time.Unix(0, 0)}

	id, err := pub.Publish(ctx, "gyik-ingest", event)
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
	id, err = pub.Publish(ctx, "gyik-ingest", event)
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, event, msgs[0].Payload)

	msgs[0].Topic = "changed"
	require.Equal(t, "gyik-ingest", pub.Messages()[0].Topic)
	require.NoError(t, pub.Close())
}
