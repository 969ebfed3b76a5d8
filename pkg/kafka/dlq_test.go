package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQProducer_Publish_AddsProvenanceHeaders(t *testing.T) {
	w := &fakeWriter{}
	d := &DLQProducer{writer: w, logger: testLogger()}

	orig := kafka.Message{
		Topic:     "reviewtrust.review.crawled",
		Partition: 2,
		Offset:    41,
		Key:       []byte("prod-1"),
		Value:     []byte(`{"event_id":"e1"}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("review.crawled")}},
	}

	err := d.Publish(context.Background(), orig, errors.New("rating out of range"), "trustscore")
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	got := w.msgs[0]
	assert.Equal(t, "reviewtrust.dlq.reviewtrust.review.crawled", got.Topic)
	assert.Equal(t, orig.Value, got.Value)
	assert.Equal(t, "review.crawled", headerValue(got.Headers, "event_type"))
	assert.Equal(t, "2", headerValue(got.Headers, "dlq.original_partition"))
	assert.Equal(t, "41", headerValue(got.Headers, "dlq.original_offset"))
	assert.Equal(t, "trustscore", headerValue(got.Headers, "dlq.consumer_group"))
	assert.Equal(t, "rating out of range", headerValue(got.Headers, "dlq.error"))
}

func TestDLQProducer_Publish_WriteError(t *testing.T) {
	d := &DLQProducer{writer: &fakeWriter{err: errors.New("broker down")}, logger: testLogger()}
	err := d.Publish(context.Background(), kafka.Message{Topic: "t"}, nil, "g")
	assert.ErrorContains(t, err, "publish to DLQ reviewtrust.dlq.t")
}
