package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/smart-parking/internal/queue"
)

func TestDecodeEnvelopeAcceptsOffsets(t *testing.T) {
	w, err := queue.DecodeEnvelope([]byte(`{"start_time":"2030-03-08T12:30:00-04:00","end_time":"2030-03-08T13:00:00-04:00"}`))
	require.NoError(t, err)
	require.Equal(t, time.Date(2030, 3, 8, 16, 30, 0, 0, time.UTC), w.Start)
	require.Equal(t, 30*time.Minute, w.Duration())
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"start_time":"yesterday","end_time":"2030-03-08T13:00:00Z"}`,
		`{"start_time":"2030-03-08T13:00:00Z","end_time":"2030-03-08T13:00:00Z"}`,
	} {
		_, err := queue.DecodeEnvelope([]byte(body))
		require.ErrorIs(t, err, queue.ErrMalformedEnvelope, body)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	w := testWindow()
	got, err := queue.NewEnvelope(w).Window()
	require.NoError(t, err)
	require.Equal(t, w, got)
}
