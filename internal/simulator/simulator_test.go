package simulator_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/smart-parking/internal/metrics"
	"github.com/iliyamo/smart-parking/internal/model"
	"github.com/iliyamo/smart-parking/internal/queue"
	"github.com/iliyamo/smart-parking/internal/simulator"
	"github.com/iliyamo/smart-parking/internal/spot"
)

func TestParseManifest(t *testing.T) {
	spots, err := simulator.ParseManifest([]byte(`
spots:
  - id: "a"
    floor_level: 1
    spot_number: 1
  - id: "b"
    floor_level: 2
    spot_number: 1
    status: occupied
`))
	require.NoError(t, err)
	require.Len(t, spots, 2)
	assert.Equal(t, model.StatusVacant, spots[0].Status)
	assert.Equal(t, model.StatusOccupied, spots[1].Status)

	floor := 2
	only := simulator.OnFloor(spots, &floor)
	require.Len(t, only, 1)
	assert.Equal(t, "b", only[0].ID)
	assert.Len(t, simulator.OnFloor(spots, nil), 2)
}

func TestParseManifestRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":     "spots: []",
		"no id":     "spots:\n  - floor_level: 1\n",
		"duplicate": "spots:\n  - id: a\n  - id: a\n",
		"status":    "spots:\n  - id: a\n    status: parked\n",
		"unknown":   "spots:\n  - id: a\n    colour: red\n",
	} {
		_, err := simulator.ParseManifest([]byte(doc))
		assert.Error(t, err, name)
	}
}

type nopReporter struct {
	mu    sync.Mutex
	calls int
}

func (r *nopReporter) SetSpotStatus(ctx context.Context, spotID string, status model.SpotStatus) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func fleetConfig() simulator.Config {
	return simulator.Config{
		RabbitURL:      "amqp://test",
		PollInterval:   time.Millisecond,
		Ambient:        spot.AmbientConfig{Enabled: false},
		ReconnectTries: 1,
		ReconnectWait:  time.Millisecond,
		ReconnectMax:   time.Millisecond,
	}
}

func TestFleetReportsFailedSpots(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	down := func(ctx context.Context, url string) (queue.Channel, io.Closer, error) {
		return nil, nil, errors.New("connection refused")
	}
	f := simulator.NewFleet(fleetConfig(), &nopReporter{}, simulator.WithDialer(down), simulator.WithMetrics(m))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := f.Run(ctx, []model.Spot{{ID: "1"}, {ID: "2"}})

	require.ErrorIs(t, err, queue.ErrResubscribeExhausted)
	assert.Contains(t, err.Error(), "spot 1")
	assert.Contains(t, err.Error(), "spot 2")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpotsFailed))
	_, running := f.Machine("1")
	assert.False(t, running)
}

func TestFleetStopsCleanlyOnCancel(t *testing.T) {
	blocked := func(ctx context.Context, url string) (queue.Channel, io.Closer, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	rep := &nopReporter{}
	f := simulator.NewFleet(fleetConfig(), rep, simulator.WithDialer(blocked))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, []model.Spot{{ID: "1", Status: model.StatusReserved}}) }()

	require.Eventually(t, func() bool {
		m, ok := f.Machine("1")
		return ok && m.Status() == model.StatusVacant
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fleet did not stop")
	}
}
