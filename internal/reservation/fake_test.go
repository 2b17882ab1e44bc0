package reservation_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/iliyamo/smart-parking/internal/model"
	"github.com/iliyamo/smart-parking/internal/repository"
)

type memUsers map[string]*model.User

func (m memUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type memSpots struct {
	mu    sync.Mutex
	spots map[string]*model.Spot
}

func (m *memSpots) GetByID(ctx context.Context, id string) (*model.Spot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.spots[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memSpots) setStatus(id string, st model.SpotStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spots[id].Status = st
}

// memReservations applies the overlap rule inside InsertIfFree the way the
// MySQL store does in a single statement.
type memReservations struct {
	mu       sync.Mutex
	rows     []model.Reservation
	onInsert func() // runs after a successful insert
}

func (m *memReservations) ListOverlapping(ctx context.Context, spotID string, w model.Window) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.rows {
		if r.SpotID == spotID && r.Window().Overlaps(w) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReservations) InsertIfFree(ctx context.Context, r *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.rows {
		if have.SpotID == r.SpotID && have.Window().Overlaps(r.Window()) {
			return repository.ErrConflict
		}
	}
	m.rows = append(m.rows, *r)
	if m.onInsert != nil {
		m.onInsert()
	}
	return nil
}

func (m *memReservations) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memReservations) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.rows {
		if (f.SpotID == "" || r.SpotID == f.SpotID) && (f.UserID == "" || r.UserID == f.UserID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReservations) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = slices.Delete(m.rows, i, i+1)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memReservations) SetPublished(ctx context.Context, id string, published bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Published = published
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memReservations) ListUnpublished(ctx context.Context, endingAfter time.Time) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.rows {
		if !r.Published && r.EndTime.After(endingAfter) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReservations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type stubPricer struct {
	mu    sync.Mutex
	rate  float64
	err   error
	calls int
}

func (p *stubPricer) Quote(ctx context.Context, start, end time.Time) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return p.rate * end.Sub(start).Minutes(), nil
}

type sent struct {
	spotID string
	window model.Window
}

type stubPublisher struct {
	mu   sync.Mutex
	err  error
	sent []sent
}

func (p *stubPublisher) PublishReservation(ctx context.Context, spotID string, w model.Window) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sent{spotID: spotID, window: w})
	return nil
}

func (p *stubPublisher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// noLock lets every caller through so only the store guards the window.
type noLock struct{}

func (noLock) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type timeoutLock struct{ err error }

func (l timeoutLock) Acquire(context.Context, string) (func(), error) { return nil, l.err }

var errBrokerDown = errors.New("broker down")
