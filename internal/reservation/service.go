// Package reservation implements reservation admission: validation, conflict
// detection, pricing, persistence and publication of the reservation-created
// event, plus cancellation, queries and republishing of events that never
// reached the broker.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/smart-parking/internal/lock"
	"github.com/iliyamo/smart-parking/internal/logging"
	"github.com/iliyamo/smart-parking/internal/metrics"
	"github.com/iliyamo/smart-parking/internal/model"
	"github.com/iliyamo/smart-parking/internal/repository"
)

// ImminentWindow is how close to its start a reservation counts as imminent
// for the busy check.  It matches the simulator's default lead time.
const ImminentWindow = 50 * time.Second

// publishTimeout bounds the publish and flag update that follow a commit.
const publishTimeout = 10 * time.Second

// UserStore looks up users.  Missing users yield repository.ErrNotFound.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// SpotStore looks up spots.  Missing spots yield repository.ErrNotFound.
type SpotStore interface {
	GetByID(ctx context.Context, id string) (*model.Spot, error)
}

// ReservationStore persists reservations.
type ReservationStore interface {
	// ListOverlapping returns the reservations of spotID whose window
	// overlaps w.
	ListOverlapping(ctx context.Context, spotID string, w model.Window) ([]model.Reservation, error)
	// InsertIfFree stores r unless an overlapping reservation for the same
	// spot exists, in which case it returns repository.ErrConflict.
	InsertIfFree(ctx context.Context, r *model.Reservation) error
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
	Delete(ctx context.Context, id string) error
	SetPublished(ctx context.Context, id string, published bool) error
	ListUnpublished(ctx context.Context, endingAfter time.Time) ([]model.Reservation, error)
}

// Pricer quotes the total price of a window.
type Pricer interface {
	Quote(ctx context.Context, start, end time.Time) (float64, error)
}

// Publisher delivers the reservation-created event to a spot.
type Publisher interface {
	PublishReservation(ctx context.Context, spotID string, w model.Window) error
}

// Request is a reservation candidate as submitted by a client.
type Request struct {
	UserID    string    `json:"user_id"`
	SpotID    string    `json:"spot_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Window returns the requested window.
func (r Request) Window() model.Window {
	return model.Window{Start: r.StartTime, End: r.EndTime}
}

// ReconcileResult summarises a Reconcile run.
type ReconcileResult struct {
	Pending   int `json:"pending"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// Service runs admissions.
type Service struct {
	users        UserStore
	spots        SpotStore
	reservations ReservationStore
	pricer       Pricer
	publisher    Publisher
	locker       lock.Locker
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option customises the service.
type Option func(*Service)

// WithClock sets the function used as "now".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocker replaces the in-process spot lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logging.Component(l, "admission") }
}

// WithMetrics records admission and reconcile outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the admission pipeline.
func NewService(users UserStore, spots SpotStore, reservations ReservationStore, pricer Pricer, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		users:        users,
		spots:        spots,
		reservations: reservations,
		pricer:       pricer,
		publisher:    publisher,
		locker:       lock.NewLocal(),
		now:          time.Now,
		logger:       logging.Component(nil, "admission"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit validates, prices, persists and publishes a reservation.  Nothing is
// written unless every check passes.  A publish failure does not fail the
// call: the reservation is returned with Published == false and is picked up
// by Reconcile.
func (s *Service) Admit(ctx context.Context, req Request) (*model.Reservation, error) {
	res, err := s.admit(ctx, req)
	s.metrics.Admission(admissionResult(err))
	if err != nil {
		s.logger.Info("reservation rejected",
			slog.String("spot", req.SpotID), slog.String("user", req.UserID), slog.Any("error", err))
		return nil, err
	}
	return res, nil
}

func (s *Service) admit(ctx context.Context, req Request) (*model.Reservation, error) {
	w := req.Window()
	if req.UserID == "" || req.SpotID == "" {
		return nil, fmt.Errorf("%w: user_id and spot_id are required", ErrValidation)
	}
	if w.End.Before(w.Start.Add(model.MinReservationDuration)) {
		return nil, fmt.Errorf("%w: reservation must last at least %s", ErrValidation, model.MinReservationDuration)
	}
	now := s.now()
	if !w.Start.After(now) {
		return nil, fmt.Errorf("%w: start_time must be in the future", ErrValidation)
	}

	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return nil, lookupErr("user", req.UserID, err)
	}
	spot, err := s.spots.GetByID(ctx, req.SpotID)
	if err != nil {
		return nil, lookupErr("spot", req.SpotID, err)
	}
	if w.Start.Sub(now) <= ImminentWindow && spot.Status.InUse() {
		return nil, fmt.Errorf("%w: spot %s is %s and the reservation starts within %s", ErrBusy, spot.ID, spot.Status, ImminentWindow)
	}

	release, err := s.locker.Acquire(ctx, lock.SpotKey(spot.ID))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return nil, fmt.Errorf("admission: lock spot %s: %w", spot.ID, err)
	}
	res, err := s.persist(ctx, spot.ID, req.UserID, w)
	release()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, res)
	return res, nil
}

// persist runs the conflict check, pricing and the conditional insert while
// the caller holds the spot lock.
func (s *Service) persist(ctx context.Context, spotID, userID string, w model.Window) (*model.Reservation, error) {
	existing, err := s.reservations.ListOverlapping(ctx, spotID, w)
	if err != nil {
		return nil, fmt.Errorf("admission: load reservations: %w", err)
	}
	if c, ok := FirstConflict(w, existing); ok {
		return nil, fmt.Errorf("%w: overlaps reservation %s [%s, %s)", ErrConflict, c.ID,
			c.StartTime.UTC().Format(time.RFC3339), c.EndTime.UTC().Format(time.RFC3339))
	}

	price, err := s.pricer.Quote(ctx, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}

	res := &model.Reservation{
		ID:         uuid.NewString(),
		UserID:     userID,
		SpotID:     spotID,
		StartTime:  w.Start.UTC(),
		EndTime:    w.End.UTC(),
		FinalPrice: price,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.reservations.InsertIfFree(ctx, res); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: window was taken concurrently", ErrConflict)
		case errors.Is(err, repository.ErrNotFound):
			return nil, lookupErr("spot", spotID, err)
		}
		return nil, fmt.Errorf("admission: insert: %w", err)
	}
	return res, nil
}

// publish sends the reservation-created event and records the outcome on the
// reservation.  Failures are logged and left for Reconcile.
func (s *Service) publish(ctx context.Context, res *model.Reservation) {
	// The row is committed, so the caller going away must not cut the
	// publish short or leave the flag out of step with the broker.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	log := s.logger.With(slog.String("reservation", res.ID), slog.String("spot", res.SpotID))
	if err := s.publisher.PublishReservation(ctx, res.SpotID, res.Window()); err != nil {
		log.Error("reservation stored but not published; pending reconcile", slog.Any("error", err))
		return
	}
	if err := s.reservations.SetPublished(ctx, res.ID, true); err != nil {
		log.Warn("published but could not record it", slog.Any("error", err))
		return
	}
	res.Published = true
}

// Get returns a reservation by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr("reservation", id, err)
	}
	return res, nil
}

// List returns reservations matching f.
func (s *Service) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	return s.reservations.List(ctx, f)
}

// Cancel deletes a reservation.  A spot that already received the event keeps
// the window in its backlog; cancellation only frees the slot for new
// admissions.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.reservations.Delete(ctx, id); err != nil {
		return lookupErr("reservation", id, err)
	}
	s.logger.Info("reservation cancelled", slog.String("reservation", id))
	return nil
}

// Reconcile republishes every reservation that has not ended and whose event
// never reached the broker.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	pending, err := s.reservations.ListUnpublished(ctx, s.now())
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: list unpublished: %w", err)
	}
	out := ReconcileResult{Pending: len(pending)}
	for i := range pending {
		res := &pending[i]
		if err := ctx.Err(); err != nil {
			return out, err
		}
		s.publish(ctx, res)
		if res.Published {
			out.Published++
			s.metrics.Reconcile("ok")
		} else {
			out.Failed++
			s.metrics.Reconcile("failed")
		}
	}
	if out.Pending > 0 {
		s.logger.Info("reconcile finished",
			slog.Int("pending", out.Pending), slog.Int("published", out.Published), slog.Int("failed", out.Failed))
	}
	return out, nil
}

func lookupErr(kind, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func admissionResult(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPricingUnavailable):
		return "pricing"
	case errors.Is(err, ErrLockTimeout):
		return "locked"
	default:
		return "error"
	}
}
