package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/iliyamo/smart-parking/internal/model"
)

// ReservationRepo stores reservations.  All timestamps are stored in UTC.
// Insertion goes through InsertIfFree, which checks for overlapping windows
// and writes in one transaction so concurrent admissions for the same spot
// cannot both succeed.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = "id, user_id, spot_id, start_time, end_time, final_price, published, created_at"

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
    var res model.Reservation
    err := row.Scan(&res.ID, &res.UserID, &res.SpotID, &res.StartTime, &res.EndTime,
        &res.FinalPrice, &res.Published, &res.CreatedAt)
    if err != nil {
        return nil, err
    }
    res.StartTime = res.StartTime.UTC()
    res.EndTime = res.EndTime.UTC()
    res.CreatedAt = res.CreatedAt.UTC()
    return &res, nil
}

func (r *ReservationRepo) query(ctx context.Context, q string, args ...interface{}) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Reservation
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *res)
    }
    return out, rows.Err()
}

// ListOverlapping returns reservations of spotID overlapping w.
func (r *ReservationRepo) ListOverlapping(ctx context.Context, spotID string, w model.Window) ([]model.Reservation, error) {
    const q = `SELECT ` + reservationColumns + ` FROM reservations
               WHERE spot_id = ? AND start_time < ? AND end_time > ?
               ORDER BY start_time`
    return r.query(ctx, q, spotID, w.End.UTC(), w.Start.UTC())
}

// InsertIfFree inserts res unless it overlaps an existing reservation of the
// same spot, in which case ErrConflict is returned.  The spot row is locked
// for the duration of the transaction, serialising inserts per spot.
func (r *ReservationRepo) InsertIfFree(ctx context.Context, res *model.Reservation) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    defer tx.Rollback() //nolint:errcheck

    var locked string
    err = tx.QueryRowContext(ctx, "SELECT id FROM spots WHERE id = ? FOR UPDATE", res.SpotID).Scan(&locked)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    if err != nil {
        return err
    }

    const ins = `INSERT INTO reservations (` + reservationColumns + `)
                 SELECT ?, ?, ?, ?, ?, ?, ?, ? FROM DUAL
                 WHERE NOT EXISTS (
                     SELECT 1 FROM reservations
                     WHERE spot_id = ? AND start_time < ? AND end_time > ?
                 )`
    start, end := res.StartTime.UTC(), res.EndTime.UTC()
    result, err := tx.ExecContext(ctx, ins,
        res.ID, res.UserID, res.SpotID, start, end, res.FinalPrice, res.Published, res.CreatedAt.UTC(),
        res.SpotID, end, start)
    if err != nil {
        if isDuplicate(err) {
            return ErrConflict
        }
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return tx.Commit()
}

// GetByID returns a reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
    res, err := scanReservation(r.db.QueryRowContext(ctx,
        "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return res, err
}

// List returns reservations matching f ordered by start time.
func (r *ReservationRepo) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
    var where []string
    var args []interface{}
    if f.SpotID != "" {
        where = append(where, "spot_id = ?")
        args = append(args, f.SpotID)
    }
    if f.UserID != "" {
        where = append(where, "user_id = ?")
        args = append(args, f.UserID)
    }
    if !f.StartAfter.IsZero() {
        where = append(where, "start_time >= ?")
        args = append(args, f.StartAfter.UTC())
    }
    q := "SELECT " + reservationColumns + " FROM reservations"
    if len(where) > 0 {
        q += " WHERE " + strings.Join(where, " AND ")
    }
    limit := f.Limit
    if limit <= 0 || limit > 1000 {
        limit = 1000
    }
    q += " ORDER BY start_time LIMIT ?"
    args = append(args, limit)
    return r.query(ctx, q, args...)
}

// Delete removes a reservation.  ErrNotFound is returned when none matched.
func (r *ReservationRepo) Delete(ctx context.Context, id string) error {
    result, err := r.db.ExecContext(ctx, "DELETE FROM reservations WHERE id = ?", id)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}

// SetPublished records whether the reservation-created event reached the
// broker.
func (r *ReservationRepo) SetPublished(ctx context.Context, id string, published bool) error {
    result, err := r.db.ExecContext(ctx, "UPDATE reservations SET published = ? WHERE id = ?", published, id)
    if err != nil {
        return err
    }
    if n, err := result.RowsAffected(); err == nil && n == 0 {
        // Either missing or already in the requested state.
        var one int
        err := r.db.QueryRowContext(ctx, "SELECT 1 FROM reservations WHERE id = ?", id).Scan(&one)
        if errors.Is(err, sql.ErrNoRows) {
            return ErrNotFound
        }
        return err
    }
    return nil
}

// ListUnpublished returns reservations whose event never reached the broker
// and that end after endingAfter, oldest first.
func (r *ReservationRepo) ListUnpublished(ctx context.Context, endingAfter time.Time) ([]model.Reservation, error) {
    const q = `SELECT ` + reservationColumns + ` FROM reservations
               WHERE published = 0 AND end_time > ?
               ORDER BY start_time`
    return r.query(ctx, q, endingAfter.UTC())
}
