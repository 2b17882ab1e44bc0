package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"

    "github.com/go-sql-driver/mysql"
    "github.com/google/uuid"

    "github.com/iliyamo/smart-parking/internal/model"
)

// SpotRepo provides CRUD operations on the spots table.  floor_level and
// spot_number form a unique pair; status is the only column that changes
// after creation.
type SpotRepo struct {
    db *sql.DB
}

// NewSpotRepo returns a new SpotRepo bound to the given database.
func NewSpotRepo(db *sql.DB) *SpotRepo { return &SpotRepo{db: db} }

const spotColumns = "id, floor_level, spot_number, status"

func scanSpot(row interface{ Scan(...any) error }) (*model.Spot, error) {
    var s model.Spot
    var status string
    if err := row.Scan(&s.ID, &s.FloorLevel, &s.SpotNumber, &status); err != nil {
        return nil, err
    }
    s.Status = model.SpotStatus(status)
    return &s, nil
}

// Create inserts a spot.  An empty ID is filled with a new UUID and an empty
// status defaults to vacant.  A duplicate floor/number pair returns
// ErrConflict.
func (r *SpotRepo) Create(ctx context.Context, s *model.Spot) error {
    if s.ID == "" {
        s.ID = uuid.NewString()
    }
    if s.Status == "" {
        s.Status = model.StatusVacant
    }
    const q = `INSERT INTO spots (id, floor_level, spot_number, status) VALUES (?, ?, ?, ?)`
    if _, err := r.db.ExecContext(ctx, q, s.ID, s.FloorLevel, s.SpotNumber, string(s.Status)); err != nil {
        if isDuplicate(err) {
            return fmt.Errorf("%w: spot %d on floor %d already exists", ErrConflict, s.SpotNumber, s.FloorLevel)
        }
        return err
    }
    return nil
}

// GetByID fetches a spot.  ErrNotFound is returned when it does not exist.
func (r *SpotRepo) GetByID(ctx context.Context, id string) (*model.Spot, error) {
    s, err := scanSpot(r.db.QueryRowContext(ctx, "SELECT "+spotColumns+" FROM spots WHERE id = ?", id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return s, err
}

// List returns spots matching f ordered by floor and number.
func (r *SpotRepo) List(ctx context.Context, f model.SpotFilter) ([]model.Spot, error) {
    var where []string
    var args []interface{}
    if f.FloorLevel != nil {
        where = append(where, "floor_level = ?")
        args = append(args, *f.FloorLevel)
    }
    if f.SpotNumber != nil {
        where = append(where, "spot_number = ?")
        args = append(args, *f.SpotNumber)
    }
    if f.Status != "" {
        where = append(where, "status = ?")
        args = append(args, string(f.Status))
    }
    q := "SELECT " + spotColumns + " FROM spots"
    if len(where) > 0 {
        q += " WHERE " + strings.Join(where, " AND ")
    }
    q += " ORDER BY floor_level, spot_number"

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Spot
    for rows.Next() {
        s, err := scanSpot(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *s)
    }
    return out, rows.Err()
}

// UpdateStatus sets the status of a spot and returns the updated row.
// Setting the current status again is not an error.
func (r *SpotRepo) UpdateStatus(ctx context.Context, id string, status model.SpotStatus) (*model.Spot, error) {
    if _, err := r.db.ExecContext(ctx, "UPDATE spots SET status = ? WHERE id = ?", string(status), id); err != nil {
        return nil, err
    }
    // RowsAffected is 0 for a no-op update, so existence is checked by reading back.
    return r.GetByID(ctx, id)
}

// Delete removes a spot and, through the foreign key, its reservations.
func (r *SpotRepo) Delete(ctx context.Context, id string) error {
    res, err := r.db.ExecContext(ctx, "DELETE FROM spots WHERE id = ?", id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}

// isDuplicate reports whether err is a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == 1062
}
