package entry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taarskog/somweb-bridge/internal/infrastructure/database"
)

// Repository persists configuration entries in SQLite.
//
// UDI uniqueness is enforced both here and by the schema's unique
// index; the pre-checks exist to return ErrEntryExists instead of a
// driver error.
type Repository struct {
	db *database.DB
}

// NewRepository creates an entry repository backed by the given database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a new entry. The UDI must not belong to any existing
// entry; the caller passes the device-confirmed UDI from Validate, not
// user input.
func (r *Repository) Create(ctx context.Context, udi, title string, in Input) (*Entry, error) {
	taken, err := r.udiTaken(ctx, udi, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: udi %s", ErrEntryExists, udi)
	}

	now := time.Now().UTC()
	e := &Entry{
		ID:        uuid.New().String(),
		UDI:       udi,
		Title:     title,
		Mode:      in.Mode,
		URL:       in.URL,
		Username:  in.Username,
		Password:  in.Password,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Cloud entries address the device by UDI; a stale URL would be
	// misleading on a later switch back to local mode.
	if e.Mode == ModeCloud {
		e.URL = ""
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entries (id, udi, title, mode, url, username, password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UDI, e.Title, string(e.Mode), e.URL, e.Username, e.Password,
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting entry: %w", err)
	}
	return e, nil
}

// Get returns the entry with the given ID.
func (r *Repository) Get(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, udi, title, mode, url, username, password, created_at, updated_at
		FROM entries WHERE id = ?`, id)
	return scanEntry(row)
}

// GetByUDI returns the entry configured for the given device.
func (r *Repository) GetByUDI(ctx context.Context, udi string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, udi, title, mode, url, username, password, created_at, updated_at
		FROM entries WHERE udi = ?`, udi)
	return scanEntry(row)
}

// List returns all entries ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, udi, title, mode, url, username, password, created_at, updated_at
		FROM entries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Update replaces an entry's configuration after a successful
// revalidation. The new UDI may equal the entry's own but must not
// collide with another entry's.
func (r *Repository) Update(ctx context.Context, id, udi, title string, in Input) (*Entry, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	taken, err := r.udiTaken(ctx, udi, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: udi %s", ErrEntryExists, udi)
	}

	current.UDI = udi
	current.Title = title
	current.Mode = in.Mode
	current.URL = in.URL
	current.Username = in.Username
	current.Password = in.Password
	current.UpdatedAt = time.Now().UTC()
	if current.Mode == ModeCloud {
		current.URL = ""
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE entries SET udi = ?, title = ?, mode = ?, url = ?, username = ?, password = ?, updated_at = ?
		WHERE id = ?`,
		current.UDI, current.Title, string(current.Mode), current.URL,
		current.Username, current.Password,
		current.UpdatedAt.Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating entry: %w", err)
	}
	return current, nil
}

// Delete removes an entry.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

// udiTaken reports whether another entry (excluding excludeID) already
// owns the UDI.
func (r *Repository) udiTaken(ctx context.Context, udi, excludeID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE udi = ? AND id != ?`,
		udi, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking udi uniqueness: %w", err)
	}
	return count > 0, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var mode, createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.UDI, &e.Title, &mode, &e.URL,
		&e.Username, &e.Password, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	e.Mode = Mode(mode)
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &e, nil
}
