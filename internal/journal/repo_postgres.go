package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"auditchain/pkg/utils"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepo stores attempts in the anchor_attempts table.
// It expects the pgx stdlib driver to be registered by the caller.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// EnsureSchema creates the journal table if it does not exist.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return errors.New("journal: db not configured")
	}
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

func (r *PostgresRepo) Create(ctx context.Context, a Attempt) error {
	if err := validate(a); err != nil {
		return err
	}
	if r.db == nil {
		return errors.New("journal: db not configured")
	}
	const q = `
INSERT INTO anchor_attempts (id, invoice_id, file_hash, content_address, state, error_kind, record, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID,
		a.InvoiceID,
		a.FileHash,
		a.ContentAddress,
		string(a.State),
		a.ErrorKind,
		[]byte(a.Record),
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Attempt, error) {
	if r.db == nil {
		return Attempt{}, errors.New("journal: db not configured")
	}
	const q = `
SELECT id, invoice_id, file_hash, content_address, state, error_kind, record, created_at, updated_at
FROM anchor_attempts
WHERE id = $1
`
	return scanAttempt(r.db.QueryRowContext(ctx, q, id))
}

// Claim moves an attempt to submitting in a single conditional UPDATE, so
// only one of several concurrent callers gets the row back.
func (r *PostgresRepo) Claim(ctx context.Context, id string, at, staleBefore time.Time) (Attempt, error) {
	if r.db == nil {
		return Attempt{}, errors.New("journal: db not configured")
	}
	const q = `
UPDATE anchor_attempts
SET state = 'submitting', error_kind = '', updated_at = $2
WHERE id = $1
  AND (state IN ('stored', 'submit_failed') OR (state = 'submitting' AND updated_at < $3))
RETURNING id, invoice_id, file_hash, content_address, state, error_kind, record, created_at, updated_at
`
	a, err := scanAttempt(r.db.QueryRowContext(ctx, q, id, at, staleBefore))
	if !errors.Is(err, ErrNotFound) {
		return a, err
	}

	// Nothing updated: report why.
	const sel = `SELECT state, updated_at FROM anchor_attempts WHERE id = $1`
	var state string
	var updated time.Time
	if err := r.db.QueryRowContext(ctx, sel, id).Scan(&state, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	if err := claimError(State(state), updated, staleBefore); err != nil {
		return Attempt{}, err
	}
	// Claimable now but lost the UPDATE race to a state change in between.
	return Attempt{}, ErrInFlight
}

// MarkState ends a claim. The row lock serializes it against a concurrent Claim.
func (r *PostgresRepo) MarkState(ctx context.Context, id string, state State, errorKind string, at time.Time) error {
	if r.db == nil {
		return errors.New("journal: db not configured")
	}
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `SELECT state FROM anchor_attempts WHERE id = $1 FOR UPDATE`
		var current string
		if err := tx.QueryRowContext(ctx, sel, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !canTransition(State(current), state) {
			return ErrStateTransition
		}
		const upd = `UPDATE anchor_attempts SET state = $2, error_kind = $3, updated_at = $4 WHERE id = $1`
		_, err := tx.ExecContext(ctx, upd, id, string(state), errorKind, at)
		return err
	})
}

func (r *PostgresRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]Attempt, error) {
	if r.db == nil {
		return nil, errors.New("journal: db not configured")
	}
	const q = `
SELECT id, invoice_id, file_hash, content_address, state, error_kind, record, created_at, updated_at
FROM anchor_attempts
WHERE invoice_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var state string
	var record []byte
	if err := row.Scan(
		&a.ID,
		&a.InvoiceID,
		&a.FileHash,
		&a.ContentAddress,
		&state,
		&a.ErrorKind,
		&record,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	a.State = State(state)
	a.Record = record
	return a, nil
}
