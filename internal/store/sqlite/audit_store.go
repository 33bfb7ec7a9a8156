package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// AuditStore implements domain.AuditStore on SQLite. detail is stored as
// JSON text.
type AuditStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAuditStore creates an AuditStore on db.
func NewAuditStore(db *sqlx.DB) *AuditStore {
	return &AuditStore{db: db, now: time.Now}
}

type auditRow struct {
	ID        int64          `db:"id"`
	Seller    string         `db:"seller"`
	Event     string         `db:"event"`
	Detail    sql.NullString `db:"detail"`
	CreatedAt string         `db:"created_at"`
}

// Log appends an event for seller.
func (s *AuditStore) Log(ctx context.Context, seller, event string, detail map[string]any) error {
	var detailJSON sql.NullString
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("sqlite: marshal audit detail: %w", err)
		}
		detailJSON = sql.NullString{String: string(b), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(seller, event, detail, created_at) VALUES (?, ?, ?, ?)`,
		seller, event, detailJSON, formatTime(s.now())); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns the audit entries of seller, newest first.
func (s *AuditStore) List(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, seller, event, detail, created_at FROM audit_log WHERE seller = ?`
	args := []any{seller}
	if opts.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*opts.Since))
	}
	if opts.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*opts.Until))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, opts.Offset)
	}

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		createdAt, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse audit time %d: %w", r.ID, err)
		}
		e := domain.AuditEntry{ID: r.ID, Seller: r.Seller, Event: r.Event, CreatedAt: createdAt}
		if r.Detail.Valid {
			if err := json.Unmarshal([]byte(r.Detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail %d: %w", r.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
