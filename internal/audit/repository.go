// Package audit stores every cover mutation the bridge issues in the
// audit_logs table, and lists them back for inspection.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tydom2mqtt/internal/bridge"
	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so that created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// AuditLog is a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Cover     cover.Name     `json:"cover"`
	DeviceID  cover.DeviceID `json:"device_id"`
	Source    string         `json:"source"`
	Position  cover.Position `json:"position"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Cover  cover.Name // optional
	Source string     // optional: mqtt or api
	Limit  int        // default 50, max 200
	Offset int
}

// Repository defines the audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) ([]AuditLog, error)
}

// SQLiteRepository keeps audit logs in SQLite. It implements
// bridge.CommandAuditor.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordCommand stores one bridge mutation.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, rec bridge.CommandRecord) error {
	log := &AuditLog{
		Action:   rec.Action,
		Cover:    rec.Cover,
		DeviceID: rec.DeviceID,
		Source:   rec.Source,
		Position: rec.Position,
	}
	if rec.Err != nil {
		log.Error = rec.Err.Error()
	}
	return r.Create(ctx, log)
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, cover, device_id, source, position, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.Cover.String(), log.DeviceID.String(),
		log.Source, int(log.Position), nullableString(log.Error),
		log.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]AuditLog, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Cover != "" {
		conditions = append(conditions, "cover = ?")
		args = append(args, filter.Cover.String())
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, action, cover, device_id, source, position, error, created_at FROM audit_logs %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var (
			log       AuditLog
			name, id  string
			position  int
			errText   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&log.ID, &log.Action, &name, &id, &log.Source, &position, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}

		log.Cover = cover.Name(name)
		log.DeviceID = cover.DeviceID(id)
		log.Position = cover.Position(position)
		log.Error = errText.String

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
		}
		log.CreatedAt = t

		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return logs, nil
}
