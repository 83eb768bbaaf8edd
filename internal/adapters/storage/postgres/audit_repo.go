package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"ward-daily-census/internal/domain/audit"
)

// AuditRepo es el archivo remoto de auditoría (ilimitado). La entrada
// completa viaja como JSONB; las columnas sueltas existen solo para filtrar.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, e audit.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, created_at, record_date, user_id, action, entry)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Timestamp, e.RecordDate, e.UserID, string(e.Action), raw)
	return err
}

func (r *AuditRepo) List(ctx context.Context, recordDate string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var (
		rows *sql.Rows
		err  error
	)
	// el id es UUIDv7: ordenar por id desc es ordenar por creación desc
	if recordDate != "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT entry FROM audit_log
			WHERE record_date = $1
			ORDER BY id DESC LIMIT $2
		`, recordDate, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT entry FROM audit_log
			ORDER BY id DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Entry, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e audit.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
