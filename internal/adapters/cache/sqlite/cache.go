// Package sqlite es la caché local durable del puesto: la última
// instantánea conocida de cada fecha más el buffer circular de auditoría.
// Un fichero sqlite por estación encaja con el requisito offline sin pedir
// infraestructura.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"ward-daily-census/internal/domain/audit"
	"ward-daily-census/internal/domain/census"
)

const DefaultAuditCap = 200

type Cache struct {
	db       *sql.DB
	auditCap int
}

func Open(path string, auditCap int) (*Cache, error) {
	if auditCap <= 0 {
		auditCap = DefaultAuditCap
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// la caché es por estación: un único escritor
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, auditCap: auditCap}
	if err := c.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) ensureSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			date TEXT PRIMARY KEY,
			doc  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS audit_ring (
			id    TEXT PRIMARY KEY,
			entry TEXT NOT NULL
		);
	`)
	return err
}

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) GetRecord(ctx context.Context, date string) (census.DailyRecord, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT doc FROM records WHERE date = ?`, date).Scan(&raw)
	if err == sql.ErrNoRows {
		return census.DailyRecord{}, false, nil
	}
	if err != nil {
		return census.DailyRecord{}, false, err
	}
	var rec census.DailyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return census.DailyRecord{}, false, err
	}
	return rec, true, nil
}

func (c *Cache) PutRecord(ctx context.Context, rec census.DailyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO records (date, doc) VALUES (?, ?)
		ON CONFLICT (date) DO UPDATE SET doc = excluded.doc
	`, rec.Date, string(raw))
	return err
}

func (c *Cache) DeleteRecord(ctx context.Context, date string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM records WHERE date = ?`, date)
	return err
}

// Append inserta en el anillo y desaloja lo que exceda la capacidad. El id
// es UUIDv7, así que "más viejo" es simplemente "id menor".
func (c *Cache) Append(ctx context.Context, e audit.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO audit_ring (id, entry) VALUES (?, ?)
	`, e.ID, string(raw)); err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		DELETE FROM audit_ring WHERE id NOT IN (
			SELECT id FROM audit_ring ORDER BY id DESC LIMIT ?
		)
	`, c.auditCap)
	return err
}

func (c *Cache) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > c.auditCap {
		limit = c.auditCap
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT entry FROM audit_ring ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Entry, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
