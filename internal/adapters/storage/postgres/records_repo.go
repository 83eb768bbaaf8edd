package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ward-daily-census/internal/domain/census"
)

// RecordsRepo es el almacén de documentos del colaborador remoto: un
// documento JSONB por fecha. La escritura parcial es un
// read-modify-write transaccional que ejecuta census.MergeDoc, es decir,
// exactamente la misma interpretación del parche que el merge local.
type RecordsRepo struct {
	db *sql.DB
}

func NewRecordsRepo(db *sql.DB) *RecordsRepo {
	return &RecordsRepo{db: db}
}

func (r *RecordsRepo) Read(ctx context.Context, date string) (*census.DailyRecord, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT doc FROM daily_records WHERE date = $1
	`, date).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec census.DailyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("corrupt document for %s: %w", date, err)
	}
	return &rec, nil
}

func (r *RecordsRepo) ReadRange(ctx context.Context, from, to string) ([]census.DailyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc FROM daily_records
		WHERE date >= $1 AND date <= $2
		ORDER BY date
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]census.DailyRecord, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec census.DailyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WriteFull reemplaza el documento completo. Devuelve el registro tal y
// como quedó guardado (con el lastUpdated que fija el almacén).
func (r *RecordsRepo) WriteFull(ctx context.Context, date string, rec census.DailyRecord) (census.DailyRecord, error) {
	rec.Date = date
	rec.LastUpdated = time.Now().UTC()

	raw, err := json.Marshal(rec)
	if err != nil {
		return census.DailyRecord{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_records (date, doc, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (date) DO UPDATE
		SET doc = EXCLUDED.doc, last_updated = EXCLUDED.last_updated
	`, date, raw, rec.LastUpdated)
	if err != nil {
		return census.DailyRecord{}, err
	}
	return rec, nil
}

// WritePartial aplica el parche de rutas dentro de una transacción con el
// documento bloqueado. Devuelve el documento resultante para su difusión.
func (r *RecordsRepo) WritePartial(ctx context.Context, date string, patch census.PatchMap) (census.DailyRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return census.DailyRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	doc := map[string]any{"date": date}
	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT doc FROM daily_records WHERE date = $1 FOR UPDATE
	`, date).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// primer parche del día: nace el documento
	case err != nil:
		return census.DailyRecord{}, err
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return census.DailyRecord{}, fmt.Errorf("corrupt document for %s: %w", date, err)
		}
	}

	if err := census.MergeDoc(doc, patch); err != nil {
		return census.DailyRecord{}, err
	}

	now := time.Now().UTC()
	doc["lastUpdated"] = now.Format(time.RFC3339Nano)

	merged, err := json.Marshal(doc)
	if err != nil {
		return census.DailyRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_records (date, doc, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (date) DO UPDATE
		SET doc = EXCLUDED.doc, last_updated = EXCLUDED.last_updated
	`, date, merged, now); err != nil {
		return census.DailyRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return census.DailyRecord{}, err
	}

	return census.FromDoc(doc)
}

func (r *RecordsRepo) Delete(ctx context.Context, date string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM daily_records WHERE date = $1`, date)
	return err
}
