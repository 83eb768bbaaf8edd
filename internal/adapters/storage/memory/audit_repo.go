package memory

import (
	"context"
	"sync"

	"ward-daily-census/internal/domain/audit"
)

// AuditArchive es el archivo remoto de auditoría en memoria (ilimitado,
// a diferencia del buffer local acotado).
type AuditArchive struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewAuditArchive() *AuditArchive {
	return &AuditArchive{}
}

func (a *AuditArchive) Append(ctx context.Context, e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *AuditArchive) List(ctx context.Context, recordDate string, limit int) ([]audit.Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]audit.Entry, 0, limit)
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := a.entries[i]
		if recordDate != "" && e.RecordDate != recordDate {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// All devuelve todas las entradas en orden de inserción (para tests).
func (a *AuditArchive) All() []audit.Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]audit.Entry, len(a.entries))
	copy(out, a.entries)
	return out
}
