package memory

import (
	"context"
	"sync"

	"ward-daily-census/internal/domain/audit"
	"ward-daily-census/internal/domain/census"
)

const DefaultAuditCap = 200

// Cache implementa la caché local (livesync.LocalCache) y el buffer
// circular de auditoría (audit.Store) en memoria. En producción su lugar lo
// ocupa el adaptador sqlite; aquí sirve dev y tests.
type Cache struct {
	mu      sync.RWMutex
	records map[string]census.DailyRecord
	ring    []audit.Entry
	cap     int
}

func NewCache() *Cache {
	return NewCacheWithCap(DefaultAuditCap)
}

func NewCacheWithCap(auditCap int) *Cache {
	if auditCap <= 0 {
		auditCap = DefaultAuditCap
	}
	return &Cache{
		records: make(map[string]census.DailyRecord),
		cap:     auditCap,
	}
}

func (c *Cache) GetRecord(ctx context.Context, date string) (census.DailyRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[date]
	if !ok {
		return census.DailyRecord{}, false, nil
	}
	return rec.Clone(), true, nil
}

func (c *Cache) PutRecord(ctx context.Context, rec census.DailyRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Date] = rec.Clone()
	return nil
}

func (c *Cache) DeleteRecord(ctx context.Context, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, date)
	return nil
}

// Append añade al buffer circular; si se supera la capacidad, las entradas
// más viejas se desalojan. Nunca falla.
func (c *Cache) Append(ctx context.Context, e audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring = append(c.ring, e)
	if len(c.ring) > c.cap {
		c.ring = c.ring[len(c.ring)-c.cap:]
	}
	return nil
}

// Recent devuelve las últimas entradas, la más reciente primero.
func (c *Cache) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if limit <= 0 || limit > len(c.ring) {
		limit = len(c.ring)
	}
	out := make([]audit.Entry, 0, limit)
	for i := len(c.ring) - 1; i >= len(c.ring)-limit; i-- {
		out = append(out, c.ring[i])
	}
	return out, nil
}

// Len expone el tamaño actual del buffer (para tests de desalojo).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ring)
}
