package livesync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"ward-daily-census/internal/domain/census"
)

// Manager garantiza el invariante de exactamente un coordinador vivo por
// fecha. Abrir una fecha ya abierta devuelve el existente; liberar una
// fecha cancela su suscripción antes de soltarla.
//
// El contexto de construcción acota la vida de los coordinadores; el
// contexto por llamada de Open solo cubre la lectura síncrona de caché.
// Así un coordinador abierto por una petición HTTP no muere con ella.
type Manager struct {
	base   context.Context
	remote Remote
	cache  LocalCache
	seed   Seed
	log    *zap.Logger
	opts   []Option

	mu   sync.Mutex
	open map[string]*Coordinator
}

func NewManager(ctx context.Context, remote Remote, cache LocalCache, seed Seed, log *zap.Logger, opts ...Option) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		base:   ctx,
		remote: remote,
		cache:  cache,
		seed:   seed,
		log:    log,
		opts:   opts,
		open:   make(map[string]*Coordinator),
	}
}

func (m *Manager) Open(ctx context.Context, date string) *Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.open[date]; ok {
		return c
	}
	opts := append([]Option{WithBaseContext(m.base)}, m.opts...)
	c := Open(ctx, date, m.remote, m.cache, m.seed, m.log, opts...)
	m.open[date] = c
	return c
}

func (m *Manager) Release(date string) {
	m.mu.Lock()
	c, ok := m.open[date]
	delete(m.open, date)
	m.mu.Unlock()

	if ok {
		c.Close()
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := m.open
	m.open = make(map[string]*Coordinator)
	m.mu.Unlock()

	for _, c := range open {
		c.Close()
	}
}

// SnapshotRange entrega a los exportadores externos la lista finalizada de
// registros del rango, ordenada por fecha. Solo garantiza instantáneas
// consistentes con lastUpdated; el formato es cosa del exportador.
func (m *Manager) SnapshotRange(ctx context.Context, from, to string) ([]census.DailyRecord, error) {
	return m.remote.ReadRange(ctx, from, to)
}
