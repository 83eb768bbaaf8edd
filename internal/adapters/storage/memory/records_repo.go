package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ward-daily-census/internal/domain/census"
	"ward-daily-census/internal/domain/livesync"
)

var ErrNotFound = errors.New("not found")

// Store es el colaborador remoto en memoria: un documento genérico por
// fecha y fan-out de snapshots a los suscriptores. Cada "cliente" (sesión)
// se crea con Client(writerID); el flag IsLocalEcho de cada snapshot se
// calcula comparando el escritor con el dueño de la suscripción, igual que
// hace el adaptador real.
//
// Sirve el modo dev sin infraestructura y las suites de test (permite
// simular dos clientes concurrentes contra el mismo almacén).
type Store struct {
	mu    sync.Mutex
	docs  map[string]map[string]any
	subs  map[string][]*subscription
	clock func() time.Time
}

func NewStore() *Store {
	return &Store{
		docs:  make(map[string]map[string]any),
		subs:  make(map[string][]*subscription),
		clock: time.Now,
	}
}

// Client devuelve la vista de este almacén para una sesión concreta.
func (s *Store) Client(writerID string) livesync.Remote {
	return &client{store: s, id: writerID}
}

type client struct {
	store *Store
	id    string
}

func (c *client) Read(ctx context.Context, date string) (*census.DailyRecord, error) {
	c.store.mu.Lock()
	doc, ok := c.store.docs[date]
	c.store.mu.Unlock()
	if !ok {
		return nil, nil
	}
	rec, err := census.FromDoc(doc)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *client) ReadRange(ctx context.Context, from, to string) ([]census.DailyRecord, error) {
	c.store.mu.Lock()
	dates := make([]string, 0, len(c.store.docs))
	for d := range c.store.docs {
		if d >= from && d <= to {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)

	out := make([]census.DailyRecord, 0, len(dates))
	for _, d := range dates {
		rec, err := census.FromDoc(c.store.docs[d])
		if err != nil {
			c.store.mu.Unlock()
			return nil, err
		}
		out = append(out, rec)
	}
	c.store.mu.Unlock()
	return out, nil
}

func (c *client) WriteFull(ctx context.Context, date string, rec census.DailyRecord) error {
	rec.Date = date
	doc, err := rec.ToDoc()
	if err != nil {
		return err
	}

	c.store.mu.Lock()
	doc["lastUpdated"] = c.store.nextTimestamp(date)
	c.store.docs[date] = doc
	c.store.broadcastLocked(date, c.id)
	c.store.mu.Unlock()
	return nil
}

func (c *client) WritePartial(ctx context.Context, date string, patch census.PatchMap) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	doc, ok := c.store.docs[date]
	if !ok {
		doc = map[string]any{"date": date}
	}
	if err := census.MergeDoc(doc, patch); err != nil {
		return err
	}
	doc["lastUpdated"] = c.store.nextTimestamp(date)
	c.store.docs[date] = doc
	c.store.broadcastLocked(date, c.id)
	return nil
}

// Delete borra el documento y lo difunde: los demás suscriptores vuelven a
// su registro sembrado en vez de seguir sirviendo el día borrado.
func (c *client) Delete(ctx context.Context, date string) error {
	c.store.mu.Lock()
	delete(c.store.docs, date)
	for _, sub := range c.store.subs[date] {
		snap := livesync.Snapshot{
			Deleted:     true,
			IsLocalEcho: sub.owner == c.id,
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
	c.store.mu.Unlock()
	return nil
}

func (c *client) Subscribe(ctx context.Context, date string) (livesync.Subscription, error) {
	sub := &subscription{
		store: c.store,
		date:  date,
		owner: c.id,
		ch:    make(chan livesync.Snapshot, 16),
	}
	c.store.mu.Lock()
	c.store.subs[date] = append(c.store.subs[date], sub)
	c.store.mu.Unlock()
	return sub, nil
}

// nextTimestamp garantiza lastUpdated monótono aunque dos escrituras
// caigan en el mismo instante del reloj.
func (s *Store) nextTimestamp(date string) string {
	now := s.clock().UTC()
	if doc, ok := s.docs[date]; ok {
		if prev, ok := doc["lastUpdated"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, prev); err == nil && !now.After(t) {
				now = t.Add(time.Millisecond)
			}
		}
	}
	return now.Format(time.RFC3339Nano)
}

func (s *Store) broadcastLocked(date, writerID string) {
	doc := s.docs[date]
	rec, err := census.FromDoc(doc)
	if err != nil {
		return
	}
	for _, sub := range s.subs[date] {
		snap := livesync.Snapshot{
			Record:      rec.Clone(),
			IsLocalEcho: sub.owner == writerID,
		}
		select {
		case sub.ch <- snap:
		default: // suscriptor lento: se queda sin este snapshot
		}
	}
}

type subscription struct {
	store *Store
	date  string
	owner string
	ch    chan livesync.Snapshot
	once  sync.Once
}

func (s *subscription) Snapshots() <-chan livesync.Snapshot { return s.ch }

// Unsubscribe saca la suscripción de la lista y cierra el canal: no hay
// ninguna entrega posterior.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.mu.Lock()
		subs := s.store.subs[s.date]
		for i, candidate := range subs {
			if candidate == s {
				s.store.subs[s.date] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(s.ch)
		s.store.mu.Unlock()
	})
}
