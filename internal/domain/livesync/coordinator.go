package livesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ward-daily-census/internal/domain/census"
)

// ErrRemoteWrite marca un fallo de red en una escritura remota. El estado
// local queda intacto (y en el caso del parche, la edición optimista se
// conserva); reintentar es cosa del llamador o de la reconexión.
var ErrRemoteWrite = errors.New("remote write failed")

// DefaultReconcileTimeout acota la reconciliación inicial con el remoto
// para no dejar la UI en loading indefinido.
const DefaultReconcileTimeout = 8 * time.Second

// Seed construye el registro vacío de una fecha (camas del catálogo).
type Seed func(date string) census.DailyRecord

// Coordinator posee en exclusiva el registro autoritativo en memoria de una
// fecha. Orquesta: carga caché-primero, reconciliación remota acotada,
// suscripción en vivo con supresión de ecos, aplicación optimista de
// parches y seguimiento de estado.
//
// El remoto es la fuente de verdad para la convergencia; lo local lo es
// para leer-tus-escrituras hasta que la convergencia ocurre.
type Coordinator struct {
	date   string
	remote Remote
	cache  LocalCache
	seed   Seed
	log    *zap.Logger

	reconcileTimeout time.Duration

	// base acota la vida del coordinador, no la de la petición que lo
	// abrió; cancel se dispara en Close.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	record census.DailyRecord
	status Status
	echoes int

	// pending y dirty marcan escrituras optimistas sin confirmar: en vuelo
	// hacia el remoto, o con la escritura remota fallida. La reconciliación
	// no reemplaza el registro mientras quede alguna.
	pending int
	dirty   bool

	// remoteExists pasa a true al observar (o materializar) el documento
	// remoto; hasta entonces los parches viajan como escritura completa
	// para que el documento no nazca escaso, sin las camas sembradas.
	remoteExists bool

	sub    Subscription
	closed bool

	done  chan struct{}
	ready chan struct{}
}

type Option func(*Coordinator)

func WithReconcileTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.reconcileTimeout = d
		}
	}
}

// WithBaseContext fija el contexto de vida del coordinador (reconciliación,
// suscripción y entregas). Por defecto es context.Background().
func WithBaseContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		if ctx != nil {
			c.base = ctx
		}
	}
}

// Open devuelve el coordinador con la instantánea de la caché local ya
// disponible (lectura síncrona con el contexto de la llamada, estado
// inmediato para la UI) y lanza en segundo plano la reconciliación remota y
// la suscripción en vivo. El trabajo en segundo plano corre sobre el
// contexto de vida del coordinador, no sobre ctx: un coordinador abierto
// desde una petición HTTP sobrevive a esa petición. Ready() se cierra
// cuando reconciliación y suscripción terminaron.
func Open(ctx context.Context, date string, remote Remote, cache LocalCache, seed Seed, log *zap.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		date:             date,
		remote:           remote,
		cache:            cache,
		seed:             seed,
		log:              log.With(zap.String("date", date)),
		reconcileTimeout: DefaultReconcileTimeout,
		base:             context.Background(),
		status:           StatusLoading,
		done:             make(chan struct{}),
		ready:            make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	lifeCtx, cancel := context.WithCancel(c.base)
	c.base, c.cancel = lifeCtx, cancel

	if cached, ok, err := cache.GetRecord(ctx, date); err != nil {
		c.log.Warn("local cache read failed", zap.Error(err))
		c.record = seed(date)
	} else if ok {
		c.record = cached
	} else {
		c.record = seed(date)
	}

	go c.start(lifeCtx)
	return c
}

// Ready se cierra cuando la reconciliación inicial y la suscripción han
// terminado (con éxito o no).
func (c *Coordinator) Ready() <-chan struct{} { return c.ready }

func (c *Coordinator) Date() string { return c.date }

// Record devuelve una copia profunda del registro autoritativo.
func (c *Coordinator) Record() census.DailyRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Clone()
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// EchoesDiscarded cuenta los snapshots descartados por ser eco de una
// escritura propia. Distingue en tests la supresión de un no-op genuino.
func (c *Coordinator) EchoesDiscarded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.echoes
}

func (c *Coordinator) start(ctx context.Context) {
	c.reconcile(ctx)
	c.subscribe(ctx)
	close(c.ready)
}

// reconcile trae el documento remoto con un plazo acotado; si el remoto
// tiene un lastUpdated más nuevo que lo local, lo reemplaza — salvo que
// haya escrituras optimistas sin confirmar, que nunca se pisan. Si la fecha
// no tiene documento todavía, se materializa el registro sembrado: una
// escritura parcial posterior hereda así las camas del catálogo en vez de
// hacer nacer un documento escaso.
func (c *Coordinator) reconcile(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, c.reconcileTimeout)
	defer cancel()

	remote, err := c.remote.Read(rctx, c.date)
	if err != nil {
		c.log.Warn("remote reconcile failed", zap.Error(err))
		c.setStatus(StatusError)
		return
	}

	if remote == nil {
		c.mu.Lock()
		if !c.remoteExists {
			snapshot := c.record.Clone()
			c.mu.Unlock()
			if err := c.remote.WriteFull(rctx, c.date, snapshot); err != nil {
				c.log.Warn("seed materialization failed", zap.Error(err))
				c.setStatus(StatusError)
				return
			}
			c.mu.Lock()
		}
		c.remoteExists = true
		c.mu.Unlock()
	}

	c.mu.Lock()
	unconfirmed := c.pending > 0 || c.dirty
	if remote != nil {
		c.remoteExists = true
		if !unconfirmed && remote.LastUpdated.After(c.record.LastUpdated) {
			c.record = remote.Clone()
		}
	}
	snapshot := c.record.Clone()
	// con una escritura sin confirmar, el estado lo decide esa escritura
	if !unconfirmed {
		c.status = StatusSaved
	}
	c.mu.Unlock()

	if err := c.cache.PutRecord(ctx, snapshot); err != nil {
		c.log.Warn("local cache write failed", zap.Error(err))
	}
}

func (c *Coordinator) subscribe(ctx context.Context) {
	sub, err := c.remote.Subscribe(ctx, c.date)
	if err != nil {
		c.log.Warn("subscribe failed", zap.Error(err))
		c.setStatus(StatusError)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	c.sub = sub
	c.mu.Unlock()

	go c.consume(ctx, sub)
}

// consume aplica la política de sobrescritura-como-mucho-una-vez: un eco de
// escritura propia se descarta siempre; un snapshot confirmado ajeno
// reemplaza el registro incondicionalmente (se asume más nuevo o igual).
func (c *Coordinator) consume(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-c.done:
			return
		case snap, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			if snap.IsLocalEcho {
				c.mu.Lock()
				c.echoes++
				c.mu.Unlock()
				c.log.Debug("discarding local echo snapshot")
				continue
			}
			if snap.Deleted {
				c.mu.Lock()
				c.record = c.seed(c.date)
				c.remoteExists = false
				c.mu.Unlock()
				if err := c.cache.DeleteRecord(ctx, c.date); err != nil {
					c.log.Warn("local cache delete failed", zap.Error(err))
				}
				continue
			}
			c.mu.Lock()
			c.record = snap.Record.Clone()
			snapshot := c.record.Clone()
			c.mu.Unlock()
			if err := c.cache.PutRecord(ctx, snapshot); err != nil {
				c.log.Warn("local cache write failed", zap.Error(err))
			}
		}
	}
}

// PatchRecord valida la forma del parche, lo aplica optimistamente al
// registro en memoria y la caché (la UI ve la edición sin latencia) y lo
// empuja al remoto. Si la escritura remota falla, la edición local NO se
// revierte: un dato clínico tecleado no se descarta en silencio; el estado
// pasa a error y el llamador decide reintentar.
func (c *Coordinator) PatchRecord(ctx context.Context, patch census.PatchMap) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	updated := c.record.Clone()
	if err := census.Apply(&updated, patch); err != nil {
		c.mu.Unlock()
		return err
	}
	c.record = updated
	snapshot := updated.Clone()
	c.status = StatusSaving
	c.pending++
	exists := c.remoteExists
	c.mu.Unlock()

	if err := c.cache.PutRecord(ctx, snapshot); err != nil {
		c.log.Warn("local cache write failed", zap.Error(err))
	}

	// hasta observar el documento remoto, el parche viaja como escritura
	// completa: el documento nace con las camas sembradas, nunca escaso
	var err error
	if exists {
		err = c.remote.WritePartial(ctx, c.date, patch)
	} else {
		err = c.remote.WriteFull(ctx, c.date, snapshot)
	}

	c.mu.Lock()
	c.pending--
	if err != nil {
		c.status = StatusError
		c.dirty = true
	} else {
		c.status = StatusSaved
		c.dirty = false
		c.remoteExists = true
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	return nil
}

// SaveAndUpdate escribe el registro completo. En éxito el registro
// autoritativo pasa a ser exactamente el guardado (identidad de ida y
// vuelta); en fallo el registro previo queda intacto, sin corrupción
// parcial.
func (c *Coordinator) SaveAndUpdate(ctx context.Context, rec census.DailyRecord) error {
	c.setStatus(StatusSaving)

	if err := c.remote.WriteFull(ctx, c.date, rec); err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}

	c.mu.Lock()
	c.record = rec.Clone()
	c.record.Date = c.date
	snapshot := c.record.Clone()
	c.status = StatusSaved
	c.dirty = false
	c.remoteExists = true
	c.mu.Unlock()

	if err := c.cache.PutRecord(ctx, snapshot); err != nil {
		c.log.Warn("local cache write failed", zap.Error(err))
	}
	return nil
}

// DeleteRecord elimina el documento remoto y la entrada de caché, y deja
// en memoria el registro vacío de la fecha.
func (c *Coordinator) DeleteRecord(ctx context.Context) error {
	if err := c.remote.Delete(ctx, c.date); err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
	}
	if err := c.cache.DeleteRecord(ctx, c.date); err != nil {
		c.log.Warn("local cache delete failed", zap.Error(err))
	}
	c.mu.Lock()
	c.record = c.seed(c.date)
	c.status = StatusSaved
	c.remoteExists = false
	c.mu.Unlock()
	return nil
}

// Close cancela la suscripción antes de cualquier otra mutación posterior:
// garantiza que no se entregan snapshots a un contexto ya desmontado.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.status = StatusIdle
	c.mu.Unlock()

	close(c.done)
	if sub != nil {
		sub.Unsubscribe()
	}
	c.cancel()
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
