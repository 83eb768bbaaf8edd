// Package redisbus difunde snapshots de registros por pub/sub de Redis:
// un canal por fecha. El sobre lleva el id del escritor, que es lo que
// permite al suscriptor marcar IsLocalEcho en sus propias escrituras.
package redisbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"ward-daily-census/internal/domain/census"
	"ward-daily-census/internal/domain/livesync"
)

const channelPrefix = "census:record:"

type envelope struct {
	WriterID string             `json:"writerId"`
	Record   census.DailyRecord `json:"record"`
	Deleted  bool               `json:"deleted,omitempty"`
}

type Bus struct {
	rdb *redis.Client
	log *zap.Logger
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{rdb: rdb, log: log}
}

// Publish difunde el documento ya confirmado en el almacén. Se llama
// siempre después del commit, nunca antes.
func (b *Bus) Publish(ctx context.Context, date, writerID string, rec census.DailyRecord) error {
	payload, err := json.Marshal(envelope{WriterID: writerID, Record: rec})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+date, payload).Err()
}

// PublishDeletion difunde el borrado del documento de la fecha: los
// suscriptores vuelven a su registro sembrado.
func (b *Bus) PublishDeletion(ctx context.Context, date, writerID string) error {
	payload, err := json.Marshal(envelope{WriterID: writerID, Deleted: true})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+date, payload).Err()
}

// Subscribe abre la suscripción de una fecha para el cliente selfID.
func (b *Bus) Subscribe(ctx context.Context, date, selfID string) (livesync.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channelPrefix+date)
	// fuerza el handshake para detectar fallos de conexión aquí
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &subscription{
		ps:  ps,
		out: make(chan livesync.Snapshot, 16),
	}
	go sub.pump(b.log, selfID)
	return sub, nil
}

type subscription struct {
	ps   *redis.PubSub
	out  chan livesync.Snapshot
	once sync.Once
}

func (s *subscription) pump(log *zap.Logger, selfID string) {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Warn("redisbus: malformed snapshot payload", zap.Error(err))
			continue
		}
		snap := livesync.Snapshot{
			Record:      env.Record,
			IsLocalEcho: env.WriterID == selfID,
			Deleted:     env.Deleted,
		}
		select {
		case s.out <- snap:
		default:
			log.Warn("redisbus: slow subscriber, snapshot dropped")
		}
	}
}

func (s *subscription) Snapshots() <-chan livesync.Snapshot { return s.out }

// Unsubscribe cierra el PubSub; el canal de salida se cierra al agotarse
// el pump, así que no hay entregas posteriores.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() { _ = s.ps.Close() })
}
