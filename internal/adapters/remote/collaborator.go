// Package remote compone el almacén de documentos en Postgres y el bus de
// snapshots en Redis en un livesync.Remote completo: escritura confirmada
// primero, difusión después.
package remote

import (
	"context"

	"go.uber.org/zap"

	"ward-daily-census/internal/adapters/realtime/redisbus"
	"ward-daily-census/internal/adapters/storage/postgres"
	"ward-daily-census/internal/domain/census"
	"ward-daily-census/internal/domain/livesync"
)

type Collaborator struct {
	store    *postgres.RecordsRepo
	bus      *redisbus.Bus
	clientID string
	log      *zap.Logger
}

// New crea el colaborador remoto de esta sesión. clientID identifica al
// escritor en cada difusión; con él los demás clientes (y este mismo)
// calculan IsLocalEcho.
func New(store *postgres.RecordsRepo, bus *redisbus.Bus, clientID string, log *zap.Logger) *Collaborator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collaborator{store: store, bus: bus, clientID: clientID, log: log}
}

func (c *Collaborator) Read(ctx context.Context, date string) (*census.DailyRecord, error) {
	return c.store.Read(ctx, date)
}

func (c *Collaborator) ReadRange(ctx context.Context, from, to string) ([]census.DailyRecord, error) {
	return c.store.ReadRange(ctx, from, to)
}

func (c *Collaborator) WriteFull(ctx context.Context, date string, rec census.DailyRecord) error {
	saved, err := c.store.WriteFull(ctx, date, rec)
	if err != nil {
		return err
	}
	c.publish(ctx, date, saved)
	return nil
}

func (c *Collaborator) WritePartial(ctx context.Context, date string, patch census.PatchMap) error {
	merged, err := c.store.WritePartial(ctx, date, patch)
	if err != nil {
		return err
	}
	c.publish(ctx, date, merged)
	return nil
}

// Delete borra el documento confirmado y difunde el borrado; como en las
// escrituras, la difusión es mejor-esfuerzo tras el commit.
func (c *Collaborator) Delete(ctx context.Context, date string) error {
	if err := c.store.Delete(ctx, date); err != nil {
		return err
	}
	if err := c.bus.PublishDeletion(ctx, date, c.clientID); err != nil {
		c.log.Warn("deletion publish failed", zap.String("date", date), zap.Error(err))
	}
	return nil
}

func (c *Collaborator) Subscribe(ctx context.Context, date string) (livesync.Subscription, error) {
	return c.bus.Subscribe(ctx, date, c.clientID)
}

// publish es mejor-esfuerzo: la escritura ya está confirmada; si la
// difusión falla, los demás clientes convergerán en su próxima
// reconciliación.
func (c *Collaborator) publish(ctx context.Context, date string, rec census.DailyRecord) {
	if err := c.bus.Publish(ctx, date, c.clientID, rec); err != nil {
		c.log.Warn("snapshot publish failed", zap.String("date", date), zap.Error(err))
	}
}
