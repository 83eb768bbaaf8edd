package livesync

import (
	"context"

	"ward-daily-census/internal/domain/census"
)

// Snapshot es una entrega de la suscripción en vivo. IsLocalEcho es true
// exactamente cuando el snapshot refleja una escritura propia de este
// cliente aún no confirmada por el servidor: es el eco de una escritura
// saliente y aplicarlo podría pisar ediciones posteriores. Deleted marca
// el borrado del documento: el suscriptor vuelve al registro sembrado, en
// vez de seguir sirviendo el día borrado hasta la próxima reconciliación.
type Snapshot struct {
	Record      census.DailyRecord
	IsLocalEcho bool
	Deleted     bool
}

// Subscription es el handle cancelable de una suscripción. Tras
// Unsubscribe no se entrega ningún snapshot más (el canal se cierra).
type Subscription interface {
	Snapshots() <-chan Snapshot
	Unsubscribe()
}

// Remote es el contrato con el almacén de documentos multi-escritor en
// tiempo real. Un documento por fecha; la escritura parcial acepta el mapa
// plano de rutas con puntos de census.PatchMap y lo interpreta exactamente
// como census.MergeDoc.
type Remote interface {
	// Read devuelve (nil, nil) si la fecha no tiene documento todavía.
	Read(ctx context.Context, date string) (*census.DailyRecord, error)
	ReadRange(ctx context.Context, from, to string) ([]census.DailyRecord, error)
	WriteFull(ctx context.Context, date string, rec census.DailyRecord) error
	WritePartial(ctx context.Context, date string, patch census.PatchMap) error
	Delete(ctx context.Context, date string) error
	Subscribe(ctx context.Context, date string) (Subscription, error)
}

// LocalCache es la caché local durable: última instantánea conocida por
// fecha. Da estado inmediato a la UI mientras el remoto reconcilia.
type LocalCache interface {
	GetRecord(ctx context.Context, date string) (census.DailyRecord, bool, error)
	PutRecord(ctx context.Context, rec census.DailyRecord) error
	DeleteRecord(ctx context.Context, date string) error
}
