package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store es el buffer local acotado (las entradas más viejas se desalojan).
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Archive es el almacén remoto, tratado como archivo ilimitado.
type Archive interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, recordDate string, limit int) ([]Entry, error)
}

// Input es la petición de registro de una mutación auditada.
type Input struct {
	Action     Action
	EntityType EntityType
	EntityID   string
	UserID     string
	RecordDate string
	Details    Details

	// AttributedAuthors puede venir ya resuelta; si no, queda vacía.
	AttributedAuthors []string
}

// Recorder construye entradas de auditoría y las escribe en doble destino:
// primero el buffer local, después el archivo remoto. Ningún fallo de
// escritura se propaga al flujo clínico que lo invoca: la durabilidad de la
// auditoría es de mejor esfuerzo por diseño.
type Recorder struct {
	local    Store
	archive  Archive
	sessions *SessionTracker

	// excluded suprime únicamente eventos de lectura para esas identidades
	// (visores de alta frecuencia); jamás acciones de escritura.
	excluded map[string]struct{}

	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

func NewRecorder(local Store, archive Archive, excluded []string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	ex := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		if id = strings.TrimSpace(id); id != "" {
			ex[id] = struct{}{}
		}
	}
	return &Recorder{
		local:    local,
		archive:  archive,
		sessions: NewSessionTracker(),
		excluded: ex,
		now:      time.Now,
		newID: func() string {
			id, err := uuid.NewV7()
			if err != nil {
				return uuid.NewString()
			}
			return id.String()
		},
		log: log,
	}
}

func (r *Recorder) Sessions() *SessionTracker { return r.sessions }

// Record construye y persiste la entrada. Devuelve la entrada creada y si
// realmente se registró (false cuando la exclusión la suprime: en ese caso
// no se escribe nada en ningún destino).
func (r *Recorder) Record(ctx context.Context, in Input) (Entry, bool) {
	if IsReadAction(in.Action) {
		if _, skip := r.excluded[in.UserID]; skip {
			return Entry{}, false
		}
	}

	e := Entry{
		ID:                r.newID(),
		Timestamp:         r.now().UTC(),
		UserID:            in.UserID,
		Action:            in.Action,
		EntityType:        in.EntityType,
		EntityID:          in.EntityID,
		Details:           in.Details,
		Summary:           Summarize(in.Action, in.Details),
		RecordDate:        in.RecordDate,
		AttributedAuthors: in.AttributedAuthors,
	}

	if err := r.local.Append(ctx, e); err != nil {
		r.log.Warn("audit: local append failed",
			zap.String("action", string(e.Action)), zap.Error(err))
	}
	if r.archive != nil {
		if err := r.archive.Append(ctx, e); err != nil {
			r.log.Warn("audit: archive append failed",
				zap.String("action", string(e.Action)), zap.Error(err))
		}
	}
	return e, true
}

// RecordLogin fija el marcador de sesión y audita el acceso.
func (r *Recorder) RecordLogin(ctx context.Context, userID string) Entry {
	r.sessions.Start(userID)
	e, _ := r.Record(ctx, Input{
		Action:     ActionUserLogin,
		EntityType: EntitySession,
		EntityID:   userID,
		UserID:     userID,
	})
	return e
}

// RecordLogout audita la salida adjuntando la duración de sesión si había
// marcador; si no lo había (crash, sesión limpiada) los campos de duración
// se omiten sin más.
func (r *Recorder) RecordLogout(ctx context.Context, userID string) Entry {
	var d Details
	if elapsed, ok := r.sessions.End(userID); ok {
		secs := int64(elapsed.Seconds())
		d.DurationSeconds = &secs
		d.Duration = FormatDuration(elapsed)
	}
	e, _ := r.Record(ctx, Input{
		Action:     ActionUserLogout,
		EntityType: EntitySession,
		EntityID:   userID,
		UserID:     userID,
		Details:    d,
	})
	return e
}

// Recent lista las últimas entradas: el archivo remoto si está disponible,
// con caída al buffer local.
func (r *Recorder) Recent(ctx context.Context, recordDate string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if r.archive != nil {
		if out, err := r.archive.List(ctx, recordDate, limit); err == nil {
			return out, nil
		} else {
			r.log.Warn("audit: archive list failed, falling back to local", zap.Error(err))
		}
	}
	return r.local.Recent(ctx, limit)
}
