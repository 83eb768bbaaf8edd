package router

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	catalogcli "ward-daily-census/internal/adapters/catalog"
	"ward-daily-census/internal/adapters/realtime/redisbus"
	"ward-daily-census/internal/adapters/remote"
	mem "ward-daily-census/internal/adapters/storage/memory"
	pg "ward-daily-census/internal/adapters/storage/postgres"
	"ward-daily-census/internal/domain/audit"
	"ward-daily-census/internal/domain/census"
	"ward-daily-census/internal/domain/livesync"
	"ward-daily-census/internal/middleware"
	"ward-daily-census/internal/ports/auth"
	"ward-daily-census/internal/ports/catalog"
	"ward-daily-census/internal/ports/rbac"
)

// LocalStore es lo que la estación guarda en local: la última instantánea
// por fecha y el buffer circular de auditoría. Lo implementan la caché en
// memoria y la sqlite.
type LocalStore interface {
	livesync.LocalCache
	audit.Store
}

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: con DB y Redis se usa el colaborador real (documentos en
	// Postgres, snapshots por Redis). Si falta cualquiera de los dos, todo
	// va al almacén en memoria.
	DB    *sql.DB
	Redis *redis.Client

	// Opcional: caché local durable. Si es nil, caché en memoria.
	Cache LocalStore

	// ClientID identifica a esta sesión como escritor (eco local).
	ClientID string

	// AuditExcluded: identidades cuyas lecturas no se auditan.
	AuditExcluded []string

	Policy  rbac.Policy       // nil => DefaultPolicy
	Catalog catalog.Directory // nil => catálogo estático
	Logger  *zap.Logger       // nil => nop
}

func NewRouter(opts Options) http.Handler {
	h, _ := Build(opts)
	return h
}

// Build devuelve además el gestor de coordinadores para que main pueda
// cancelar las suscripciones vivas en el apagado.
func Build(opts Options) (http.Handler, *livesync.Manager) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var (
		rem     livesync.Remote
		archive audit.Archive
	)

	if opts.DB != nil && opts.Redis != nil {
		rem = remote.New(pg.NewRecordsRepo(opts.DB), redisbus.New(opts.Redis, log), opts.ClientID, log)
		archive = pg.NewAuditRepo(opts.DB)
	} else {
		if opts.DB != nil || opts.Redis != nil {
			log.Warn("partial remote config (need both DB and Redis), falling back to in-memory store")
		}
		rem = mem.NewStore().Client(opts.ClientID)
		archive = mem.NewAuditArchive()
	}

	cache := opts.Cache
	if cache == nil {
		cache = mem.NewCache()
	}

	dir := opts.Catalog
	if dir == nil {
		dir = catalogcli.NewStatic(nil)
	}
	// el catálogo se resuelve una vez al arrancar; si el servicio está
	// caído, el cliente ya cae a su respaldo estático
	beds, err := dir.Beds(context.Background())
	if err != nil || len(beds) == 0 {
		beds = catalogcli.DefaultBeds
	}
	seed := func(date string) census.DailyRecord {
		return census.NewEmptyRecord(date, beds)
	}

	policy := opts.Policy
	if policy == nil {
		policy = rbac.DefaultPolicy()
	}

	recorder := audit.NewRecorder(cache, archive, opts.AuditExcluded, log)
	// los coordinadores viven lo que el proceso, no lo que la petición
	// que los abre; main los drena con CloseAll en el apagado
	mgr := livesync.NewManager(context.Background(), rem, cache, seed, log)
	svc := livesync.NewService(mgr, recorder)

	livesync.RegisterRoutes(r, svc, policy)
	audit.RegisterRoutes(r, recorder, policy)

	return r, mgr
}
