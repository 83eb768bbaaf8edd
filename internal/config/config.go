package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Config agrupa la configuración del servicio, cargada de variables de
// entorno. Todo es opcional: sin DB_DSN ni REDIS_ADDR el servicio arranca
// con los adaptadores en memoria (modo dev), igual que sin CACHE_PATH usa
// la caché en memoria.
type Config struct {
	HTTPAddr string

	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CachePath es el fichero sqlite de la caché local del puesto.
	CachePath string

	// ClientID identifica esta sesión como escritor frente al bus de
	// snapshots. Si no viene, se genera uno por proceso.
	ClientID string

	// AuditExcluded: identidades cuyas lecturas no se auditan (CSV).
	AuditExcluded []string

	CatalogURL string
}

func Load() Config {
	cfg := Config{
		HTTPAddr:      ":8080",
		DBDSN:         os.Getenv("DB_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CachePath:     os.Getenv("CACHE_PATH"),
		ClientID:      os.Getenv("CLIENT_ID"),
		CatalogURL:    os.Getenv("CATALOG_URL"),
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTPAddr = ":" + v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("AUDIT_EXCLUDED"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.AuditExcluded = append(cfg.AuditExcluded, id)
			}
		}
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = uuid.NewString()
	}
	return cfg
}
