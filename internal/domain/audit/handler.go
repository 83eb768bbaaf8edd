package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ward-daily-census/internal/middleware"
	"ward-daily-census/internal/ports/rbac"
)

func RegisterRoutes(r chi.Router, rec *Recorder, policy rbac.Policy) {
	r.Post("/session/login", loginHandler(rec))
	r.Post("/session/logout", logoutHandler(rec))
	r.Get("/audit", listAuditHandler(rec, policy))
}

// loginHandler godoc
// @Summary Registrar el inicio de sesión
// @Description Fija el marcador de sesión del usuario y escribe la entrada USER_LOGIN.
// @Tags session
// @Produce json
// @Success 200 {object} Entry
// @Failure 401 {string} string "unauthorized"
// @Router /session/login [post]
func loginHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		e := rec.RecordLogin(r.Context(), claims.UserID)
		writeJSON(w, http.StatusOK, e)
	}
}

// logoutHandler godoc
// @Summary Registrar el cierre de sesión
// @Description Escribe la entrada USER_LOGOUT; si había marcador de sesión adjunta la duración, si no (crash, sesión limpiada) la omite.
// @Tags session
// @Produce json
// @Success 200 {object} Entry
// @Failure 401 {string} string "unauthorized"
// @Router /session/logout [post]
func logoutHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		e := rec.RecordLogout(r.Context(), claims.UserID)
		writeJSON(w, http.StatusOK, e)
	}
}

// listAuditHandler godoc
// @Summary Listar entradas de auditoría
// @Description Devuelve las entradas más recientes (archivo remoto con caída al buffer local), opcionalmente filtradas por fecha de registro.
// @Tags audit
// @Produce json
// @Param date query string false "Filtrar por fecha de registro YYYY-MM-DD"
// @Param limit query int false "Máximo de entradas (50 por defecto)"
// @Success 200 {array} Entry
// @Failure 403 {string} string "forbidden"
// @Router /audit [get]
func listAuditHandler(rec *Recorder, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !policy.CanViewModule(claims.Role, rbac.ModuleAudit) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		out, err := rec.Recent(r.Context(), r.URL.Query().Get("date"), limit)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
