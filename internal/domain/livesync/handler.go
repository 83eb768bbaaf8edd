package livesync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ward-daily-census/internal/domain/audit"
	"ward-daily-census/internal/domain/census"
	"ward-daily-census/internal/middleware"
	"ward-daily-census/internal/ports/auth"
	"ward-daily-census/internal/ports/rbac"
)

func RegisterRoutes(r chi.Router, svc *Service, policy rbac.Policy) {
	r.Route("/census", func(cr chi.Router) {
		cr.Get("/", listRecordsHandler(svc, policy))

		cr.Route("/{date}", func(dr chi.Router) {
			dr.Get("/", getRecordHandler(svc, policy))
			dr.Patch("/", patchRecordHandler(svc, policy))
			dr.Put("/", saveRecordHandler(svc, policy))
			dr.Delete("/", deleteRecordHandler(svc, policy))
			dr.Post("/release", releaseHandler(svc, policy))

			dr.Get("/beds/{bedID}", getBedHandler(svc, policy))
			dr.Post("/extra-beds/{bedID}/toggle", toggleExtraBedHandler(svc, policy))
			dr.Get("/handoff/{module}", getHandoffHandler(svc, policy))
		})
	})
}

// recordResponse es el registro autoritativo más el estado de
// sincronización que consume la UI.
type recordResponse struct {
	Record     census.DailyRecord `json:"record"`
	SyncStatus Status             `json:"syncStatus"`
	Error      string             `json:"error,omitempty"`
}

// patchRequest es el cuerpo del parche: rutas con puntos -> valor, más el
// turno para acotar la atribución de autoría.
type patchRequest struct {
	Patch census.PatchMap `json:"patch"`
	Shift audit.Shift     `json:"shift,omitempty"`
}

// getRecordHandler godoc
// @Summary Obtener el registro diario
// @Description Devuelve la instantánea autoritativa de la fecha (caché local primero, reconciliación remota en curso) y su estado de sincronización.
// @Tags census
// @Produce json
// @Param date path string true "Fecha YYYY-MM-DD"
// @Success 200 {object} recordResponse
// @Failure 400 {string} string "fecha inválida"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /census/{date} [get]
func getRecordHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireView(w, r, policy, rbac.ModuleCensus); !ok {
			return
		}

		rec, status, err := svc.GetRecord(r.Context(), chi.URLParam(r, "date"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, recordResponse{Record: rec, SyncStatus: status})
	}
}

// patchRecordHandler godoc
// @Summary Parchear el registro diario
// @Description Aplica un parche de rutas con puntos. La edición se aplica optimistamente en local; si la escritura remota falla se devuelve 502 con el registro ya parcheado (el dato no se descarta) para que el cliente avise y reintente.
// @Tags census
// @Accept json
// @Produce json
// @Param date path string true "Fecha YYYY-MM-DD"
// @Param payload body patchRequest true "Parche y turno"
// @Success 200 {object} recordResponse
// @Failure 400 {string} string "parche inválido"
// @Failure 502 {object} recordResponse "escritura remota fallida, edición local conservada"
// @Router /census/{date} [patch]
func patchRecordHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireEdit(w, r, policy, rbac.ModuleCensus)
		if !ok {
			return
		}

		var req patchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		rec, err := svc.ApplyPatch(r.Context(), chi.URLParam(r, "date"), claims.UserID, req.Shift, req.Patch)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, recordResponse{Record: rec, SyncStatus: StatusSaved})
		case errors.Is(err, ErrRemoteWrite):
			writeJSON(w, http.StatusBadGateway, recordResponse{
				Record: rec, SyncStatus: StatusError, Error: err.Error(),
			})
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
}

// saveRecordHandler godoc
// @Summary Guardar el registro completo
// @Tags census
// @Accept json
// @Produce json
// @Param date path string true "Fecha YYYY-MM-DD"
// @Param payload body census.DailyRecord true "Registro completo"
// @Success 200 {object} recordResponse
// @Failure 502 {object} recordResponse "escritura remota fallida, registro previo intacto"
// @Router /census/{date} [put]
func saveRecordHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireEdit(w, r, policy, rbac.ModuleCensus); !ok {
			return
		}

		var rec census.DailyRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		saved, err := svc.Save(r.Context(), chi.URLParam(r, "date"), rec)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, recordResponse{Record: saved, SyncStatus: StatusSaved})
		case errors.Is(err, ErrRemoteWrite):
			writeJSON(w, http.StatusBadGateway, recordResponse{
				Record: saved, SyncStatus: StatusError, Error: err.Error(),
			})
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
}

// deleteRecordHandler godoc
// @Summary Borrar el registro del día
// @Tags census
// @Param date path string true "Fecha YYYY-MM-DD"
// @Success 204 {string} string ""
// @Failure 403 {string} string "forbidden"
// @Router /census/{date} [delete]
func deleteRecordHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !policy.CanDoAction(claims.Role, rbac.ActionRecordDelete) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		if err := svc.Delete(r.Context(), chi.URLParam(r, "date"), claims.UserID); err != nil {
			if errors.Is(err, ErrInvalidInput) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// releaseHandler cierra el coordinador de la fecha (desmontaje de vista):
// la suscripción se cancela antes de cualquier mutación posterior.
func releaseHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireView(w, r, policy, rbac.ModuleCensus); !ok {
			return
		}
		svc.Manager().Release(chi.URLParam(r, "date"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// getBedHandler godoc
// @Summary Consultar el ocupante de una cama
// @Description Devuelve los datos del paciente y audita la consulta (PATIENT_VIEW, sujeto al conjunto de exclusión).
// @Tags census
// @Produce json
// @Param date path string true "Fecha YYYY-MM-DD"
// @Param bedID path string true "Id de cama"
// @Success 200 {object} census.PatientData
// @Failure 404 {string} string "bed not found"
// @Router /census/{date}/beds/{bedID} [get]
func getBedHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireView(w, r, policy, rbac.ModuleCensus)
		if !ok {
			return
		}

		date := chi.URLParam(r, "date")
		bedID := chi.URLParam(r, "bedID")

		rec, _, err := svc.GetRecord(r.Context(), date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		patient, found := rec.Beds[bedID]
		if !found {
			http.Error(w, "bed not found", http.StatusNotFound)
			return
		}

		svc.RecordPatientView(r.Context(), date, claims.UserID, bedID)
		writeJSON(w, http.StatusOK, patient)
	}
}

// toggleExtraBedHandler godoc
// @Summary Alternar una cama supletoria
// @Description Activa o desactiva la cama supletoria en el conjunto del día. Aplicado dos veces, el conjunto vuelve a su valor original.
// @Tags census
// @Produce json
// @Param date path string true "Fecha YYYY-MM-DD"
// @Param bedID path string true "Id de cama supletoria"
// @Success 200 {object} recordResponse
// @Router /census/{date}/extra-beds/{bedID}/toggle [post]
func toggleExtraBedHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireEdit(w, r, policy, rbac.ModuleCensus)
		if !ok {
			return
		}

		rec, err := svc.ToggleExtraBed(r.Context(), chi.URLParam(r, "date"), claims.UserID, chi.URLParam(r, "bedID"))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, recordResponse{Record: rec, SyncStatus: StatusSaved})
		case errors.Is(err, ErrRemoteWrite):
			writeJSON(w, http.StatusBadGateway, recordResponse{
				Record: rec, SyncStatus: StatusError, Error: err.Error(),
			})
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
}

// getHandoffHandler godoc
// @Summary Consultar el relevo médico o de enfermería
// @Tags census
// @Produce json
// @Param date path string true "Fecha YYYY-MM-DD"
// @Param module path string true "medical | nursing"
// @Success 200 {object} census.HandoffSection
// @Router /census/{date}/handoff/{module} [get]
func getHandoffHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := chi.URLParam(r, "module")

		rbacModule := rbac.ModuleMedicalHandoff
		if module == "nursing" {
			rbacModule = rbac.ModuleNursingHandoff
		} else if module != "medical" {
			http.Error(w, "unknown handoff module", http.StatusNotFound)
			return
		}

		claims, ok := requireView(w, r, policy, rbacModule)
		if !ok {
			return
		}

		date := chi.URLParam(r, "date")
		rec, _, err := svc.GetRecord(r.Context(), date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		section := rec.MedicalHandoff
		if module == "nursing" {
			section = rec.NursingHandoff
		}
		svc.RecordHandoffView(r.Context(), date, claims.UserID, module)
		writeJSON(w, http.StatusOK, section)
	}
}

// listRecordsHandler godoc
// @Summary Listar registros de un rango de fechas
// @Description Entrega instantáneas finalizadas ordenadas por fecha, para los exportadores externos.
// @Tags census
// @Produce json
// @Param from query string true "Fecha inicial YYYY-MM-DD"
// @Param to query string true "Fecha final YYYY-MM-DD"
// @Success 200 {array} census.DailyRecord
// @Router /census [get]
func listRecordsHandler(svc *Service, policy rbac.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireView(w, r, policy, rbac.ModuleCensus); !ok {
			return
		}

		from := strings.TrimSpace(r.URL.Query().Get("from"))
		to := strings.TrimSpace(r.URL.Query().Get("to"))
		if validDate(from) != nil || validDate(to) != nil {
			http.Error(w, "from/to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		out, err := svc.Manager().SnapshotRange(r.Context(), from, to)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func requireView(w http.ResponseWriter, r *http.Request, policy rbac.Policy, module string) (auth.Claims, bool) {
	claims, has := middleware.GetClaims(r.Context())
	if !has || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	if !policy.CanViewModule(claims.Role, module) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return auth.Claims{}, false
	}
	return claims, true
}

func requireEdit(w http.ResponseWriter, r *http.Request, policy rbac.Policy, module string) (auth.Claims, bool) {
	claims, has := middleware.GetClaims(r.Context())
	if !has || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	if !policy.CanEditModule(claims.Role, module) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return auth.Claims{}, false
	}
	return claims, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
