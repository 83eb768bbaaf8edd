package livesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ward-daily-census/internal/domain/audit"
	"ward-daily-census/internal/domain/census"
)

var ErrInvalidInput = errors.New("invalid input")

// Service es la fachada de aplicación sobre el coordinador: valida la
// semántica de negocio antes de tocar el motor de parches (que solo valida
// forma), y dispara la auditoría de cada mutación clínicamente
// significativa, con independencia de que el parche llegara al remoto.
type Service struct {
	mgr      *Manager
	recorder *audit.Recorder
	now      func() time.Time
}

func NewService(mgr *Manager, recorder *audit.Recorder) *Service {
	return &Service{
		mgr:      mgr,
		recorder: recorder,
		now:      time.Now,
	}
}

func (s *Service) Manager() *Manager { return s.mgr }

// GetRecord devuelve la instantánea autoritativa y el estado de
// sincronización de la fecha.
func (s *Service) GetRecord(ctx context.Context, date string) (census.DailyRecord, Status, error) {
	if err := validDate(date); err != nil {
		return census.DailyRecord{}, StatusIdle, err
	}
	c := s.mgr.Open(ctx, date)
	return c.Record(), c.Status(), nil
}

// ApplyPatch valida, aplica optimistamente y audita. Si la escritura
// remota falla devuelve el error junto con el registro ya parcheado en
// local: la edición no se descarta y la auditoría se registra igualmente.
func (s *Service) ApplyPatch(ctx context.Context, date, userID string, shift audit.Shift, patch census.PatchMap) (census.DailyRecord, error) {
	if err := validDate(date); err != nil {
		return census.DailyRecord{}, err
	}
	if len(patch) == 0 {
		return census.DailyRecord{}, fmt.Errorf("%w: empty patch", ErrInvalidInput)
	}
	if err := s.validateSemantics(patch); err != nil {
		return census.DailyRecord{}, err
	}

	c := s.mgr.Open(ctx, date)
	before := c.Record()

	patchErr := c.PatchRecord(ctx, patch)
	if patchErr != nil && !errors.Is(patchErr, ErrRemoteWrite) {
		// parche estructuralmente inválido: no se aplicó nada, no se audita
		return before, patchErr
	}

	after := c.Record()
	authors := audit.AttributedAuthors(userID, after, shift)
	for _, m := range audit.ClassifyPatch(before, patch) {
		s.recorder.Record(ctx, audit.Input{
			Action:            m.Action,
			EntityType:        m.EntityType,
			EntityID:          m.EntityID,
			UserID:            userID,
			RecordDate:        date,
			Details:           m.Details,
			AttributedAuthors: authors,
		})
	}
	return after, patchErr
}

// Save reemplaza el documento completo (identidad de ida y vuelta en éxito).
func (s *Service) Save(ctx context.Context, date string, rec census.DailyRecord) (census.DailyRecord, error) {
	if err := validDate(date); err != nil {
		return census.DailyRecord{}, err
	}
	c := s.mgr.Open(ctx, date)
	if err := c.SaveAndUpdate(ctx, rec); err != nil {
		return c.Record(), err
	}
	return c.Record(), nil
}

// Delete borra el registro del día y lo audita como RECORD_DELETE.
func (s *Service) Delete(ctx context.Context, date, userID string) error {
	if err := validDate(date); err != nil {
		return err
	}
	c := s.mgr.Open(ctx, date)
	if err := c.DeleteRecord(ctx); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.Input{
		Action:     audit.ActionRecordDelete,
		EntityType: audit.EntityRecord,
		EntityID:   date,
		UserID:     userID,
		RecordDate: date,
	})
	return nil
}

// ToggleExtraBed alterna una cama supletoria en el conjunto activo. La
// lista se parchea completa y ordenada; aplicarlo dos veces devuelve el
// conjunto a su valor original.
func (s *Service) ToggleExtraBed(ctx context.Context, date, userID, bedID string) (census.DailyRecord, error) {
	if err := validDate(date); err != nil {
		return census.DailyRecord{}, err
	}
	bedID = strings.TrimSpace(bedID)
	if bedID == "" {
		return census.DailyRecord{}, fmt.Errorf("%w: bed id required", ErrInvalidInput)
	}

	c := s.mgr.Open(ctx, date)
	current := c.Record().ExtraBeds

	next := make([]string, 0, len(current)+1)
	found := false
	for _, b := range current {
		if b == bedID {
			found = true
			continue
		}
		next = append(next, b)
	}
	if !found {
		next = append(next, bedID)
	}
	sort.Strings(next)

	after, err := s.ApplyPatch(ctx, date, userID, "", census.PatchMap{"extraBeds": next})
	return after, err
}

// RecordPatientView audita la consulta de un paciente (evento de lectura,
// sujeto al conjunto de exclusión del recorder).
func (s *Service) RecordPatientView(ctx context.Context, date, userID, bedID string) {
	s.recorder.Record(ctx, audit.Input{
		Action:     audit.ActionPatientView,
		EntityType: audit.EntityBed,
		EntityID:   bedID,
		UserID:     userID,
		RecordDate: date,
		Details:    audit.Details{BedID: bedID},
	})
}

// RecordHandoffView audita la consulta del relevo médico o de enfermería.
func (s *Service) RecordHandoffView(ctx context.Context, date, userID, module string) {
	action := audit.ActionViewMedicalHandoff
	if module == "nursing" {
		action = audit.ActionViewNursingHandoff
	}
	s.recorder.Record(ctx, audit.Input{
		Action:     action,
		EntityType: audit.EntityHandoff,
		EntityID:   module,
		UserID:     userID,
		RecordDate: date,
	})
}

// validateSemantics es la puerta de validación de negocio previa al motor
// de parches: una fecha de ingreso futura se rechaza aquí, no allí.
func (s *Service) validateSemantics(patch census.PatchMap) error {
	today := s.now().Format("2006-01-02")
	for path, v := range patch {
		if !strings.HasSuffix(path, "admissionDate") {
			continue
		}
		sv, ok := v.(string)
		if !ok || sv == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", sv); err != nil {
			return fmt.Errorf("%w: admission date %q must be YYYY-MM-DD", ErrInvalidInput, sv)
		}
		if sv > today {
			return fmt.Errorf("%w: admission date %q is in the future", ErrInvalidInput, sv)
		}
	}
	return nil
}

func validDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return nil
}
