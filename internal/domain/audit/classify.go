package audit

import (
	"reflect"
	"sort"
	"strings"

	"ward-daily-census/internal/domain/census"
)

// Mutation es una mutación clínicamente significativa derivada de un
// parche, lista para convertirse en entrada de auditoría.
type Mutation struct {
	Action     Action
	EntityType EntityType
	EntityID   string
	Details    Details
}

// ClassifyPatch deriva las mutaciones auditables de un parche comparándolo
// con la preimagen del registro. Es pura y determinista (el orden de salida
// es estable), de modo que parchear el nombre de una cama vacía produce
// exactamente un PATIENT_ADMITTED, etc.
func ClassifyPatch(before census.DailyRecord, patch census.PatchMap) []Mutation {
	after := before.Clone()
	if err := census.Apply(&after, patch); err != nil {
		return nil
	}

	var out []Mutation
	updates := map[string]*Details{} // cama -> cambios demográficos agregados
	var updateOrder []string

	paths := make([]string, 0, len(patch))
	for p := range patch {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, raw := range paths {
		segs := strings.Split(raw, ".")
		if segs[0] != "beds" || len(segs) < 3 {
			continue
		}
		bedID := segs[1]
		field := segs[len(segs)-1]
		inCrib := len(segs) > 3 && segs[2] == "clinicalCrib"

		oldP := lookupPatient(before, bedID, inCrib)
		newP := lookupPatient(after, bedID, inCrib)
		entity := bedID
		if inCrib {
			entity = bedID + "/crib"
		}

		switch field {
		case "patientName":
			switch {
			case strings.TrimSpace(oldP.PatientName) == "" && strings.TrimSpace(newP.PatientName) != "":
				out = append(out, Mutation{
					Action:     ActionPatientAdmitted,
					EntityType: EntityBed,
					EntityID:   entity,
					Details:    Details{BedID: entity, PatientName: newP.PatientName},
				})
			case strings.TrimSpace(oldP.PatientName) != "" && strings.TrimSpace(newP.PatientName) == "":
				out = append(out, Mutation{
					Action:     ActionPatientCleared,
					EntityType: EntityBed,
					EntityID:   entity,
					Details:    Details{BedID: entity, PatientName: oldP.PatientName},
				})
			case oldP.PatientName != newP.PatientName:
				addChange(updates, &updateOrder, entity, "patientName", oldP.PatientName, newP.PatientName)
			}
		case "devices":
			if !reflect.DeepEqual(oldP.Devices, newP.Devices) {
				out = append(out, Mutation{
					Action:     ActionPatientDevicesChanged,
					EntityType: EntityBed,
					EntityID:   entity,
					Details: Details{
						BedID:   entity,
						Changes: map[string]FieldChange{"devices": {Old: oldP.Devices, New: newP.Devices}},
					},
				})
			}
		default:
			oldV, newV := patientField(oldP, field), patientField(newP, field)
			if oldV != newV {
				addChange(updates, &updateOrder, entity, field, oldV, newV)
			}
		}
	}

	out = append(out, movementMutations(ActionPatientDischarged, "", before.Discharges, after.Discharges)...)
	out = append(out, movementMutations(ActionPatientTransferred, "", before.Transfers, after.Transfers)...)
	out = append(out, movementMutations(ActionPatientDischarged, "cma", before.CMA, after.CMA)...)

	// Los cambios demográficos agregados van al final, una mutación por cama.
	for _, bed := range updateOrder {
		out = append(out, Mutation{
			Action:     ActionPatientDataUpdated,
			EntityType: EntityBed,
			EntityID:   bed,
			Details:    *updates[bed],
		})
	}
	return out
}

func lookupPatient(r census.DailyRecord, bedID string, crib bool) census.PatientData {
	p := r.Beds[bedID]
	if !crib {
		return p
	}
	if p.ClinicalCrib == nil {
		return census.PatientData{}
	}
	return *p.ClinicalCrib
}

func patientField(p census.PatientData, field string) string {
	switch field {
	case "historyNumber":
		return p.HistoryNumber
	case "age":
		return p.Age
	case "admissionDate":
		return p.AdmissionDate
	case "diagnosis":
		return p.Diagnosis
	case "allergies":
		return p.Allergies
	case "notes":
		return p.Notes
	case "pendingTests":
		return p.PendingTests
	}
	return ""
}

func addChange(updates map[string]*Details, order *[]string, bed, field string, oldV, newV any) {
	d, ok := updates[bed]
	if !ok {
		d = &Details{BedID: bed, Changes: map[string]FieldChange{}}
		updates[bed] = d
		*order = append(*order, bed)
	}
	d.Changes[field] = FieldChange{Old: oldV, New: newV}
}

// movementMutations audita los movimientos añadidos por el parche (las
// listas se reemplazan completas; lo nuevo es la cola).
func movementMutations(action Action, reason string, before, after []census.Movement) []Mutation {
	if len(after) <= len(before) {
		return nil
	}
	out := make([]Mutation, 0, len(after)-len(before))
	for _, m := range after[len(before):] {
		out = append(out, Mutation{
			Action:     action,
			EntityType: EntityBed,
			EntityID:   m.BedID,
			Details: Details{
				BedID:       m.BedID,
				PatientName: m.PatientName,
				Reason:      reason,
				Context:     movementContext(m),
			},
		})
	}
	return out
}

func movementContext(m census.Movement) map[string]any {
	ctx := map[string]any{}
	if m.Time != "" {
		ctx["time"] = m.Time
	}
	if m.Destination != "" {
		ctx["destination"] = m.Destination
	}
	if m.HistoryNumber != "" {
		ctx["historyNumber"] = m.HistoryNumber
	}
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}
