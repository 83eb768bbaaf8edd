package audit

import (
	"testing"

	"ward-daily-census/internal/domain/census"
)

func emptyRecord() census.DailyRecord {
	return census.NewEmptyRecord("2025-03-10", []string{"101", "102", "103"})
}

func TestClassifyPatch_Admission(t *testing.T) {
	muts := ClassifyPatch(emptyRecord(), census.PatchMap{
		"beds.101.patientName":   "García, Ana",
		"beds.101.historyNumber": "H-4471",
	})

	var admissions, updates int
	for _, m := range muts {
		switch m.Action {
		case ActionPatientAdmitted:
			admissions++
			if m.EntityID != "101" || m.Details.PatientName != "García, Ana" {
				t.Fatalf("bad admission mutation: %+v", m)
			}
		case ActionPatientDataUpdated:
			updates++
			if _, ok := m.Details.Changes["historyNumber"]; !ok {
				t.Fatalf("expected historyNumber change, got %+v", m.Details.Changes)
			}
		}
	}
	if admissions != 1 {
		t.Fatalf("expected exactly one admission, got %d", admissions)
	}
	if updates != 1 {
		t.Fatalf("expected one aggregated data update, got %d", updates)
	}
}

func TestClassifyPatch_ClearAndRename(t *testing.T) {
	rec := emptyRecord()
	rec.Beds["101"] = census.PatientData{PatientName: "García, Ana"}
	rec.Beds["102"] = census.PatientData{PatientName: "Pérez, Luis"}

	muts := ClassifyPatch(rec, census.PatchMap{
		"beds.101.patientName": "",
		"beds.102.patientName": "Pérez Gómez, Luis",
	})

	var cleared, renamed bool
	for _, m := range muts {
		switch m.Action {
		case ActionPatientCleared:
			cleared = true
			if m.Details.PatientName != "García, Ana" {
				t.Fatalf("cleared entry must carry the previous name, got %+v", m.Details)
			}
		case ActionPatientDataUpdated:
			if ch, ok := m.Details.Changes["patientName"]; ok {
				renamed = true
				if ch.Old != "Pérez, Luis" || ch.New != "Pérez Gómez, Luis" {
					t.Fatalf("bad rename change: %+v", ch)
				}
			}
		case ActionPatientAdmitted:
			t.Fatalf("rename must not look like an admission")
		}
	}
	if !cleared || !renamed {
		t.Fatalf("expected clear and rename, got %+v", muts)
	}
}

func TestClassifyPatch_CribIsSeparateEntity(t *testing.T) {
	muts := ClassifyPatch(emptyRecord(), census.PatchMap{
		"beds.103.clinicalCrib.patientName": "García, Bebé",
	})
	if len(muts) != 1 {
		t.Fatalf("expected one mutation, got %d", len(muts))
	}
	if muts[0].Action != ActionPatientAdmitted || muts[0].EntityID != "103/crib" {
		t.Fatalf("expected crib admission, got %+v", muts[0])
	}
}

func TestClassifyPatch_Devices(t *testing.T) {
	rec := emptyRecord()
	rec.Beds["102"] = census.PatientData{PatientName: "Pérez, Luis", Devices: []string{"via"}}

	muts := ClassifyPatch(rec, census.PatchMap{
		"beds.102.devices": []string{"via", "sonda"},
	})
	if len(muts) != 1 || muts[0].Action != ActionPatientDevicesChanged {
		t.Fatalf("expected one devices mutation, got %+v", muts)
	}
	ch := muts[0].Details.Changes["devices"]
	if ch.Old == nil || ch.New == nil {
		t.Fatalf("devices change must carry old and new lists, got %+v", ch)
	}
}

func TestClassifyPatch_MovementsAppendOnly(t *testing.T) {
	rec := emptyRecord()
	rec.Discharges = []census.Movement{{BedID: "101", PatientName: "Previa, Alta"}}

	muts := ClassifyPatch(rec, census.PatchMap{
		"discharges": []map[string]any{
			{"bedId": "101", "patientName": "Previa, Alta"},
			{"bedId": "102", "patientName": "Pérez, Luis", "destination": "domicilio"},
		},
		"transfers": []map[string]any{
			{"bedId": "103", "patientName": "Ruiz, Eva", "destination": "UCI"},
		},
	})

	var discharges, transfers int
	for _, m := range muts {
		switch m.Action {
		case ActionPatientDischarged:
			discharges++
			if m.Details.BedID != "102" {
				t.Fatalf("only the appended discharge is new, got %+v", m.Details)
			}
			if m.Details.Context["destination"] != "domicilio" {
				t.Fatalf("expected destination context, got %+v", m.Details.Context)
			}
		case ActionPatientTransferred:
			transfers++
			if m.Details.BedID != "103" {
				t.Fatalf("bad transfer mutation: %+v", m.Details)
			}
		}
	}
	if discharges != 1 || transfers != 1 {
		t.Fatalf("expected 1 discharge + 1 transfer, got %d/%d", discharges, transfers)
	}
}

func TestClassifyPatch_CMAIsDischargeWithReason(t *testing.T) {
	muts := ClassifyPatch(emptyRecord(), census.PatchMap{
		"cma": []map[string]any{
			{"bedId": "104", "patientName": "Ruiz, Eva", "time": "03:40"},
		},
	})
	if len(muts) != 1 {
		t.Fatalf("expected one mutation, got %d", len(muts))
	}
	m := muts[0]
	if m.Action != ActionPatientDischarged || m.Details.Reason != "cma" {
		t.Fatalf("expected cma discharge, got %+v", m)
	}
}

func TestClassifyPatch_NoopProducesNothing(t *testing.T) {
	rec := emptyRecord()
	rec.Beds["101"] = census.PatientData{PatientName: "García, Ana", Diagnosis: "neumonía"}

	muts := ClassifyPatch(rec, census.PatchMap{
		"beds.101.patientName": "García, Ana",
		"beds.101.diagnosis":   "neumonía",
	})
	if len(muts) != 0 {
		t.Fatalf("unchanged values must not be audited, got %+v", muts)
	}
}
