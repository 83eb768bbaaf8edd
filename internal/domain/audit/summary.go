package audit

import (
	"fmt"
	"sort"
	"strings"
)

// Summarize genera el resumen legible de una entrada. Es determinista:
// mismos (action, details) producen siempre el mismo texto.
func Summarize(action Action, d Details) string {
	switch action {
	case ActionUserLogin:
		return "User logged in"
	case ActionUserLogout:
		if d.Duration != "" {
			return fmt.Sprintf("User logged out (session %s)", d.Duration)
		}
		return "User logged out"
	case ActionPatientView:
		return fmt.Sprintf("Viewed patient in bed %s", d.BedID)
	case ActionPatientAdmitted:
		return fmt.Sprintf("Patient admitted to bed %s: %s", d.BedID, d.PatientName)
	case ActionPatientCleared:
		return fmt.Sprintf("Bed %s cleared (was %s)", d.BedID, d.PatientName)
	case ActionPatientDischarged:
		if d.Reason != "" {
			return fmt.Sprintf("Patient discharged from bed %s: %s (%s)", d.BedID, d.PatientName, d.Reason)
		}
		return fmt.Sprintf("Patient discharged from bed %s: %s", d.BedID, d.PatientName)
	case ActionPatientTransferred:
		return fmt.Sprintf("Patient transferred from bed %s: %s", d.BedID, d.PatientName)
	case ActionViewMedicalHandoff:
		return "Viewed medical handoff"
	case ActionViewNursingHandoff:
		return "Viewed nursing handoff"
	case ActionRecordDelete:
		return "Daily record deleted"
	case ActionPatientDevicesChanged:
		return fmt.Sprintf("Devices changed for bed %s", d.BedID)
	case ActionPatientDataUpdated:
		return fmt.Sprintf("Patient data updated for bed %s: %s", d.BedID, changedFields(d))
	}
	return string(action)
}

func changedFields(d Details) string {
	if len(d.Changes) == 0 {
		return "-"
	}
	fields := make([]string, 0, len(d.Changes))
	for f := range d.Changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return strings.Join(fields, ", ")
}
