package audit

// Action es el conjunto cerrado de acciones auditables.
type Action string

const (
	ActionUserLogin          Action = "USER_LOGIN"
	ActionUserLogout         Action = "USER_LOGOUT"
	ActionPatientView        Action = "PATIENT_VIEW"
	ActionPatientAdmitted    Action = "PATIENT_ADMITTED"
	ActionPatientCleared     Action = "PATIENT_CLEARED"
	ActionPatientDischarged  Action = "PATIENT_DISCHARGED"
	ActionPatientTransferred Action = "PATIENT_TRANSFERRED"
	ActionViewMedicalHandoff Action = "VIEW_MEDICAL_HANDOFF"
	ActionViewNursingHandoff Action = "VIEW_NURSING_HANDOFF"
	ActionRecordDelete       Action = "RECORD_DELETE"

	// Cambios de dispositivos / datos demográficos; llevan mapa `changes`.
	ActionPatientDevicesChanged Action = "PATIENT_DEVICES_CHANGED"
	ActionPatientDataUpdated    Action = "PATIENT_DATA_UPDATED"
)

// IsReadAction distingue los eventos de solo lectura. Son los únicos que el
// conjunto de exclusión puede suprimir; las acciones de escritura o
// críticas nunca se suprimen.
func IsReadAction(a Action) bool {
	switch a {
	case ActionPatientView, ActionViewMedicalHandoff, ActionViewNursingHandoff:
		return true
	}
	return false
}

type EntityType string

const (
	EntityBed     EntityType = "bed"
	EntityRecord  EntityType = "record"
	EntitySession EntityType = "session"
	EntityHandoff EntityType = "handoff"
)

// Shift acota la atribución de autoría al turno relevante.
type Shift string

const (
	ShiftDay   Shift = "day"
	ShiftNight Shift = "night"
)
