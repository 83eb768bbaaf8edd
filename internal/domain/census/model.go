package census

import (
	"encoding/json"
	"time"
)

// DailyRecord es el documento compartido de un día: camas, movimientos y
// datos de relevo de turno. La fecha (YYYY-MM-DD) es la clave natural y es
// inmutable una vez creado el registro.
type DailyRecord struct {
	Date string `json:"date"`

	// Beds mapea id de cama -> ocupante. Las claves vienen del catálogo
	// externo de camas; el orden de inserción no importa.
	Beds map[string]PatientData `json:"beds"`

	// ExtraBeds es el conjunto de camas supletorias activas. Se parchea
	// siempre completo (nunca por elemento).
	ExtraBeds []string `json:"extraBeds,omitempty"`

	Discharges []Movement `json:"discharges,omitempty"`
	Transfers  []Movement `json:"transfers,omitempty"`
	CMA        []Movement `json:"cma,omitempty"`

	MedicalHandoff HandoffSection `json:"medicalHandoff,omitempty"`
	NursingHandoff HandoffSection `json:"nursingHandoff,omitempty"`

	// StaffByShift lista el personal de entrega/recepción por turno
	// ("day" / "night"). Es la base de la atribución de autoría.
	StaffByShift map[string]ShiftStaff `json:"staffByShift,omitempty"`

	// LastUpdated lo fija el almacén remoto en cada escritura confirmada.
	// Bajo operación normal es monótono no decreciente.
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

// PatientData representa un ocupante de una cama, o de la cuna clínica
// anidada. ClinicalCrib nunca contiene a su vez otra cuna (profundidad <= 1,
// garantizado por los llamadores).
type PatientData struct {
	PatientName   string   `json:"patientName,omitempty"`
	HistoryNumber string   `json:"historyNumber,omitempty"`
	Age           string   `json:"age,omitempty"`
	AdmissionDate string   `json:"admissionDate,omitempty"`
	Diagnosis     string   `json:"diagnosis,omitempty"`
	Allergies     string   `json:"allergies,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	PendingTests  string   `json:"pendingTests,omitempty"`
	Devices       []string `json:"devices,omitempty"`

	ClinicalCrib *PatientData `json:"clinicalCrib,omitempty"`
}

// Movement es un alta, traslado o salida CMA registrada en el día.
type Movement struct {
	BedID         string `json:"bedId,omitempty"`
	PatientName   string `json:"patientName,omitempty"`
	HistoryNumber string `json:"historyNumber,omitempty"`
	Time          string `json:"time,omitempty"`
	Destination   string `json:"destination,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// HandoffSection agrupa los campos de relevo de un módulo (médico o
// enfermería): checklist, notas libres y firma.
type HandoffSection struct {
	Checklist map[string]bool `json:"checklist,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Signature Signature       `json:"signature,omitempty"`
}

type Signature struct {
	Name     string `json:"name,omitempty"`
	SignedAt string `json:"signedAt,omitempty"`
}

type ShiftStaff struct {
	Delivering []string `json:"delivering,omitempty"`
	Receiving  []string `json:"receiving,omitempty"`
}

// NewEmptyRecord crea el registro vacío de una fecha con las camas del
// catálogo ya presentes (ocupante vacío).
func NewEmptyRecord(date string, beds []string) DailyRecord {
	r := DailyRecord{
		Date: date,
		Beds: make(map[string]PatientData, len(beds)),
	}
	for _, b := range beds {
		r.Beds[b] = PatientData{}
	}
	return r
}

// Clone devuelve una copia profunda vía JSON. Se usa para no compartir
// referencias mutables entre el coordinador y sus llamadores.
func (r DailyRecord) Clone() DailyRecord {
	b, _ := json.Marshal(r)
	var out DailyRecord
	_ = json.Unmarshal(b, &out)
	return out
}

// ToDoc convierte el registro a su forma de documento genérico (la misma
// que interpreta la escritura parcial remota).
func (r DailyRecord) ToDoc() (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDoc reconstruye un DailyRecord desde su forma de documento.
func FromDoc(doc map[string]any) (DailyRecord, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return DailyRecord{}, err
	}
	var r DailyRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return DailyRecord{}, err
	}
	return r, nil
}
