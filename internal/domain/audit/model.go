package audit

import "time"

// Entry es una entrada del registro de auditoría: append-only, inmutable
// una vez creada. Localmente vive en un buffer circular acotado; el archivo
// remoto se trata como ilimitado.
type Entry struct {
	// ID es un UUIDv7: único y ordenable por momento de creación.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// UserID es la identidad autenticada, que en puestos compartidos no es
	// necesariamente quien actuó; ver AttributedAuthors.
	UserID string `json:"userId"`

	Action     Action     `json:"action"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`

	Details Details `json:"details,omitempty"`

	// Summary se genera de forma determinista a partir de (action, details).
	Summary string `json:"summary"`

	RecordDate string `json:"recordDate,omitempty"`

	// AttributedAuthors es la lista ordenada, de mejor esfuerzo, del
	// personal probablemente responsable del dato.
	AttributedAuthors []string `json:"attributedAuthors,omitempty"`
}

// Details acompaña a la entrada con el contexto estructurado del cambio.
type Details struct {
	Changes map[string]FieldChange `json:"changes,omitempty"`

	BedID       string `json:"bedId,omitempty"`
	PatientName string `json:"patientName,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// Duración de sesión (solo en USER_LOGOUT, y solo si había marcador).
	DurationSeconds *int64 `json:"durationSeconds,omitempty"`
	Duration        string `json:"duration,omitempty"`

	Context map[string]any `json:"context,omitempty"`
}

type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}
