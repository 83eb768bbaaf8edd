package livesync

// Status es el estado del coordinador de cara a la UI. Los fallos de red
// se vuelven estado, no excepciones: idle → loading → {saving} → saved|error,
// con loading reentrante al cambiar de fecha.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)
