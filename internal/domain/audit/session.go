package audit

import (
	"fmt"
	"sync"
	"time"
)

// SessionTracker guarda el marcador de inicio de sesión por identidad.
// Es estado efímero por proceso: tras un reinicio no hay marcador y la
// duración simplemente se omite, nunca es un error.
type SessionTracker struct {
	mu     sync.Mutex
	starts map[string]time.Time
	now    func() time.Time
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		starts: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Start registra (o reemplaza) el marcador de inicio para la identidad.
func (t *SessionTracker) Start(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts[userID] = t.now()
}

// End devuelve el tiempo transcurrido desde el marcador y lo limpia.
// ok es false si no había marcador (crash previo, sesión limpiada).
func (t *SessionTracker) End(userID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.starts[userID]
	if !ok {
		return 0, false
	}
	delete(t.starts, userID)

	d := t.now().Sub(start)
	if d < 0 {
		d = 0
	}
	return d, true
}

// FormatDuration produce la forma humana corta: "45s", "1m", "1h 5m".
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	default:
		h := secs / 3600
		m := (secs % 3600) / 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
