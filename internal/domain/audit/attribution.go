package audit

import (
	"strings"

	"ward-daily-census/internal/domain/census"
)

// AttributedAuthors resuelve la autoría bajo login compartido: dado el
// usuario autenticado y las listas de personal de guardia del registro,
// devuelve la lista ordenada de nombres probablemente responsables del dato
// producido en ese contexto.
//
// Es una función pura y determinista: mismas entradas, misma salida. El
// personal de entrega del turno va primero (es quien escribe el relevo),
// después el de recepción. Si el turno no se conoce se consideran ambos
// turnos en orden día, noche. Sin personal configurado, se cae a la
// identidad autenticada.
func AttributedAuthors(userID string, rec census.DailyRecord, shift Shift) []string {
	var shifts []string
	switch shift {
	case ShiftDay, ShiftNight:
		shifts = []string{string(shift)}
	default:
		shifts = []string{string(ShiftDay), string(ShiftNight)}
	}

	out := make([]string, 0, 4)
	seen := make(map[string]struct{})
	add := func(names []string) {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}

	for _, s := range shifts {
		add(rec.StaffByShift[s].Delivering)
	}
	for _, s := range shifts {
		add(rec.StaffByShift[s].Receiving)
	}

	if len(out) == 0 && strings.TrimSpace(userID) != "" {
		out = append(out, strings.TrimSpace(userID))
	}
	return out
}
