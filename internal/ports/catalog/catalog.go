// Package catalog define el contrato con el catálogo externo de camas:
// las claves del mapa beds del registro diario vienen fijadas por él.
package catalog

import "context"

type Directory interface {
	// Beds devuelve los ids de cama de la unidad, en orden estable.
	Beds(ctx context.Context) ([]string, error)
}
