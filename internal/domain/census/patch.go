package census

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidPath indica una ruta que no respeta la gramática o que no
// existe en el esquema estático del registro. El parche se rechaza entero,
// nunca se aplica parcialmente.
var ErrInvalidPath = errors.New("invalid field path")

// PatchMap es un parche plano: ruta con puntos -> nuevo valor de la hoja.
// Los campos con forma de lista (discharges, transfers, cma, devices,
// extraBeds, listas de personal) se reemplazan siempre completos; no hay
// segmentos de índice.
type PatchMap map[string]any

// FieldPath es una ruta ya parseada y validada contra el esquema.
type FieldPath struct {
	raw  string
	segs []string
}

func (p FieldPath) String() string     { return p.raw }
func (p FieldPath) Segments() []string { return p.segs }

// ParsePath valida solo la forma: segmentos separados por punto, no vacíos.
func ParsePath(raw string) (FieldPath, error) {
	if strings.TrimSpace(raw) == "" {
		return FieldPath{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segs := strings.Split(raw, ".")
	for _, s := range segs {
		if strings.TrimSpace(s) == "" {
			return FieldPath{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, raw)
		}
	}
	return FieldPath{raw: raw, segs: segs}, nil
}

// --- esquema estático del documento ---

type schemaNode struct {
	children map[string]*schemaNode
	wildcard *schemaNode // claves dinámicas (ids de cama, items de checklist)
}

func leafNode() *schemaNode { return &schemaNode{} }

func patientSchema(withCrib bool) *schemaNode {
	n := &schemaNode{children: map[string]*schemaNode{
		"patientName":   leafNode(),
		"historyNumber": leafNode(),
		"age":           leafNode(),
		"admissionDate": leafNode(),
		"diagnosis":     leafNode(),
		"allergies":     leafNode(),
		"notes":         leafNode(),
		"pendingTests":  leafNode(),
		"devices":       leafNode(),
	}}
	if withCrib {
		n.children["clinicalCrib"] = patientSchema(false)
	}
	return n
}

func handoffSchema() *schemaNode {
	return &schemaNode{children: map[string]*schemaNode{
		"checklist": {wildcard: leafNode()},
		"notes":     leafNode(),
		"signature": {children: map[string]*schemaNode{
			"name":     leafNode(),
			"signedAt": leafNode(),
		}},
	}}
}

func shiftStaffSchema() *schemaNode {
	return &schemaNode{children: map[string]*schemaNode{
		"delivering": leafNode(),
		"receiving":  leafNode(),
	}}
}

// recordSchema describe qué rutas admite un DailyRecord. "date" y
// "lastUpdated" quedan fuera a propósito: la fecha es inmutable y la marca
// temporal la fija el almacén remoto.
var recordSchema = &schemaNode{children: map[string]*schemaNode{
	"beds":           {wildcard: patientSchema(true)},
	"extraBeds":      leafNode(),
	"discharges":     leafNode(),
	"transfers":      leafNode(),
	"cma":            leafNode(),
	"medicalHandoff": handoffSchema(),
	"nursingHandoff": handoffSchema(),
	"staffByShift": {children: map[string]*schemaNode{
		"day":   shiftStaffSchema(),
		"night": shiftStaffSchema(),
	}},
}}

// ValidatePath comprueba la ruta contra el esquema. Un segmento inicial
// desconocido (o cualquier descenso bajo un campo hoja, como un índice de
// lista) la invalida.
func ValidatePath(p FieldPath) error {
	cur := recordSchema
	for _, seg := range p.segs {
		next := cur.children[seg]
		if next == nil {
			next = cur.wildcard
		}
		if next == nil {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p.raw)
		}
		cur = next
	}
	return nil
}

// Validate valida todas las rutas del parche; falla entero al primer error.
func (p PatchMap) Validate() error {
	for raw := range p {
		fp, err := ParsePath(raw)
		if err != nil {
			return err
		}
		if err := ValidatePath(fp); err != nil {
			return err
		}
	}
	return nil
}

// sortedPaths devuelve las rutas en orden estable para aplicar el parche
// de forma determinista.
func (p PatchMap) sortedPaths() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeDoc aplica el parche sobre la forma de documento genérico. Esta es
// LA interpretación de escritura parcial: tanto el merge local como la
// escritura parcial del colaborador remoto ejecutan exactamente este código,
// de modo que ambas representaciones no pueden divergir.
//
// Cada entrada "a.b.c": v reemplaza únicamente la hoja c, dejando intactos
// los campos hermanos; los intermedios inexistentes se crean como objetos.
func MergeDoc(doc map[string]any, patch PatchMap) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	for _, raw := range patch.sortedPaths() {
		fp, _ := ParsePath(raw)
		v, err := normalizeValue(patch[raw])
		if err != nil {
			return fmt.Errorf("path %q: %w", raw, err)
		}
		setPath(doc, fp.segs, v)
	}
	return nil
}

// Apply aplica el parche sobre el registro tipado pasando por la forma de
// documento, garantizando la equivalencia bit a bit con MergeDoc. Si el
// parche es inválido, el registro no se toca.
func Apply(rec *DailyRecord, patch PatchMap) error {
	doc, err := rec.ToDoc()
	if err != nil {
		return err
	}
	if err := MergeDoc(doc, patch); err != nil {
		return err
	}
	merged, err := FromDoc(doc)
	if err != nil {
		return err
	}
	merged.Date = rec.Date // inmutable
	merged.LastUpdated = rec.LastUpdated
	*rec = merged
	return nil
}

func setPath(doc map[string]any, segs []string, v any) {
	cur := doc
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[s] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
}

// normalizeValue canoniza el valor vía JSON (p.ej. []string -> []any) para
// que el documento quede igual lo escriba quien lo escriba.
func normalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
