// Package rbac es la frontera de autorización, consumida como funciones
// puras sobre tablas estáticas rol -> permiso. El motor de sincronización
// no autoriza nada por sí mismo: los handlers comprueban aquí antes de
// invocar operaciones mutantes.
package rbac

type Policy interface {
	CanDoAction(role, action string) bool
	CanEditModule(role, module string) bool
	CanViewModule(role, module string) bool
}

// Módulos conocidos por la capa HTTP.
const (
	ActionRecordDelete = "RECORD_DELETE"

	ModuleCensus         = "census"
	ModuleMedicalHandoff = "medicalHandoff"
	ModuleNursingHandoff = "nursingHandoff"
	ModuleAudit          = "audit"
)

type staticPolicy struct {
	view map[string]map[string]bool
	edit map[string]map[string]bool
	act  map[string]map[string]bool
}

// DefaultPolicy devuelve la tabla estática de la aplicación. Roles:
// admin, doctor, nurse, viewer.
func DefaultPolicy() Policy {
	allModules := map[string]bool{
		ModuleCensus: true, ModuleMedicalHandoff: true,
		ModuleNursingHandoff: true, ModuleAudit: true,
	}
	clinicalView := map[string]bool{
		ModuleCensus: true, ModuleMedicalHandoff: true, ModuleNursingHandoff: true,
	}

	return &staticPolicy{
		view: map[string]map[string]bool{
			"admin":  allModules,
			"doctor": clinicalView,
			"nurse":  clinicalView,
			"viewer": {ModuleCensus: true},
		},
		edit: map[string]map[string]bool{
			"admin": allModules,
			"doctor": {
				ModuleCensus: true, ModuleMedicalHandoff: true,
			},
			"nurse": {
				ModuleCensus: true, ModuleNursingHandoff: true,
			},
		},
		act: map[string]map[string]bool{
			"admin": {ActionRecordDelete: true},
		},
	}
}

func (p *staticPolicy) CanViewModule(role, module string) bool {
	return p.view[role][module]
}

func (p *staticPolicy) CanEditModule(role, module string) bool {
	return p.edit[role][module]
}

func (p *staticPolicy) CanDoAction(role, action string) bool {
	if p.act[role][action] {
		return true
	}
	// toda acción de escritura sobre el censo queda cubierta por el
	// permiso de edición del módulo
	return p.edit[role][ModuleCensus] && action != ActionRecordDelete
}
