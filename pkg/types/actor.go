package types

import (
	"strings"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

// SystemActorName is the audit label for operations no person triggered.
const SystemActorName = "System"

// Actor identifies who performs a ledger operation. Name is an opaque label
// written to audit rows; Role drives capability checks.
type Actor struct {
	Name string          `json:"name"`
	Role enums.ActorRole `json:"role"`
}

// SystemActor returns a system-role actor with the given label, or the
// default system label when name is blank.
func SystemActor(name string) Actor {
	name = strings.TrimSpace(name)
	if name == "" {
		name = SystemActorName
	}
	return Actor{Name: name, Role: enums.ActorRoleSystem}
}

// Label returns the name written to audit rows.
func (a Actor) Label() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if a.Role == enums.ActorRoleSystem {
		return SystemActorName
	}
	return ""
}

// Valid reports whether the actor may be recorded at all.
func (a Actor) Valid() bool {
	return a.Role.IsValid() && a.Label() != ""
}
