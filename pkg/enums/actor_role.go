package enums

import "fmt"

// ActorRole is the capability class of whoever drives a ledger operation.
type ActorRole string

const (
	ActorRoleAdmin    ActorRole = "admin"
	ActorRoleCashier  ActorRole = "cashier"
	ActorRoleReseller ActorRole = "reseller"
	ActorRoleSystem   ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleCashier,
	ActorRoleReseller,
	ActorRoleSystem,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
