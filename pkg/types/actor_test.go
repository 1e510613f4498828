package types

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
)

func TestActorLabel(t *testing.T) {
	assert.Equal(t, "System", SystemActor("").Label())
	assert.Equal(t, "POS-System", SystemActor(" POS-System ").Label())
	assert.Equal(t, "System", Actor{Role: enums.ActorRoleSystem}.Label())
	assert.Equal(t, "", Actor{Role: enums.ActorRoleAdmin}.Label())
	assert.Equal(t, "anna", Actor{Name: "anna", Role: enums.ActorRoleCashier}.Label())
}

func TestActorValid(t *testing.T) {
	assert.True(t, SystemActor("").Valid())
	assert.True(t, Actor{Name: "anna", Role: enums.ActorRoleAdmin}.Valid())
	assert.False(t, Actor{Role: enums.ActorRoleAdmin}.Valid())
	assert.False(t, Actor{Name: "anna", Role: "owner"}.Valid())
}
