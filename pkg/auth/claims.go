package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorName string
	Role      enums.ActorRole
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to ledger operators.
type AccessTokenClaims struct {
	ActorName string          `json:"actor_name"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate implements jwt.ClaimsValidator. Every token must name an actor that
// can be written to audit rows.
func (c AccessTokenClaims) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", c.Role)
	}
	if strings.TrimSpace(c.ActorName) == "" {
		return fmt.Errorf("token carries no actor name")
	}
	return nil
}

// Actor returns the ledger actor the token speaks for.
func (c AccessTokenClaims) Actor() types.Actor {
	return types.Actor{Name: c.ActorName, Role: c.Role}
}
