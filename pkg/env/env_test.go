package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("LEDGER_TEST_VALUE", "  console ")
	assert.Equal(t, "console", Get("LEDGER_TEST_VALUE", "json"))

	t.Setenv("LEDGER_TEST_VALUE", "   ")
	assert.Equal(t, "json", Get("LEDGER_TEST_VALUE", "json"))
}

func TestBool(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "false": false, "nope": true, "": true}
	for raw, want := range cases {
		t.Setenv("LEDGER_TEST_FLAG", raw)
		assert.Equal(t, want, Bool("LEDGER_TEST_FLAG", true), "raw=%q", raw)
	}
}
