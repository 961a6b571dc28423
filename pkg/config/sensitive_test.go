package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitiveString(t *testing.T) {
	t.Run("Should redact non-empty values", func(t *testing.T) {
		assert.Equal(t, "[REDACTED]", SensitiveString("secret").String())
		assert.Equal(t, "", SensitiveString("").String())
	})

	t.Run("Should return actual value", func(t *testing.T) {
		assert.Equal(t, "my-key", SensitiveString("my-key").Value())
	})

	t.Run("Should marshal as redacted string", func(t *testing.T) {
		out, err := json.Marshal(struct {
			APIKey SensitiveString `json:"api_key"`
		}{APIKey: "k"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"api_key":"[REDACTED]"}`, string(out))
	})
}
