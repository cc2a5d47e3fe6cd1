package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggingTo_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	SetupLoggingTo(&buf, "WARN", "json")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Info().Msg("Dropped")
	log.Warn().Str("smiles", "CCO").Msg("Kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Kept", entry["message"])
	assert.Equal(t, "CCO", entry["smiles"])
	assert.Equal(t, "warn", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestSetupLoggingTo_ConsoleAndFallback(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	SetupLoggingTo(&buf, "nonsense", "console")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.Info().Msg("Server ready")
	assert.Contains(t, buf.String(), "Server ready")
	assert.False(t, json.Valid(buf.Bytes()))

	SetupLoggingTo(&buf, "", "")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
