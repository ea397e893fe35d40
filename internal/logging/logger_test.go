package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONWithComponent(t *testing.T) {
	previous := log.Logger
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "info", Format: "json"}, &buf))

	logger := Component("annotation")
	logger.Debug().Msg("hidden")
	logger.Info().Str("uri", "uri://LEOS/doc1").Msg("searched")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "annotation", line["component"])
	assert.Equal(t, "searched", line["message"])
	assert.Equal(t, "uri://LEOS/doc1", line["uri"])
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	previous := log.Logger
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	assert.Error(t, Setup(Config{Level: "info", Format: "xml"}, nil))
}

func TestSetupFallsBackToInfoLevel(t *testing.T) {
	previous := log.Logger
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	for _, level := range []string{"", "loud", "WARN"} {
		var buf bytes.Buffer
		require.NoError(t, Setup(Config{Level: level}, &buf), level)
		if level == "WARN" {
			assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
			continue
		}
		assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel(), level)
		if level == "loud" {
			assert.Contains(t, buf.String(), "unknown log level")
		}
	}
}
