package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestGetLogger(t *testing.T) {
	Logger = zerolog.New(nil).Level(zerolog.InfoLevel)
	modules = map[string]string{
		"decoder": "debug",
		"dpb":     "warn",
		"ps":      "wrong",
	}

	require.Equal(t, zerolog.DebugLevel, GetLogger("decoder").GetLevel())
	require.Equal(t, zerolog.WarnLevel, GetLogger("dpb").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("ps").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("nonexistent").GetLevel())
}

func TestInitLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "go2avc.log")

	configs = [][]byte{[]byte("log:\n  output: " + path + "\n  level: debug\n  format: text\n  decoder: trace\n")}
	modules = map[string]string{"level": "info", "output": "stderr"}

	initLogger()

	require.Equal(t, zerolog.DebugLevel, Logger.GetLevel())
	require.Equal(t, zerolog.TraceLevel, GetLogger("decoder").GetLevel())

	Logger.Debug().Msg("[decoder] picture")

	b, err := os.ReadFile(path)
	require.Nil(t, err)
	require.Contains(t, string(b), "[decoder] picture")
	require.NotContains(t, string(b), "\x1b[") // no colors in file
}

func TestInitLoggerDisabled(t *testing.T) {
	configs = [][]byte{[]byte("log:\n  output: ''\n")}
	modules = map[string]string{"level": "info", "output": "stderr"}

	initLogger()

	require.Equal(t, zerolog.Disabled, Logger.GetLevel())
}

func TestConsoleWriter(t *testing.T) {
	var buf bytes.Buffer

	log := zerolog.New(consoleWriter(&buf, "", false))
	log.Info().Msg("[dpb] flush")
	require.Contains(t, buf.String(), "INF")
	require.Contains(t, buf.String(), "[dpb] flush")
	require.NotContains(t, buf.String(), `"message"`)
	require.NotContains(t, buf.String(), "\x1b[") // buffer is not a terminal
}
