package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Info("publish_ok", Fields{"bucket": "morning"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "publish_ok", entry["msg"])
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "morning", entry["bucket"])
}
