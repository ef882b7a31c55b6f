package schedules

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, "schedules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "schedules", "workday.toml"), []byte(`[metadata]
name = "workday"
wake = "07:00"

[[living_room]]
time = "{wake}"
temperature = 21
`), 0644))

	v := viper.New()
	v.Set("data.dir", dataDir)

	var out bytes.Buffer
	require.NoError(t, list(&out, v))

	assert.Contains(t, out.String(), "workday")
	assert.Contains(t, out.String(), "wake")
	assert.Contains(t, out.String(), "07:00")
	assert.Contains(t, out.String(), "default")
}
