package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/rotation"
)

func TestIsLastDayOfMonth(t *testing.T) {
	cases := map[string]bool{
		"2025-01-31": true,
		"2025-01-30": false,
		"2024-02-29": true,
		"2025-02-28": true,
		"2024-02-28": false,
		"2025-12-31": true,
	}
	for day, want := range cases {
		d, err := time.Parse("2006-01-02", day)
		require.NoError(t, err)
		assert.Equal(t, want, IsLastDayOfMonth(d), day)
	}
}

func TestArchiveName(t *testing.T) {
	at := time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "data/cast_history_2025-01.json", ArchiveName("data/cast_history.json", at))
	assert.Equal(t, "casts_2025-01.log", ArchiveName("casts.log", at))
	assert.Equal(t, "noext_2025-01", ArchiveName("noext", at))
}

func setup(t *testing.T) (*Rotator, *rotation.HistoryStore, string) {
	t.Helper()
	dir := t.TempDir()
	hist := rotation.NewHistoryStore(filepath.Join(dir, "cast_history.json"), 10)
	require.NoError(t, hist.Push("morning", "hola"))
	logPath := filepath.Join(dir, "casts.log")
	require.NoError(t, os.WriteFile(logPath, []byte("[x] (morning) hola\n"), 0o644))
	r := NewRotator(time.UTC,
		Target{Name: "history", Path: hist.Path(), Reset: hist.Reset},
		Target{Name: "log", Path: logPath, Reset: TruncateFile(logPath)},
	)
	return r, hist, logPath
}

func TestRunOnMonthEndArchivesAndResets(t *testing.T) {
	r, hist, logPath := setup(t)
	archived, err := r.Run(time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, archived)

	b, err := os.ReadFile(ArchiveName(hist.Path(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hola")
	b, err = os.ReadFile(ArchiveName(logPath, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, "[x] (morning) hola\n", string(b))

	h, err := hist.Load()
	require.NoError(t, err)
	assert.Equal(t, rotation.EmptyHistory(), h)
	b, err = os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestRunMidMonthIsNoop(t *testing.T) {
	r, hist, logPath := setup(t)
	archived, err := r.Run(time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, archived)
	h, err := hist.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"hola"}, h["morning"])
	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}

func TestRunUsesConfiguredZone(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	r, _, _ := setup(t)
	r.loc = bogota
	// 02:00 UTC on Feb 1 is still Jan 31 in Bogota.
	archived, err := r.Run(time.Date(2025, 2, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, archived)
}

func TestForceSkipsMissingAndKeepsExistingArchives(t *testing.T) {
	r, hist, logPath := setup(t)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Force(at))
	require.NoError(t, hist.Push("noon", "again"))
	require.NoError(t, r.Force(at))

	_, err := os.Stat(ArchiveName(hist.Path(), at))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(hist.Path()), "cast_history_2025-03.1.json"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(logPath))
	require.NoError(t, r.Force(at))
	_, err = os.Stat(logPath)
	require.NoError(t, err, "log is recreated empty")
}
