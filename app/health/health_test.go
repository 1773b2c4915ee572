package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Report(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fracas.db")
	require.NoError(t, os.WriteFile(dbPath, make([]byte, 4096), 0o600))
	require.NoError(t, os.WriteFile(dbPath+"-wal", make([]byte, 100), 0o600))

	c := New(dbPath, Thresholds{DiskFreeBelow: 1, MemoryAbove: 101, LoadPerCPU: 1000})
	res := c.Report(context.Background())
	assert.Equal(t, StatusOK, res.Status, "warnings: %v", res.Warnings)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, int64(4096), res.DB.Size)
	assert.Equal(t, int64(100), res.DB.WALSize)
	assert.Equal(t, dbPath, res.DB.Path)
	require.NotNil(t, res.Disk)
	assert.Equal(t, filepath.Dir(dbPath), res.Disk.Path)
	assert.Positive(t, res.Disk.Total)
	require.NotNil(t, res.Memory)
	assert.Positive(t, res.Memory.Total)
	assert.Positive(t, res.CPUs)
	assert.NotEmpty(t, res.GoVersion)
	assert.WithinDuration(t, time.Now(), res.Time, time.Minute)
}

func TestChecker_ReportWarnings(t *testing.T) {
	t.Run("thresholds exceeded", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "fracas.db")
		require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o600))
		res := New(dbPath, Thresholds{DiskFreeBelow: 101, MemoryAbove: 0, LoadPerCPU: 0}).Report(context.Background())
		assert.Equal(t, StatusDegraded, res.Status)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "disk free at")
	})

	t.Run("missing db file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nope.db")
		res := New(dbPath, Thresholds{DiskFreeBelow: 1}).Report(context.Background())
		assert.Equal(t, StatusDegraded, res.Status)
		assert.Contains(t, res.Warnings[0], "database file")
		assert.Zero(t, res.DB.Size)
	})
}

func TestNew_DefaultThresholds(t *testing.T) {
	c := New("x.db", Thresholds{})
	assert.Equal(t, DefaultThresholds, c.thresholds)
}
