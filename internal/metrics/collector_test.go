package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type mockRunStats struct {
	counts map[string]int
}

func (m *mockRunStats) CountByStatus(ctx context.Context) (map[string]int, error) {
	return m.counts, nil
}

func TestCollectorCollect(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "numcheck.db")
	if err := os.WriteFile(dbPath, make([]byte, 4096), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	m := New()
	stats := &mockRunStats{counts: map[string]int{"completed": 3, "running": 1}}
	c := NewCollector(m, stats, dbPath, time.Hour)

	c.Collect(context.Background())

	if v := gaugeValue(t, m.StorageUsedBytes); v != 4096 {
		t.Errorf("StorageUsedBytes = %v, want 4096", v)
	}
	if v := gaugeValue(t, m.Goroutines); v <= 0 {
		t.Errorf("Goroutines = %v, want > 0", v)
	}

	completed, err := m.RunsStored.GetMetricWithLabelValues("completed")
	if err != nil {
		t.Fatalf("Failed to get gauge: %v", err)
	}
	if v := gaugeValue(t, completed); v != 3 {
		t.Errorf("runs stored completed = %v, want 3", v)
	}
}

func TestCollectorStartStop(t *testing.T) {
	m := New()
	c := NewCollector(m, nil, "", 10*time.Millisecond)

	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	c.Stop()

	if v := gaugeValue(t, m.UptimeSeconds); v <= 0 {
		t.Errorf("UptimeSeconds = %v, want > 0", v)
	}
}
