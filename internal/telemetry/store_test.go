package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(node string, t time.Time) Sample {
	return Sample{
		NodeID: node, Timestamp: t,
		CPUPct: 10, MemoryPct: 10, DiskPct: 10, AvailabilityPct: 100, OverallPct: 10,
		Status: StatusHealthy,
	}
}

func TestStoreEvictsOldestBeyondCapacity(t *testing.T) {
	base := time.Now()
	store := NewStore(WithCapacity(5), WithClock(func() time.Time { return base.Add(time.Hour) }))

	for i := 0; i < 10; i++ {
		store.Ingest(sampleAt("n1", base.Add(time.Duration(i)*time.Second)))
	}

	all := store.All("n1")
	require.Len(t, all, 5)
	assert.Equal(t, base.Add(5*time.Second), all[0].Timestamp, "oldest entries beyond capacity must be evicted")
	assert.Equal(t, base.Add(9*time.Second), all[4].Timestamp)
}

func TestStoreRecentIsChronological(t *testing.T) {
	base := time.Now()
	store := NewStore(WithClock(func() time.Time { return base.Add(time.Hour) }))
	for i := 0; i < 3; i++ {
		store.Ingest(sampleAt("n1", base.Add(time.Duration(i)*time.Second)))
	}
	recent := store.Recent("n1", 2)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp.Before(recent[1].Timestamp))
}

func TestStoreWindowFiltersByDuration(t *testing.T) {
	now := time.Now()
	store := NewStore(WithClock(func() time.Time { return now }))
	store.Ingest(sampleAt("n1", now.Add(-2*time.Hour)))
	store.Ingest(sampleAt("n1", now.Add(-time.Minute)))

	win := store.Window("n1", time.Hour)
	require.Len(t, win, 1)
	assert.Equal(t, now.Add(-time.Minute), win[0].Timestamp)
}

func TestStoreAllLatestOnePerNode(t *testing.T) {
	now := time.Now()
	store := NewStore(WithClock(func() time.Time { return now }))
	store.Ingest(sampleAt("n1", now.Add(-time.Minute)))
	store.Ingest(sampleAt("n1", now))
	store.Ingest(sampleAt("n2", now))

	latest := store.AllLatest()
	require.Len(t, latest, 2)
	assert.Equal(t, now, latest["n1"].Timestamp)
}

func TestStoreLateArrivalClampedToNow(t *testing.T) {
	now := time.Now()
	store := NewStore(WithClock(func() time.Time { return now }))
	store.Ingest(sampleAt("n1", now.Add(time.Hour)))
	all := store.All("n1")
	require.Len(t, all, 1)
	assert.Equal(t, now, all[0].Timestamp)
}

func TestStorePruneRemovesStaleNodes(t *testing.T) {
	now := time.Now()
	cur := now
	store := NewStore(WithRetention(time.Hour), WithClock(func() time.Time { return cur }))
	store.Ingest(sampleAt("n1", now))

	cur = now.Add(2 * time.Hour)
	store.Prune()

	assert.Empty(t, store.NodeIDs())
}
