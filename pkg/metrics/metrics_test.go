package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDownload(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDownload("video", 1000, nil)
	m.RecordDownload("video", 500, nil)
	m.RecordDownload("cover", 0, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Downloads.WithLabelValues("video", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads.WithLabelValues("cover", "error")))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.DownloadBytes.WithLabelValues("video")))
}

func TestRecordEvictionAndStorage(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordEviction(100)
	m.RecordEviction(50)
	m.SetStorageBytes(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evictions))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.EvictedBytes))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.StorageBytes))
}

func TestRecordLookup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordLookup("detail", "hit", 0.01)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("detail", "hit")))

	count, err := testutil.GatherAndCount(reg, "sharetok_lookup_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
