package largedict

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cyyever/largedict/lib/largedict/internal"
	"github.com/cyyever/largedict/lib/util"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// dictMetrics holds the counters of one LargeDict in its own metrics.Set,
// so several instances never share series
type dictMetrics struct {
	set *metrics.Set

	sets          *metrics.Counter
	gets          *metrics.Counter
	hits          *metrics.Counter
	loads         *metrics.Counter
	saves         *metrics.Counter
	deletes       *metrics.Counter
	evictions     *metrics.Counter
	superseded    *metrics.Counter
	storageErrors *metrics.Counter

	blobSizes *util.SizeHistogram
}

func newDictMetrics[K comparable, V any](d *LargeDict[K, V]) *dictMetrics {
	set := metrics.NewSet()
	name := func(metric string) string {
		return fmt.Sprintf("largedict_%s{dict=%q}", metric, d.name)
	}

	m := &dictMetrics{
		set:           set,
		sets:          set.NewCounter(name("sets_total")),
		gets:          set.NewCounter(name("gets_total")),
		hits:          set.NewCounter(name("memory_hits_total")),
		loads:         set.NewCounter(name("loads_total")),
		saves:         set.NewCounter(name("saves_total")),
		deletes:       set.NewCounter(name("deletes_total")),
		evictions:     set.NewCounter(name("evictions_total")),
		superseded:    set.NewCounter(name("superseded_tasks_total")),
		storageErrors: set.NewCounter(name("storage_errors_total")),
		blobSizes:     util.NewSizeHistogram(),
	}

	set.NewGauge(name("keys"), func() float64 { return float64(d.Len()) })
	set.NewGauge(name("resident_keys"), func() float64 { return float64(d.table.Count(internal.InMemory)) })
	set.NewGauge(name("watermark"), func() float64 { return float64(d.watermark.Load()) })
	set.NewGauge(name("pending_writes"), func() float64 { return float64(d.writeQ.Pending()) })
	set.NewGauge(name("pending_deletes"), func() float64 { return float64(d.deleteQ.Pending()) })
	set.NewGauge(name("pending_reads"), func() float64 { return float64(d.readQ.Pending()) })
	set.NewGauge(name("blob_size_avg_bytes"), func() float64 { return float64(m.blobSizes.AverageSize()) })

	return m
}

// --------------------------------------------------------------------------
// Stats
// --------------------------------------------------------------------------

// Stats is a point in time snapshot of a LargeDict
type Stats struct {
	Name      string         `json:"name"`
	Location  string         `json:"location"`
	Durable   bool           `json:"durable"`
	Watermark int            `json:"watermark"`
	Keys      int            `json:"keys"`
	States    map[string]int `json:"states"`

	PendingWrites  int `json:"pending_writes"`
	PendingDeletes int `json:"pending_deletes"`
	PendingReads   int `json:"pending_reads"`

	Sets          uint64 `json:"sets"`
	Gets          uint64 `json:"gets"`
	MemoryHits    uint64 `json:"memory_hits"`
	Loads         uint64 `json:"loads"`
	Saves         uint64 `json:"saves"`
	Deletes       uint64 `json:"deletes"`
	Evictions     uint64 `json:"evictions"`
	Superseded    uint64 `json:"superseded"`
	StorageErrors uint64 `json:"storage_errors"`
	SweepRuns     uint64 `json:"sweep_runs"`

	SavedBlobs     int64 `json:"saved_blobs"`
	AvgBlobSize    int64 `json:"avg_blob_size"`
	MedianBlobSize int64 `json:"median_blob_size"`
	P99BlobSize    int64 `json:"p99_blob_size"`
}

// Stats returns a snapshot of the counters and key states
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *LargeDict[K, V]) Stats() Stats {
	counts := d.table.Counts()
	states := make(map[string]int, len(counts))
	for s, n := range counts {
		states[s.String()] = n
	}

	m := d.metrics
	return Stats{
		Name:      d.name,
		Location:  d.Dir(),
		Durable:   d.durable,
		Watermark: int(d.watermark.Load()),
		Keys:      d.Len(),
		States:    states,

		PendingWrites:  d.writeQ.Pending(),
		PendingDeletes: d.deleteQ.Pending(),
		PendingReads:   d.readQ.Pending(),

		Sets:          m.sets.Get(),
		Gets:          m.gets.Get(),
		MemoryHits:    m.hits.Get(),
		Loads:         m.loads.Get(),
		Saves:         m.saves.Get(),
		Deletes:       m.deletes.Get(),
		Evictions:     m.evictions.Get(),
		Superseded:    m.superseded.Get(),
		StorageErrors: m.storageErrors.Get(),
		SweepRuns:     d.sweeper.Runs(),

		SavedBlobs:     m.blobSizes.Count(),
		AvgBlobSize:    m.blobSizes.AverageSize(),
		MedianBlobSize: m.blobSizes.MedianEstimate(),
		P99BlobSize:    m.blobSizes.PercentileEstimate(99),
	}
}

// WritePrometheus writes the metrics of this instance in Prometheus text format
func (d *LargeDict[K, V]) WritePrometheus(w io.Writer) {
	d.metrics.set.WritePrometheus(w)
}
