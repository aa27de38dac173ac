package perf

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	cmdUtil "github.com/cyyever/largedict/cmd/util"
	"github.com/cyyever/largedict/lib/common"
	"github.com/cyyever/largedict/lib/largedict"
	"github.com/cyyever/largedict/lib/storage"
	"github.com/goccy/go-json"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger(common.LoggerCmd)

// Names of the benchmark phases in execution order
var Phases = []string{"set", "flush", "get", "get-hot", "mixed", "delete"}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config describes one benchmark run
type Config struct {
	Backend      string
	Path         string
	Keys         int
	ValueSizeKB  int
	Threads      int
	Watermark    int
	WriteWorkers int
	ReadWorkers  int
	Skip         []string
}

// DefaultConfig returns the flag defaults
func DefaultConfig() Config {
	return Config{
		Backend:      cmdUtil.BackendDisk,
		Keys:         1000,
		ValueSizeKB:  64,
		Threads:      8,
		Watermark:    largedict.DefaultWatermark,
		WriteWorkers: largedict.DefaultWriteWorkers,
		ReadWorkers:  largedict.DefaultReadWorkers,
	}
}

// Validate checks the counts of the configuration
func (c Config) Validate() error {
	switch {
	case c.Keys <= 0:
		return fmt.Errorf("keys must be positive, got %d", c.Keys)
	case c.Threads <= 0:
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	case c.ValueSizeKB < 0:
		return fmt.Errorf("value size must not be negative, got %d", c.ValueSizeKB)
	}
	return nil
}

func (c Config) skipped(phase string) bool {
	return slices.Contains(c.Skip, phase)
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

// Result holds the latency figures of one phase
type Result struct {
	Phase     string
	Skipped   bool
	Ops       int64
	Errors    int64
	Elapsed   time.Duration
	Mean      time.Duration
	P50       time.Duration
	P99       time.Duration
	Max       time.Duration
	OpsPerSec float64
}

func newResult(phase string, timer metrics.Timer, errs metrics.Counter, elapsed time.Duration) Result {
	snap := timer.Snapshot()
	ps := snap.Percentiles([]float64{0.5, 0.99})
	r := Result{
		Phase:   phase,
		Ops:     snap.Count(),
		Errors:  errs.Count(),
		Elapsed: elapsed,
		Mean:    time.Duration(snap.Mean()),
		P50:     time.Duration(ps[0]),
		P99:     time.Duration(ps[1]),
		Max:     time.Duration(snap.Max()),
	}
	if elapsed > 0 {
		r.OpsPerSec = float64(r.Ops) / elapsed.Seconds()
	}
	return r
}

// printResult prints the result of a benchmark phase in a formatted way
func printResult(out io.Writer, r Result) {
	if r.Skipped {
		_, _ = fmt.Fprintf(out, "%-10sskipped\n", r.Phase)
		return
	}
	_, _ = fmt.Fprintf(out, "%-10s%8d ops  mean %-12s p50 %-12s p99 %-12s %10.0f ops/sec  (%d errors)\n",
		r.Phase, r.Ops, r.Mean, r.P50, r.P99, r.OpsPerSec, r.Errors)
}

// --------------------------------------------------------------------------
// Benchmark
// --------------------------------------------------------------------------

type bench struct {
	cfg      Config
	dict     *largedict.LargeDict[int, []byte]
	value    []byte
	registry metrics.Registry
}

// Run executes all phases not skipped by cfg, prints the results and the
// dict statistics to out and returns the results
func Run(cfg Config, out io.Writer) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, ephemeral, err := cmdUtil.OpenBackend(cfg.Backend, cfg.Path)
	if err != nil {
		return nil, err
	}

	dict, err := largedict.New(largedict.Options[int, []byte]{
		Backend:      backend,
		Watermark:    cfg.Watermark,
		WriteWorkers: cfg.WriteWorkers,
		ReadWorkers:  cfg.ReadWorkers,
		ValueCodec:   storage.BytesCodec{},
		Name:         "perf",
	})
	if err != nil {
		_ = backend.Destroy()
		return nil, err
	}
	defer func() {
		if err := dict.Shutdown(); err != nil {
			log.Warningf("shutdown: %v", err)
		}
		if ephemeral {
			if err := backend.Destroy(); err != nil {
				log.Warningf("removing %s: %v", backend.Location(""), err)
			}
		}
	}()

	b := &bench{
		cfg:      cfg,
		dict:     dict,
		value:    make([]byte, cfg.ValueSizeKB*1024),
		registry: metrics.NewRegistry(),
	}
	defer b.registry.UnregisterAll()
	for i := range b.value {
		b.value[i] = byte(i)
	}

	_, _ = fmt.Fprintln(out, "Performance testing tool for largedict")
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Configuration:")
	_, _ = fmt.Fprintf(out, "Backend: %s (%s)\n", cfg.Backend, backend.Location(""))
	_, _ = fmt.Fprintf(out, "Keys: %d, Value size: %d KB, Threads: %d, Watermark: %d\n",
		cfg.Keys, cfg.ValueSizeKB, cfg.Threads, cfg.Watermark)
	_, _ = fmt.Fprintln(out)

	results := make([]Result, 0, len(Phases))
	for _, phase := range Phases {
		var r Result
		if cfg.skipped(phase) {
			r = Result{Phase: phase, Skipped: true}
		} else {
			r = b.runPhase(phase)
		}
		results = append(results, r)
		printResult(out, r)
	}

	stats, err := json.MarshalIndent(dict.Stats(), "", "  ")
	if err != nil {
		return results, err
	}
	_, _ = fmt.Fprintf(out, "\nDict statistics:\n%s\n", stats)
	return results, nil
}

func (b *bench) runPhase(phase string) Result {
	timer := metrics.GetOrRegisterTimer(phase, b.registry)
	errs := metrics.GetOrRegisterCounter(phase+".errors", b.registry)

	record := func(start time.Time, err error) {
		timer.UpdateSince(start)
		if err != nil && !errors.Is(err, largedict.ErrKeyNotFound) {
			errs.Inc(1)
			log.Debugf("(%s) - %v", phase, err)
		}
	}

	start := time.Now()
	switch phase {
	case "set":
		b.eachKey(func(key int) {
			t := time.Now()
			record(t, b.dict.Set(key, b.value))
		})
	case "flush":
		t := time.Now()
		record(t, b.dict.FlushAll())
	case "get":
		b.eachKey(func(key int) {
			t := time.Now()
			_, err := b.dict.Get(key)
			record(t, err)
		})
	case "get-hot":
		hot := max(1, min(b.cfg.Watermark, b.cfg.Keys))
		b.eachKey(func(key int) {
			t := time.Now()
			_, err := b.dict.Get(key % hot)
			record(t, err)
		})
	case "mixed":
		b.eachKey(func(i int) {
			key := rand.Intn(b.cfg.Keys)
			t := time.Now()
			var err error
			switch i % 3 {
			case 0:
				err = b.dict.Set(key, b.value)
			case 1:
				_, err = b.dict.Get(key)
			case 2:
				err = b.dict.Delete(key)
			}
			record(t, err)
		})
	case "delete":
		b.eachKey(func(key int) {
			t := time.Now()
			record(t, b.dict.Delete(key))
		})
	}
	return newResult(phase, timer, errs, time.Since(start))
}

// eachKey calls fn once for every key, spread over the configured threads
func (b *bench) eachKey(fn func(key int)) {
	var wg sync.WaitGroup
	for tid := 0; tid < b.cfg.Threads; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			for key := tid; key < b.cfg.Keys; key += b.cfg.Threads {
				fn(key)
			}
		}(tid)
	}
	wg.Wait()
}

// --------------------------------------------------------------------------
// Export
// --------------------------------------------------------------------------

// WriteCSV writes benchmark results to a CSV file
func WriteCSV(csvPath string, results []Result, cfg Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"Phase", "Skipped", "Ops", "Errors", "ElapsedNs", "MeanNs", "P50Ns", "P99Ns", "MaxNs", "OpsPerSec",
		"Backend", "Keys", "ValueSizeKB", "Threads", "Watermark", "WriteWorkers", "ReadWorkers",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		row := []string{
			r.Phase,
			strconv.FormatBool(r.Skipped),
			strconv.FormatInt(r.Ops, 10),
			strconv.FormatInt(r.Errors, 10),
			strconv.FormatInt(r.Elapsed.Nanoseconds(), 10),
			strconv.FormatInt(r.Mean.Nanoseconds(), 10),
			strconv.FormatInt(r.P50.Nanoseconds(), 10),
			strconv.FormatInt(r.P99.Nanoseconds(), 10),
			strconv.FormatInt(r.Max.Nanoseconds(), 10),
			fmt.Sprintf("%.0f", r.OpsPerSec),
			cfg.Backend,
			strconv.Itoa(cfg.Keys),
			strconv.Itoa(cfg.ValueSizeKB),
			strconv.Itoa(cfg.Threads),
			strconv.Itoa(cfg.Watermark),
			strconv.Itoa(cfg.WriteWorkers),
			strconv.Itoa(cfg.ReadWorkers),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for phase %s: %w", r.Phase, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
