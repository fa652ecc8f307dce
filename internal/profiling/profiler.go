// Package profiling wraps the runtime's pprof/trace surfaces behind the
// --profile flags, writing artifacts `go tool pprof`/`go tool trace`
// read directly.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Profiler holds the open files of in-flight CPU/trace captures so
// their cleanups can close them.
type Profiler struct {
	cpuFile   *os.File
	traceFile *os.File
}

// NewProfiler returns an idle profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// StartCPU begins CPU sampling into path. Call the returned cleanup to
// stop sampling and flush — the profile is unreadable without it.
func (p *Profiler) StartCPU(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	p.cpuFile = f

	return func() {
		pprof.StopCPUProfile()
		_ = p.cpuFile.Close()
		p.cpuFile = nil
	}, nil
}

// WriteHeap snapshots live heap objects into path, collecting garbage
// first so the snapshot shows retained memory rather than float.
func (p *Profiler) WriteHeap(path string) error {
	return p.writeProfileFile(path, "heap", func(f *os.File) error {
		runtime.GC()
		return pprof.WriteHeapProfile(f)
	})
}

// StartTrace begins execution tracing into path; the returned cleanup
// stops it.
func (p *Profiler) StartTrace(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}
	p.traceFile = f

	return func() {
		trace.Stop()
		_ = p.traceFile.Close()
		p.traceFile = nil
	}, nil
}

// WriteAllocs dumps cumulative allocation counts (not just live
// objects) into path.
func (p *Profiler) WriteAllocs(path string) error {
	return p.writeProfileFile(path, "allocs", func(f *os.File) error {
		runtime.GC()
		return pprof.Lookup("allocs").WriteTo(f, 0)
	})
}

// WriteGoroutine dumps every goroutine's stack into path — the first
// thing to read when a sync appears hung.
func (p *Profiler) WriteGoroutine(path string) error {
	return p.writeProfileFile(path, "goroutine", func(f *os.File) error {
		return pprof.Lookup("goroutine").WriteTo(f, 1)
	})
}

// WriteBlock dumps where goroutines waited on synchronization.
func (p *Profiler) WriteBlock(path string) error {
	return p.writeProfileFile(path, "block", func(f *os.File) error {
		return pprof.Lookup("block").WriteTo(f, 0)
	})
}

// writeProfileFile handles the create/write/close framing every
// point-in-time profile shares.
func (p *Profiler) writeProfileFile(path, kind string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", kind, err)
	}
	defer func() { _ = f.Close() }()

	if err := write(f); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", kind, err)
	}
	return nil
}

// MemStats reads the runtime's current memory statistics.
func MemStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}

// FormatBytes renders a byte count at its natural magnitude.
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
