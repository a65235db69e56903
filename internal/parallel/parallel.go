// Package parallel provides the loop fan-out used by the CPU kernels.
package parallel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Config controls how For splits a loop.
type Config struct {
	Enabled      bool
	NumWorkers   int // upper bound on concurrent chunks
	MinChunkSize int // smallest chunk handed to a goroutine
}

// DefaultConfig sizes the worker count from the physical core count reported
// by cpuid, falling back to runtime.NumCPU when detection fails.
func DefaultConfig() Config {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential returns a config that never spawns goroutines.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// For calls f(i) for every i in [0, n) and returns once all calls have
// returned. Loops shorter than two chunks run on the calling goroutine.
// Otherwise [0, n) is cut into at most NumWorkers contiguous chunks; the
// caller runs the first one itself.
func For(n int, f func(i int), cfg Config) {
	run := func(from, to int) {
		for i := from; i < to; i++ {
			f(i)
		}
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*cfg.MinChunkSize {
		run(0, n)
		return
	}

	chunk := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	var wg sync.WaitGroup
	for from := chunk; from < n; from += chunk {
		to := min(from+chunk, n)
		wg.Go(func() { run(from, to) })
	}
	run(0, min(chunk, n))
	wg.Wait()
}

// CPUName returns the processor brand string, or "unknown".
func CPUName() string {
	if cpuid.CPU.BrandName == "" {
		return "unknown"
	}
	return cpuid.CPU.BrandName
}
