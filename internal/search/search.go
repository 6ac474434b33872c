// Package search recovers an unknown Steam identity by trial-decoding a
// sample container across a bounded range of candidate account ids.
package search

import (
	"context"
	"crypto/aes"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kenneth/save-resign-gateway/internal/codec"
	"github.com/kenneth/save-resign-gateway/internal/identity"
	"github.com/kenneth/save-resign-gateway/internal/metrics"
)

const (
	// DefaultBase is the first individual account SteamID64 of the public
	// universe; candidate ids are offsets from it.
	DefaultBase = 76561197960265729

	// DefaultRange covers the full 32-bit account id space.
	DefaultRange = uint64(1) << 32

	// progressEvery controls how often the progress callback fires,
	// measured in decode attempts across all workers.
	progressEvery = 10_000_000
)

// Progress receives the completed fraction of the range and a short textual
// label suitable for display.
type Progress func(fraction float64, label string)

// Options tunes a credential search. Zero values select the defaults.
type Options struct {
	Base       uint64
	Range      uint64
	Workers    int
	OnProgress Progress

	// Metrics, when set, receives the attempt count and wall time of the
	// search.
	Metrics *metrics.Metrics
}

// Finder runs credential searches against a codec and key deriver.
type Finder struct {
	codec   codec.Codec
	deriver *identity.KeyDeriver
}

// NewFinder creates a Finder.
func NewFinder(c codec.Codec, d *identity.KeyDeriver) *Finder {
	return &Finder{codec: c, deriver: d}
}

// FindSteamIdentity scans candidate ids base+0 .. base+range-1 in parallel
// and returns the first one whose derived key yields a structurally valid
// decode of sample. Per-candidate decode failures are negative results, not
// errors. The boolean reports whether a match was found; a context
// cancellation is returned as an error with no match.
func (f *Finder) FindSteamIdentity(ctx context.Context, sample []byte, opts Options) (uint64, bool, error) {
	if len(sample)%aes.BlockSize != 0 {
		return 0, false, fmt.Errorf("sample length %d is not a multiple of %d: %w",
			len(sample), aes.BlockSize, codec.ErrFormat)
	}

	base := opts.Base
	if base == 0 {
		base = DefaultBase
	}
	span := opts.Range
	if span == 0 {
		span = DefaultRange
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}
	if uint64(workers) > span {
		workers = int(span)
	}

	searchCtx, stop := context.WithCancel(ctx)
	defer stop()

	start := time.Now()

	var (
		attempts atomic.Uint64
		found    atomic.Bool
		winner   atomic.Uint64
		wg       sync.WaitGroup
	)

	report := func() {
		if opts.OnProgress == nil {
			return
		}
		done := attempts.Load()
		fraction := float64(done) / float64(span)
		if fraction > 1 {
			fraction = 1
		}
		opts.OnProgress(fraction, fmt.Sprintf("%d%%", int(fraction*100)))
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset uint64) {
			defer wg.Done()
			for ctr := offset; ctr < span; ctr += uint64(workers) {
				if found.Load() || searchCtx.Err() != nil {
					return
				}
				key := f.deriver.DeriveSteam(base + ctr)
				if _, err := f.codec.Decode(sample, [32]byte(key)); err == nil {
					// First match wins; in-flight attempts finish
					// naturally but no new work is scheduled.
					if found.CompareAndSwap(false, true) {
						winner.Store(base + ctr)
					}
					stop()
					return
				}
				if n := attempts.Add(1); n%progressEvery == 0 {
					report()
				}
			}
		}(uint64(w))
	}
	wg.Wait()

	if opts.Metrics != nil {
		opts.Metrics.AddSearchAttempts(attempts.Load())
		opts.Metrics.RecordSearchDuration(time.Since(start))
	}

	if found.Load() {
		report()
		return winner.Load(), true, nil
	}
	report()
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}
