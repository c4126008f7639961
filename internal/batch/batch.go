// Package batch drives multi-item pipeline stages through bounded-size
// chunks. The sync pipeline runs under a small fixed memory allocation while
// grants × users can be orders of magnitude larger than one pass can hold,
// so chunking trades wall-clock time for bounded peak memory and keeps burst
// writes away from the datastore.
package batch

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/oversight-hq/oversight/internal/logx"
)

// Options tunes chunk size, pacing, and the memory-reclamation hint.
type Options struct {
	Size  int           // items per chunk
	Delay time.Duration // awaited pause between chunks

	// Every ReclaimEvery chunks, if HeapAlloc exceeds ReclaimAboveBytes,
	// request that the runtime return memory to the OS. Zero values disable
	// the hint.
	ReclaimEvery      int
	ReclaimAboveBytes uint64
}

// DefaultOptions matches the allocation the pipeline is deployed with.
var DefaultOptions = Options{
	Size:              50,
	Delay:             200 * time.Millisecond,
	ReclaimEvery:      10,
	ReclaimAboveBytes: 256 << 20, // 256 MiB
}

// Run splits n items into chunks of opts.Size and calls fn(lo, hi) for each
// half-open range sequentially. Chunks never overlap and never run in
// parallel. The inter-chunk delay is a plain timed wait, cancelled by ctx.
// The first error aborts the loop.
func Run(ctx context.Context, n int, opts Options, fn func(lo, hi int) error) error {
	if opts.Size <= 0 {
		opts.Size = DefaultOptions.Size
	}

	chunk := 0
	for lo := 0; lo < n; lo += opts.Size {
		hi := lo + opts.Size
		if hi > n {
			hi = n
		}

		if err := fn(lo, hi); err != nil {
			return err
		}
		chunk++

		if opts.ReclaimEvery > 0 && chunk%opts.ReclaimEvery == 0 {
			maybeReclaim(opts.ReclaimAboveBytes)
		}

		if hi < n && opts.Delay > 0 {
			if err := sleep(ctx, opts.Delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func maybeReclaim(threshold uint64) {
	if threshold == 0 {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > threshold {
		logx.Debugf("batch: heap %d MiB over threshold, releasing memory", ms.HeapAlloc>>20)
		debug.FreeOSMemory()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
