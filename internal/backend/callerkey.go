package backend

import (
	"bytes"
	"runtime"
)

// CallerKey derives a stable per-goroutine identity string — the Go
// stand-in for the std::thread::id key used by
// original_source/inference_core/trt_core/src/trt_core.cpp's per-thread
// execution-context map. Go exposes no public goroutine identity, so
// this parses the "goroutine N [...]" header runtime.Stack prints for
// the calling goroutine, the same technique the wider Go ecosystem
// reaches for in the absence of a stdlib goroutine-id API.
func CallerKey() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	line := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(line, ' '); i >= 0 {
		line = line[:i]
	}
	return string(line)
}
