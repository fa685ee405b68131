package mediacheck

import (
	"crypto/md5"
	"hash"
)

// HashWorker computes a running MD5 over fed chunks, either inline
// (synchronous) or via a bounded producer/consumer ring (asynchronous).
type HashWorker interface {
	Feed(chunk []byte) error
	Sum() [16]byte
	Close() error
}

// syncHasher hashes inline on the reader's thread.
type syncHasher struct {
	h hash.Hash
}

// NewSyncHasher builds an inline MD5 worker.
func NewSyncHasher() HashWorker { return &syncHasher{h: md5.New()} }

func (s *syncHasher) Feed(chunk []byte) error {
	_, err := s.h.Write(chunk)
	return err
}

func (s *syncHasher) Sum() [16]byte {
	var out [16]byte
	copy(out[:], s.h.Sum(nil))
	return out
}

func (s *syncHasher) Close() error { return nil }

// asyncRingHasher hashes on its own goroutine behind a bounded channel of
// N buffers (N >= 2, capped by the configured memory budget). The
// channel's blocking send is the producer backpressure, and the channel
// itself is the only shared state, so no per-buffer state flags are
// needed.
type asyncRingHasher struct {
	chunks chan []byte
	done   chan [16]byte
	sum    [16]byte
	closed bool
}

// RingCapacity computes N for a given memory budget and chunk size,
// clamped to at least 2 buffers.
func RingCapacity(budgetBytes, chunkBytes int64) int {
	if chunkBytes <= 0 {
		return 2
	}
	n := int(budgetBytes / chunkBytes)
	if n < 2 {
		n = 2
	}
	return n
}

// NewAsyncHasher builds a worker backed by a channel of capacity
// RingCapacity(budgetBytes, chunkBytes).
func NewAsyncHasher(budgetBytes, chunkBytes int64) HashWorker {
	n := RingCapacity(budgetBytes, chunkBytes)
	a := &asyncRingHasher{
		chunks: make(chan []byte, n),
		done:   make(chan [16]byte, 1),
	}
	go a.run()
	return a
}

func (a *asyncRingHasher) run() {
	h := md5.New()
	for chunk := range a.chunks {
		h.Write(chunk)
	}
	var out [16]byte
	copy(out[:], h.Sum(nil))
	a.done <- out
}

// Feed copies chunk into the ring, blocking while every buffer is in
// flight.
func (a *asyncRingHasher) Feed(chunk []byte) error {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	a.chunks <- cp
	return nil
}

// Close signals end-of-stream, awaits worker completion, and records the
// final digest for Sum.
func (a *asyncRingHasher) Close() error {
	if a.closed {
		return nil
	}
	close(a.chunks)
	a.sum = <-a.done
	a.closed = true
	return nil
}

// Sum returns the final digest recorded by Close (Close must be called
// first).
func (a *asyncRingHasher) Sum() [16]byte {
	return a.sum
}
