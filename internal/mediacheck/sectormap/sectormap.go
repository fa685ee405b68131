// Package sectormap persists verification state between runs: a sector
// map file keyed by (min_lba, max_lba) holding a bitmap of validated
// sectors plus a TOC-info header string. The bitmap body is gzip
// compressed; the header stays plain JSON so it can be inspected without
// decompressing.
package sectormap

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Header is the sidecar's JSON metadata, keyed by the (min_lba, max_lba)
// range it covers plus a TOC-info string.
type Header struct {
	MinLBA  int64  `json:"minLba"`
	MaxLBA  int64  `json:"maxLba"`
	TOCInfo string `json:"tocInfo"`
}

// Map is an in-memory bitmap of validated sectors over [MinLBA, MaxLBA).
type Map struct {
	Header Header
	bitmap []byte
}

// New allocates a Map covering [minLBA, maxLBA), all sectors initially
// unvalidated.
func New(minLBA, maxLBA int64, tocInfo string) *Map {
	n := maxLBA - minLBA
	if n < 0 {
		n = 0
	}
	return &Map{
		Header: Header{MinLBA: minLBA, MaxLBA: maxLBA, TOCInfo: tocInfo},
		bitmap: make([]byte, (n+7)/8),
	}
}

// Mark records lba as validated.
func (m *Map) Mark(lba int64) {
	idx := lba - m.Header.MinLBA
	if idx < 0 || idx/8 >= int64(len(m.bitmap)) {
		return
	}
	m.bitmap[idx/8] |= 1 << uint(idx%8)
}

// MarkRange records every sector in [startLBA, endLBA) as validated.
func (m *Map) MarkRange(startLBA, endLBA int64) {
	for lba := startLBA; lba < endLBA; lba++ {
		m.Mark(lba)
	}
}

// IsValid reports whether lba was previously marked.
func (m *Map) IsValid(lba int64) bool {
	idx := lba - m.Header.MinLBA
	if idx < 0 || idx/8 >= int64(len(m.bitmap)) {
		return false
	}
	return m.bitmap[idx/8]&(1<<uint(idx%8)) != 0
}

// Save writes the header length, JSON header, and the gzip-compressed
// bitmap to w.
func (m *Map) Save(w io.Writer) error {
	headerJSON, err := json.Marshal(m.Header)
	if err != nil {
		return fmt.Errorf("sectormap: marshal header: %w", err)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(headerJSON)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("sectormap: write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("sectormap: write header: %w", err)
	}

	gw := gzip.NewWriter(w)
	if _, err := gw.Write(m.bitmap); err != nil {
		return fmt.Errorf("sectormap: write bitmap: %w", err)
	}
	return gw.Close()
}

// Load reads a Map previously written by Save.
func Load(r io.Reader) (*Map, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("sectormap: read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint32(lenBuf[:])

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("sectormap: read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, fmt.Errorf("sectormap: unmarshal header: %w", err)
	}

	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("sectormap: open gzip reader: %w", err)
	}
	defer gr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gr); err != nil {
		return nil, fmt.Errorf("sectormap: read bitmap: %w", err)
	}

	return &Map{Header: h, bitmap: buf.Bytes()}, nil
}
