package mediacheck

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

// MD5TagType is the tag_type field of a recorded MD5 tag.
type MD5TagType int

const (
	TagTypeSession             MD5TagType = 1
	TagTypeSuperblock          MD5TagType = 2
	TagTypeTree                MD5TagType = 3
	TagTypeRelocatedSuperblock MD5TagType = 4
)

// md5TagSize is the on-media tag layout this engine decodes: a 1-byte
// type, little-endian uint32 range-start/range-size/next-tag fields, and
// a trailing 16-byte MD5 digest.
const md5TagSize = 1 + 3*4 + 16

// MD5Tag is one decoded on-media MD5 tag.
type MD5Tag struct {
	Type            MD5TagType
	Position        int64
	RangeStart      int64
	RangeSize       int64
	NextTagPosition int64
	Hash            [16]byte
}

// DecodeMD5Tag attempts to decode a tag starting at the beginning of buf.
// It returns ok=false if buf is too short or the type byte is not one of
// the four recognized tag types.
func DecodeMD5Tag(buf []byte, position int64) (MD5Tag, bool) {
	if len(buf) < md5TagSize {
		return MD5Tag{}, false
	}
	t := MD5TagType(buf[0])
	switch t {
	case TagTypeSession, TagTypeSuperblock, TagTypeTree, TagTypeRelocatedSuperblock:
	default:
		return MD5Tag{}, false
	}
	tag := MD5Tag{
		Type:            t,
		Position:        position,
		RangeStart:      int64(binary.LittleEndian.Uint32(buf[1:5])),
		RangeSize:       int64(binary.LittleEndian.Uint32(buf[5:9])),
		NextTagPosition: int64(binary.LittleEndian.Uint32(buf[9:13])),
	}
	copy(tag.Hash[:], buf[13:29])
	return tag, true
}

// MD5ChainState is the per-run chain state: running hash context, current
// range start, expected next tag LBA, and the three sticky flags the
// chain-recognition algorithm needs.
type MD5ChainState struct {
	Hash             hash.Hash
	MD5Start         int64
	NextTagPosition  int64
	ChainBroken      bool
	InTrackGap       bool
	WasSuperblockTag bool
}

// NewMD5ChainState builds a chain state starting at md5Start (normally the
// scan's MinLBA rounded down to a 32-block boundary).
func NewMD5ChainState(md5Start int64) *MD5ChainState {
	return &MD5ChainState{Hash: md5.New(), MD5Start: md5Start}
}

// processMD5Tags scans data (the bytes just read at lba) for MD5 tags
// and, for each one found, advances the chain state and appends the
// resulting Spot.
func (e *Engine) processMD5Tags(job CheckJob, lba int64, data []byte, spots *SpotList) {
	const blockSize = 2048
	for off := 0; off+blockSize <= len(data); off += blockSize {
		blockLBA := lba + int64(off/blockSize)
		tag, ok := DecodeMD5Tag(data[off:off+blockSize], blockLBA)
		if !ok {
			continue
		}
		e.consumeTag(tag, blockLBA, spots)
	}
}

// consumeTag applies one decoded tag against md5State. Superblock tags
// are valid below md5Start+32 or inside a track gap; relocated-superblock
// tags only below LBA 32; tree tags only after a superblock tag; session
// tags close the chain.
func (e *Engine) consumeTag(tag MD5Tag, lba int64, spots *SpotList) {
	st := e.md5State

	switch tag.Type {
	case TagTypeSuperblock:
		if !(lba < st.MD5Start+32 || st.InTrackGap) {
			return
		}
		st.WasSuperblockTag = true
	case TagTypeRelocatedSuperblock:
		if lba >= 32 {
			return
		}
		st.WasSuperblockTag = true
	case TagTypeTree:
		if !st.WasSuperblockTag {
			return
		}
	case TagTypeSession:
		// handled below; closes the chain regardless of WasSuperblockTag.
	}

	if tag.RangeStart != st.MD5Start {
		// A range-start disagreement leaves the tag unconsumed and
		// breaks the chain.
		st.RecordChainBreak(e.sink, st.MD5Start, tag.RangeStart)
		return
	}

	candidate := finalizeClone(st.Hash)
	switch {
	case tag.RangeSize <= 0:
		e.emitMD5Spot(spots, lba, diag.WARNING, "MD5 tag area corrupted", true)
	case candidate != tag.Hash:
		e.emitMD5Spot(spots, lba, diag.WARNING, "MD5 mismatch", true)
	default:
		e.emitMD5Spot(spots, lba, diag.UPDATE, "MD5 match", false)
	}

	if tag.Type == TagTypeSession {
		st.MD5Start = nextBoundary32(st.MD5Start + tag.RangeSize)
		st.InTrackGap = true
	}
	st.NextTagPosition = tag.NextTagPosition
}

func (e *Engine) emitMD5Spot(spots *SpotList, lba int64, sev diag.Severity, msg string, broken bool) {
	quality := QualityMD5Match
	if broken {
		quality = QualityMD5Mismatch
		e.md5State.ChainBroken = true
	}
	spots.Append(Spot{StartLBA: lba, BlockCount: 1, Quality: quality})
	if e.sink != nil {
		e.sink.Record(sev, "mediacheck", msg, 0)
	}
}

// ChainBreakMessage formats the range-start mismatch diagnostic.
func ChainBreakMessage(expected, found int64) string {
	return fmt.Sprintf("MD5 tag carries a different data range. Expected: %d Found: %d", expected, found)
}

// RecordChainBreak marks the chain broken and emits the WARNING for a tag
// whose range_start disagrees with the expected md5_start.
func (st *MD5ChainState) RecordChainBreak(sink *diag.Sink, expected, found int64) {
	st.ChainBroken = true
	if sink != nil {
		sink.Record(diag.WARNING, "mediacheck", ChainBreakMessage(expected, found), 0)
	}
}

func nextBoundary32(lba int64) int64 {
	const align = 32
	if lba%align == 0 {
		return lba
	}
	return (lba/align + 1) * align
}

// finalizeClone clones h's internal state via the encoding.BinaryMarshaler
// hook md5.digest implements, finalizes the clone, and returns its digest
// without disturbing the original running hash.
func finalizeClone(h hash.Hash) [16]byte {
	type binaryMarshaler interface {
		MarshalBinary() ([]byte, error)
	}
	type binaryUnmarshaler interface {
		UnmarshalBinary([]byte) error
	}

	var out [16]byte
	marshaler, ok1 := h.(binaryMarshaler)
	if !ok1 {
		copy(out[:], h.Sum(nil))
		return out
	}
	state, err := marshaler.MarshalBinary()
	if err != nil {
		copy(out[:], h.Sum(nil))
		return out
	}
	clone := md5.New()
	if unmarshaler, ok2 := clone.(binaryUnmarshaler); ok2 {
		if err := unmarshaler.UnmarshalBinary(state); err == nil {
			copy(out[:], clone.Sum(nil))
			return out
		}
	}
	copy(out[:], h.Sum(nil))
	return out
}
