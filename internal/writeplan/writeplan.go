// Package writeplan assembles write-side session plans: write-type
// selection (SAO/TAO), padding and alignment, system-area attachment with
// its three-source priority and MBR tolerance check, and appended
// partition layout.
package writeplan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

// WriteType is SAO (session-at-once) or TAO (track-at-once).
type WriteType int

const (
	WriteTAO WriteType = iota
	WriteSAO
)

func (w WriteType) String() string {
	if w == WriteSAO {
		return "SAO"
	}
	return "TAO"
}

// SelectWriteType picks the default write type when none was chosen: SAO
// on a blank CD, TAO on appendable media. DVD-RW sequential and DVD-R DL
// reject multi-session and demand a closed write.
func SelectWriteType(profile burnbackend.Profile, status burnbackend.DiscStatus, multisession bool) (WriteType, error) {
	if (profile == burnbackend.ProfileDVDRWSeq || profile == burnbackend.ProfileDVDRDL) && multisession {
		return 0, diag.New(diag.KindPolicy, "DVD-RW sequential and DVD-R DL do not support -multi; a closed write is required")
	}
	isCD := profile == burnbackend.ProfileCDR || profile == burnbackend.ProfileCDRW
	if isCD && status == burnbackend.StatusBlank {
		return WriteSAO, nil
	}
	return WriteTAO, nil
}

// PaddingInput carries the quantities the padding computation needs.
type PaddingInput struct {
	Profile            burnbackend.Profile
	UserPaddingBytes   int64
	ImageBlocks        int64
	NWA                int64
	TOCEmulationActive bool
	AlignmentBlocks    int64 // 0 means "unset"
	DelegateToLibrary  bool  // libjte or explicit padding-delegation flag
	MediaBlank         bool
}

// PaddingResult is the outcome of ComputePadding: the padding in blocks,
// the image-block count adjusted for blank-media pre-NWA accounting, and
// whether the padding count goes to the image library (backend padding
// zero) instead of the burn backend.
type PaddingResult struct {
	PaddingBlocks        int64
	EffectiveImageBlocks int64
	DelegatedToLibrary   bool
}

// ComputePadding rounds the user's padding request up to whole blocks,
// extends it so a CD session reaches 300 sectors, applies TOC-emulation
// alignment, and finally extends padding until (nwa + image + padding)
// is alignment-divisible. Delegation marks the count as the image
// library's to emit; it never changes the count itself.
func ComputePadding(in PaddingInput) PaddingResult {
	padding := ceilBlocks(in.UserPaddingBytes)
	imageBlocks := in.ImageBlocks

	isCD := in.Profile == burnbackend.ProfileCDR || in.Profile == burnbackend.ProfileCDRW
	if isCD {
		if imageBlocks+padding < 300 {
			padding = 300 - imageBlocks
		}
	}

	alignment := in.AlignmentBlocks
	if in.TOCEmulationActive && alignment == 0 {
		alignment = 32
		if in.MediaBlank {
			imageBlocks += in.NWA
		}
	}

	// The alignment extension applies whether the padding is written by
	// the burn backend or delegated to the image library; only who emits
	// the padding changes, never the count.
	if alignment > 0 {
		total := in.NWA + imageBlocks + padding
		if rem := total % alignment; rem != 0 {
			padding += alignment - rem
		}
	}

	return PaddingResult{PaddingBlocks: padding, EffectiveImageBlocks: imageBlocks, DelegatedToLibrary: in.DelegateToLibrary}
}

func ceilBlocks(bytes int64) int64 {
	const blockSize = 2048
	if bytes <= 0 {
		return 0
	}
	return (bytes + blockSize - 1) / blockSize
}

const systemAreaSize = 32 * 1024

// SystemAreaSource selects where the 32 KiB system area comes from.
type SystemAreaSource int

const (
	SourceExplicitFile SystemAreaSource = iota
	SourceDevZero
	SourceLibraryReported
)

// SystemAreaRequest describes where to get the 32 KiB system-area buffer:
// an explicit file, all zeros, or the image library's reported area.
type SystemAreaRequest struct {
	Source            SystemAreaSource
	ExplicitPath      string
	LibraryReported   [systemAreaSize]byte
	PatchingRequested bool
	Isohybrid         bool // widens the MBR-partition-1 tolerance
	ImageTotalBlocks  int64
}

// BuildSystemArea resolves the 32 KiB system-area buffer and, when the
// library-reported source is used with patching requested, validates that
// MBR partition 1 ends at the image end. The match must be exact for
// basic patching and within 63*256 sectors for isohybrid patching; a
// misaligned MBR disables patching rather than corrupting it.
func BuildSystemArea(req SystemAreaRequest, sink *diag.Sink) (buf [systemAreaSize]byte, patchingEnabled bool, err error) {
	switch req.Source {
	case SourceExplicitFile:
		data, rerr := readSystemAreaFile(req.ExplicitPath)
		if rerr != nil {
			return buf, false, rerr
		}
		n := copy(buf[:], data)
		if n < len(data) {
			return buf, false, diag.New(diag.KindBounds, "system-area file exceeds 32 KiB")
		}
		return buf, req.PatchingRequested, nil

	case SourceDevZero:
		return buf, req.PatchingRequested, nil

	case SourceLibraryReported:
		buf = req.LibraryReported
		if !req.PatchingRequested {
			return buf, false, nil
		}
		ok := validateMBRPartition1EndsAtImageEnd(buf[:], req.ImageTotalBlocks, req.Isohybrid)
		if !ok {
			if sink != nil {
				sink.Record(diag.WARNING, "writeplan", "MBR partition 1 does not line up with the image end within tolerance; disabling boot-info patching", 0)
			}
			return buf, false, nil
		}
		return buf, true, nil
	}
	return buf, false, diag.New(diag.KindProgramInvariant, fmt.Sprintf("unknown system-area source %d", req.Source))
}

// readSystemAreaFile reads a system-area image from disk, transparently
// decompressing a .xz-suffixed source before use.
func readSystemAreaFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "read system-area file "+path, err)
	}
	if !strings.HasSuffix(path, ".xz") {
		return data, nil
	}
	xr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, diag.Wrap(diag.KindFormat, "open xz system-area file "+path, err)
	}
	// One byte past the system-area size is enough to detect oversize input.
	out, err := io.ReadAll(io.LimitReader(xr, systemAreaSize+1))
	if err != nil {
		return nil, diag.Wrap(diag.KindFormat, "decompress xz system-area file "+path, err)
	}
	return out, nil
}

// validateMBRPartition1EndsAtImageEnd reads the MBR partition-1 offset and
// length fields (bytes 454..461). Each holds a 512-byte-sector count equal
// to the 2048-byte-block LBA times 4; the comparison happens in 512-sector
// units.
func validateMBRPartition1EndsAtImageEnd(buf []byte, imageTotalBlocks int64, isohybrid bool) bool {
	if len(buf) < 462 {
		return false
	}
	offset512 := int64(binary.LittleEndian.Uint32(buf[454:458]))
	length512 := int64(binary.LittleEndian.Uint32(buf[458:462]))
	end512 := offset512 + length512

	tolerance := int64(0)
	if isohybrid {
		tolerance = 63 * 256
	}
	diff := imageTotalBlocks*4 - end512
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
