// Package bootimage stages pending El Torito entries, tracks how many
// have been attached to the image tree this session, manages the non-MBR
// system-area boot slots (MIPS, SPARC), and derives the patch-flag bitset
// that drives isolinux/GRUB2/isohybrid boot-info patching at write time.
// Catalog marshaling itself belongs to the image tree library.
package bootimage

import (
	"fmt"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/imagetree"
)

// Platform is the El Torito platform id byte.
type Platform byte

const (
	PlatformBIOS    Platform = 0x00
	PlatformPowerPC Platform = 0x01
	PlatformMac     Platform = 0x02
	PlatformEFI     Platform = 0xEF
)

// Emulation is the El Torito media emulation type.
type Emulation byte

const (
	EmulationNone      Emulation = 0x00
	EmulationFloppy12  Emulation = 0x01
	EmulationFloppy144 Emulation = 0x02
	EmulationFloppy288 Emulation = 0x03
	EmulationHardDisk  Emulation = 0x04
)

// PatchFlag bits. The bit layout leaves the process with the image, so it
// stays stable.
type PatchFlag uint16

const (
	PatchBootInfoTable PatchFlag = 1 << 0
	PatchIsohybridMBR  PatchFlag = 1 << 1
	// bits 2-7 reserved for EFI/HFS+ patch variants.
	PatchEFIHFSBase    PatchFlag = 1 << 2
	PatchAPM           PatchFlag = 1 << 8
	PatchGRUB2BootInfo PatchFlag = 1 << 9
)

const (
	maxLoadSize512Units = 65535
	defaultCatalogName  = "boot.cat"
)

// Entry is one El Torito boot image, staged or already attached.
type Entry struct {
	BootFilePath     string
	CatalogPath      string
	Platform         Platform
	Emulation        Emulation
	LoadSize512      int // 512-byte units
	IDString         [28]byte
	SelectionCrit    [20]byte
	PatchFlags       PatchFlag
	HasBootInfoTable bool

	// recordedLBA is filled once the image generator places this entry's
	// binary, needed by GRUB2 isolinux detection.
	recordedLBA int64
}

// Manager holds pending and attached boot images for one engine run.
type Manager struct {
	sink *diag.Sink

	pending  []*Entry
	attached []*Entry
}

// New builds an empty Manager reporting through sink (may be nil).
func New(sink *diag.Sink) *Manager {
	return &Manager{sink: sink}
}

// Stage queues an Entry for attachment, applying the EFI default and
// load-size clamp policies up front so AttachNext only needs to deal with
// replacement/rename semantics.
func (m *Manager) Stage(e *Entry, fileSizeBytes int64) {
	if e.Platform == PlatformEFI && e.Emulation == EmulationNone {
		e.LoadSize512 = ceilDiv(fileSizeBytes, 512)
	}
	if e.LoadSize512 > maxLoadSize512Units {
		e.LoadSize512 = maxLoadSize512Units
		if m.sink != nil {
			m.sink.Record(diag.WARNING, "bootimage",
				fmt.Sprintf("boot image %s clamped to 65535 blocks", e.BootFilePath), 0)
		}
	}
	m.pending = append(m.pending, e)
}

func ceilDiv(n int64, d int64) int {
	if n <= 0 {
		return 0
	}
	return int((n + d - 1) / d)
}

// AttachNext attaches the oldest pending Entry to tree.
//
// If the catalog path is empty it is derived from the binary path's
// directory with filename boot.cat. The first attachment replaces any
// pre-existing boot image unless keepExisting was chosen; attachment #2+
// is additive. On the first attachment, when the catalog node already
// exists in the tree and doOverwrite is false, the attachment is rejected;
// with doOverwrite the catalog node is removed and re-created. Later
// attachments do not check the catalog node.
func (m *Manager) AttachNext(tree imagetree.Tree, keepExisting, doOverwrite bool) (*Entry, error) {
	if len(m.pending) == 0 {
		return nil, diag.New(diag.KindProgramInvariant, "AttachNext called with no pending boot images")
	}
	e := m.pending[0]

	if e.CatalogPath == "" {
		e.CatalogPath = catalogPathFor(e.BootFilePath)
	}

	first := len(m.attached) == 0
	if first && tree.HasNode(e.CatalogPath) {
		if !doOverwrite {
			return nil, diag.New(diag.KindPolicy, "boot catalog "+e.CatalogPath+" already exists").
				WithHint("enable catalog overwrite to replace it")
		}
		tree.RemoveNode(e.CatalogPath)
	}

	m.pending = m.pending[1:]
	img := toLibraryImage(e)

	if first && !keepExisting {
		tree.SetFirstBootImage(img)
	} else {
		tree.AddBootImage(img)
	}

	m.attached = append(m.attached, e)
	return e, nil
}

func catalogPathFor(bootFilePath string) string {
	dir := "/"
	for i := len(bootFilePath) - 1; i >= 0; i-- {
		if bootFilePath[i] == '/' {
			dir = bootFilePath[:i+1]
			break
		}
	}
	return dir + defaultCatalogName
}

func toLibraryImage(e *Entry) imagetree.EltoritoImage {
	return imagetree.EltoritoImage{
		BootFile:         e.BootFilePath,
		CatalogFile:      e.CatalogPath,
		LoadSize:         e.LoadSize512,
		PlatformID:       byte(e.Platform),
		PatchFlags:       uint16(e.PatchFlags),
		IDString:         e.IDString,
		SelectionCrit:    e.SelectionCrit,
		EmulationType:    byte(e.Emulation),
		HasBootInfoTable: e.PatchFlags&PatchBootInfoTable != 0,
	}
}

// AttachedCount reports how many boot images were attached this session.
func (m *Manager) AttachedCount() int { return len(m.attached) }

// Pending returns the still-queued entries, oldest first.
func (m *Manager) Pending() []*Entry { return append([]*Entry(nil), m.pending...) }

// DetectIsohybrid reads bytes 64..67 of the boot image; signature
// FB C0 78 70 marks it isohybrid-ready.
func DetectIsohybrid(bootImage []byte) bool {
	if len(bootImage) < 68 {
		return false
	}
	sig := bootImage[64:68]
	return sig[0] == 0xFB && sig[1] == 0xC0 && sig[2] == 0x78 && sig[3] == 0x70
}

// DetectGRUB2IsolinuxPatch checks the four-byte little-endian word at
// offset 2548, which encodes (lba*4)+5; a match against the boot image's
// recorded LBA confirms GRUB2 boot-info patching.
func DetectGRUB2IsolinuxPatch(bootImage []byte, recordedLBA int64) bool {
	const offset = 2548
	if len(bootImage) < offset+4 {
		return false
	}
	word := uint32(bootImage[offset]) |
		uint32(bootImage[offset+1])<<8 |
		uint32(bootImage[offset+2])<<16 |
		uint32(bootImage[offset+3])<<24
	return int64(word) == recordedLBA*4+5
}

// ResolvePatchFlags computes the patch-flag bitset for an entry, given
// the boot image bytes and its recorded placement LBA.
func ResolvePatchFlags(e *Entry, bootImage []byte, bootInfoTableRequested bool) PatchFlag {
	var flags PatchFlag
	if bootInfoTableRequested {
		flags |= PatchBootInfoTable
	}
	if DetectIsohybrid(bootImage) {
		flags |= PatchIsohybridMBR
	}
	if DetectGRUB2IsolinuxPatch(bootImage, e.recordedLBA) {
		flags |= PatchGRUB2BootInfo
	}
	return flags
}

// SetRecordedLBA records where the image generator placed e's binary, used
// by ResolvePatchFlags' GRUB2 detection.
func (e *Entry) SetRecordedLBA(lba int64) { e.recordedLBA = lba }

// Non-MBR system-area slots. MIPS volume-header entries and the SPARC
// disc label occupy system-area slots of their own and coexist with any
// attached El Torito entries.

// AddMIPSBootFile appends path to the big-endian MIPS volume header boot
// file list. The header holds at most 15 entries; overflow surfaces as a
// Bounds error.
func (m *Manager) AddMIPSBootFile(tree imagetree.Tree, path string) error {
	if err := tree.AddMIPSBootFile(path); err != nil {
		return diag.Wrap(diag.KindBounds, "add MIPS boot file "+path, err)
	}
	return nil
}

// SetMIPSLittleEndianBootFile stages the single little-endian MIPS boot
// file. Unlike the big-endian list, later calls replace the earlier one.
func (m *Manager) SetMIPSLittleEndianBootFile(tree imagetree.Tree, path string) {
	tree.SetMIPSLittleEndianBootFile(path)
}

// SetSPARCDiscLabel installs the SPARC disc label and its grub2 core node.
func (m *Manager) SetSPARCDiscLabel(tree imagetree.Tree, label, corePath string) {
	tree.SetSPARCDiscLabel(label)
	if corePath != "" {
		tree.SetGRUB2SPARCCore(corePath)
	}
}
