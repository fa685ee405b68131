// Package imagetree defines the capability contract this engine consumes
// from the ISO 9660 tree library: opening/creating/reading an image,
// volume identifiers, El Torito entries, system area, MD5 recording, and
// attribute introspection. Tree semantics live behind this interface; the
// engine ships only the contract plus an in-memory stand-in for tests.
package imagetree

import "time"

// VolumeIdentifiers mirrors the PVD string fields the tree library
// exposes get/set access to.
type VolumeIdentifiers struct {
	VolumeID         string // 33 bytes
	VolumeSetID      string // 129 bytes
	Publisher        string // 129 bytes
	Preparer         string // 129 bytes
	ApplicationID    string // 129 bytes
	AbstractFileID   string // 38 bytes
	BiblioFileID     string // 38 bytes
	CopyrightFileID  string // 38 bytes
	SystemID         string // 33 bytes
	CreationTime     time.Time
	ModificationTime time.Time
	ExpirationTime   time.Time
	EffectiveTime    time.Time
}

// MD5Mode is the Image Tree's MD5 recording mode.
type MD5Mode int

const (
	MD5None MD5Mode = iota
	MD5Session
	MD5File
	MD5Stability
)

// EltoritoImage is one El Torito boot image as the Image Tree library
// tracks it (distinct from, but structurally mirrored by,
// internal/bootimage.Entry which is this engine's own staging model).
type EltoritoImage struct {
	BootFile         string
	CatalogFile      string
	LoadSize         int // 512-byte units
	PlatformID       byte
	PatchFlags       uint16
	IDString         [28]byte
	SelectionCrit    [20]byte
	EmulationType    byte
	HasBootInfoTable bool
}

// SystemAreaOptions carries the system-area placement knobs: partition
// offset and CHS geometry, appended-partition slots, and the APM/HFS+
// block sizes and serial.
type SystemAreaOptions struct {
	PartitionOffsetLBA uint32
	SectorsPerHead     uint32
	HeadsPerCylinder   uint32
	AppendedPartitions map[int]AppendedPartition
	HFSBlockSize       int
	APMBlockSize       int
	HFSPlusSerial      [8]byte
}

// AppendedPartition is one appended-partition slot: type byte plus the
// in-image path of its content.
type AppendedPartition struct {
	TypeByte byte
	Path     string
}

// Tree is the Image Tree capability contract.
type Tree interface {
	// Open/create/read/update/burn-source.
	CreateEmpty() error
	ReadFrom(r Reader, opts ReadOptions) error
	UpdateSizes() error
	BurnSource() (BurnSource, error)

	// Volume identifiers.
	GetVolumeIdentifiers() VolumeIdentifiers
	SetVolumeIdentifiers(VolumeIdentifiers)

	// El Torito.
	FirstBootImage() (EltoritoImage, bool)
	SetFirstBootImage(EltoritoImage)
	AddBootImage(EltoritoImage)
	BootImages() []EltoritoImage

	// System area.
	SetSystemArea(buf [32 * 1024]byte, opts SystemAreaOptions)
	SystemArea() ([32 * 1024]byte, SystemAreaOptions)

	// Platform boot slots beyond the MBR: PReP and EFI boot partition
	// images, the SPARC disc label with its grub2 core node, and the MIPS
	// boot file list (big-endian volume header list, or the single
	// little-endian boot file).
	SetPRePPartition(path string)
	SetEFIBootPartition(path string)
	SetSPARCDiscLabel(label string)
	SetGRUB2SPARCCore(path string)
	AddMIPSBootFile(path string) error
	SetMIPSLittleEndianBootFile(path string)

	// Node namespace operations the engine needs for catalog management.
	HasNode(path string) bool
	RemoveNode(path string)
	AddNode(path string)

	// MD5.
	SetMD5Mode(MD5Mode)
	LookupFileMD5(path string) ([16]byte, bool)
	LookupSessionMD5() ([16]byte, bool)

	// Attribute introspection: isofs.st / isofs.hx / isofs.hb on root,
	// isofs.cs set on write.
	RootAttribute(name string) (string, bool)
	SetRootAttribute(name, value string)

	// SizeBlocks is the size of the tree's ISO 9660 image in 2048-byte
	// blocks, as computed by UpdateSizes.
	SizeBlocks() int64
}

// Reader is the minimal read surface the tree library needs from a drive
// handle to load a tree: random access plus a total size.
type Reader interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
}

// ReadOptions is the record built by internal/readopts and consumed here.
type ReadOptions struct {
	DisableISO9660v1999 bool
	DisableAAIP         bool
	DisableACL          bool
	DisableEA           bool
	DisableInode        bool
	DisableMD5          bool
	DisableMD5Tag       bool
	DefaultUID          int
	DefaultGID          int
	DefaultPerms        int // 0555
	InputCharset        string
	DisplacementLBA     int64 // signed
	Pacifier            func(nodesLoaded int)
}

// DefaultReadOptions returns the load defaults: owner 0, group 0,
// permissions 0555.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{DefaultUID: 0, DefaultGID: 0, DefaultPerms: 0555}
}

// BurnSource is the streaming source the write pipeline consumes: a
// plain io.Reader-shaped producer plus a known total size.
type BurnSource interface {
	Read(p []byte) (int, error)
	TotalBlocks() int64
}
