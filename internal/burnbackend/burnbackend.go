// Package burnbackend defines the capability contract this engine consumes
// from an opaque burn transport: device enumeration, acquire/release,
// profile inquiry, disc status, formats, NWA/read-capacity queries, block
// I/O, progress counters, cancellation, and write options. The real
// SCSI/MMC or stdio transport lives behind this interface; this package
// holds only the contract and its emulated stand-in.
package burnbackend

import (
	"context"
	"errors"
)

// Profile enumerates the MMC medium profiles the engine needs to reason
// about, plus the file-backed emulation profile.
type Profile uint16

const (
	ProfileUnknown         Profile = 0x0000
	ProfileCDR             Profile = 0x0009
	ProfileCDRW            Profile = 0x000A
	ProfileDVDRSeq         Profile = 0x0011
	ProfileDVDRWRestricted Profile = 0x0013
	ProfileDVDRWSeq        Profile = 0x0014
	ProfileDVDRDL          Profile = 0x0015
	ProfileDVDPlusRW       Profile = 0x001A
	ProfileDVDPlusR        Profile = 0x001B
	ProfileDVDPlusRAM      Profile = 0x0012
	ProfileBDR_SRM         Profile = 0x0041
	ProfileBDRE            Profile = 0x0043
	ProfileNonRemovable    Profile = 0x0001 // stdio / file-backed emulation
)

// DiscStatus is the loaded medium's write state.
type DiscStatus int

const (
	StatusBlank DiscStatus = iota
	StatusAppendable
	StatusFull
	StatusEmpty
	StatusUnsuitable
)

// Role classifies how a target is reached: native MMC, stdio random-RW,
// stdio sequential-W, stdio random-R, or null.
type Role int

const (
	RoleNativeMMC Role = iota
	RoleStdioRandomRW
	RoleStdioSequentialW
	RoleStdioRandomR
	RoleNull
)

// AcquireFlags controls how Acquire opens a target.
type AcquireFlags struct {
	Exclusive bool
	AsIndev   bool
	AsOutdev  bool
}

// ProgressCounters reports write progress: current sector, total sectors,
// and the device buffer's capacity and free space.
type ProgressCounters struct {
	Sector          int64
	Sectors         int64
	BufferCapacity  int
	BufferAvailable int
}

// Status is the writer state machine the burn pipeline polls.
type Status int

const (
	StatusSpawning Status = iota
	StatusWriting
	StatusClosingSession
	StatusClosingTrack
	StatusFormatting
	StatusIdle
)

// WriteOptions bundles the write-side knobs the backend needs:
// stream-recording start, DVD OBS size, stdio fsync period, simulate,
// multi-session, TAO/SAO selector.
type WriteOptions struct {
	StreamRecordingStartLBA int64
	DVDOBSSizeBytes         int // default 64 KiB
	StdioFsyncPeriod        int
	Simulate                bool
	Multisession            bool
	SAO                     bool // false == TAO
}

// DefaultWriteOptions returns the backend's documented defaults.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{DVDOBSSizeBytes: 64 * 1024}
}

// ErrNotApplicable is returned by MMC-only operations (e.g. ATIP) on
// emulated drives.
var ErrNotApplicable = errors.New("burnbackend: not applicable to this drive role")

// Handle is an acquired target, as returned by Backend.Acquire.
type Handle interface {
	Address() string
	Role() Role
	Profile() (Profile, string, error)
	DiscStatus() (DiscStatus, error)
	NextWritableAddress() (int64, error)
	ReadCapacityBlocks() (int64, error)
	ReadBlock(ctx context.Context, lba int64, blocks int) ([]byte, error)
	WriteRegion(ctx context.Context, lba int64, data []byte) error
	RandomAccessWrite(ctx context.Context, byteOffset int64, data []byte) error
	Format(size int64, mode int, flags int) error
	Blank(mode int) error
	Snooze() error
	ReadSpeedList() ([]int, error)
	ReadATIP() ([]byte, error)

	// Progress returns the backend's current counters and state, polled
	// by internal/burnpipeline.
	Progress() (ProgressCounters, Status)
	Cancel() error
}

// Backend is the capability contract consumed by internal/drive.
type Backend interface {
	Enumerate() ([]string, error)
	IsMMCDevice(path string) bool
	Acquire(addr string, flags AcquireFlags) (Handle, error)
	Release(h Handle, eject bool) error
}
