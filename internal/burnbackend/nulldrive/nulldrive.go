// Package nulldrive is an in-memory burnbackend.Backend: block reads and
// writes operate on a byte slice instead of real hardware. The engine's
// tests and the file-backed CLI path both run against it.
package nulldrive

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
)

// Drive is an emulated Handle backed by BlocksTotal*2048 bytes of memory.
type Drive struct {
	mu sync.Mutex

	AddrStr     string
	RoleVal     burnbackend.Role
	ProfileVal  burnbackend.Profile
	ProfileName string
	Status      burnbackend.DiscStatus
	NWA         int64
	BlocksTotal int64
	Data        []byte
	IsEmulated  bool // true => MMC-only ops return ErrNotApplicable

	progress burnbackend.ProgressCounters
	state    burnbackend.Status
	canceled bool
}

// NewDrive allocates a Drive with blocksTotal*2048 zeroed bytes of backing
// storage.
func NewDrive(addr string, profile burnbackend.Profile, status burnbackend.DiscStatus, blocksTotal int64) *Drive {
	return &Drive{
		AddrStr:     addr,
		ProfileVal:  profile,
		Status:      status,
		BlocksTotal: blocksTotal,
		Data:        make([]byte, blocksTotal*2048),
		state:       burnbackend.StatusIdle,
	}
}

func (d *Drive) Address() string        { return d.AddrStr }
func (d *Drive) Role() burnbackend.Role { return d.RoleVal }

func (d *Drive) Profile() (burnbackend.Profile, string, error) {
	return d.ProfileVal, d.ProfileName, nil
}

func (d *Drive) DiscStatus() (burnbackend.DiscStatus, error) { return d.Status, nil }

func (d *Drive) NextWritableAddress() (int64, error) { return d.NWA, nil }

func (d *Drive) ReadCapacityBlocks() (int64, error) { return d.BlocksTotal, nil }

func (d *Drive) ReadBlock(_ context.Context, lba int64, blocks int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := lba * 2048
	end := start + int64(blocks)*2048
	if start < 0 || end > int64(len(d.Data)) {
		return nil, fmt.Errorf("nulldrive: read out of range lba=%d blocks=%d", lba, blocks)
	}
	out := make([]byte, end-start)
	copy(out, d.Data[start:end])
	return out, nil
}

func (d *Drive) WriteRegion(_ context.Context, lba int64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := lba * 2048
	end := start + int64(len(data))
	if start < 0 || end > int64(len(d.Data)) {
		grown := make([]byte, end)
		copy(grown, d.Data)
		d.Data = grown
	}
	copy(d.Data[start:end], data)
	if lba+int64(len(data))/2048 > d.BlocksTotal {
		d.BlocksTotal = lba + int64(len(data))/2048
	}
	return nil
}

func (d *Drive) RandomAccessWrite(ctx context.Context, byteOffset int64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	end := byteOffset + int64(len(data))
	if end > int64(len(d.Data)) {
		grown := make([]byte, end)
		copy(grown, d.Data)
		d.Data = grown
	}
	copy(d.Data[byteOffset:end], data)
	return nil
}

func (d *Drive) Format(size int64, mode int, flags int) error {
	d.Status = burnbackend.StatusBlank
	return nil
}

func (d *Drive) Blank(mode int) error {
	d.Status = burnbackend.StatusBlank
	d.NWA = 0
	return nil
}

func (d *Drive) Snooze() error { return nil }

func (d *Drive) ReadSpeedList() ([]int, error) {
	if d.IsEmulated {
		return nil, burnbackend.ErrNotApplicable
	}
	return []int{8, 16, 24, 32, 40, 48}, nil
}

func (d *Drive) ReadATIP() ([]byte, error) {
	if d.IsEmulated {
		return nil, burnbackend.ErrNotApplicable
	}
	return make([]byte, 32), nil
}

func (d *Drive) Progress() (burnbackend.ProgressCounters, burnbackend.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progress, d.state
}

// SetProgress lets tests drive the state machine the burn pipeline polls.
func (d *Drive) SetProgress(p burnbackend.ProgressCounters, s burnbackend.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress, d.state = p, s
}

func (d *Drive) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.canceled = true
	return nil
}

// Canceled reports whether Cancel was called.
func (d *Drive) Canceled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canceled
}

// Backend serves a fixed set of Drives keyed by address.
type Backend struct {
	mu     sync.Mutex
	Drives map[string]*Drive
	MMCSet map[string]bool
	indev  burnbackend.Handle
	outdev burnbackend.Handle
}

// NewBackend builds a Backend with the given drives keyed by address.
func NewBackend(drives ...*Drive) *Backend {
	b := &Backend{Drives: map[string]*Drive{}, MMCSet: map[string]bool{}}
	for _, d := range drives {
		b.Drives[d.AddrStr] = d
	}
	return b
}

func (b *Backend) Enumerate() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.Drives))
	for a := range b.Drives {
		out = append(out, a)
	}
	return out, nil
}

func (b *Backend) IsMMCDevice(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.MMCSet[path]
}

func (b *Backend) Acquire(addr string, flags burnbackend.AcquireFlags) (burnbackend.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.Drives[addr]
	if !ok {
		return nil, fmt.Errorf("nulldrive: no such address %q", addr)
	}
	return d, nil
}

func (b *Backend) Release(h burnbackend.Handle, eject bool) error { return nil }
