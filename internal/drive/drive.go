// Package drive owns acquired targets: each Handle wraps one acquired
// drive or file-backed target and exposes profile/status/capacity and
// read/write/format primitives via the burnbackend contract.
package drive

import (
	"context"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

// RoleBits is a bitset: a Handle may be indev, outdev, or both. The
// bitset is fixed at acquire time and never changes until release.
type RoleBits uint8

const (
	RoleIndev RoleBits = 1 << iota
	RoleOutdev
)

func (r RoleBits) Has(bit RoleBits) bool { return r&bit != 0 }

// Handle owns one acquired target.
type Handle struct {
	backend   burnbackend.Backend
	raw       burnbackend.Handle
	address   string
	roles     RoleBits
	exclusive bool
}

// Registry enforces that at most one Handle is owned as indev and at most
// one as outdev at any time; they may coincide. It is engine-scoped, not
// a process global.
type Registry struct {
	indev  *Handle
	outdev *Handle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// Acquire acquires addr via backend with the requested role bits,
// registering the resulting Handle as the Registry's indev/outdev slot(s).
// Acquiring for a role already filled with a different address refuses
// with a ProgramInvariant error rather than silently re-assessing two
// distinct drives in one call.
func (reg *Registry) Acquire(backend burnbackend.Backend, addr string, roles RoleBits, exclusive bool) (*Handle, error) {
	if roles == 0 {
		return nil, diag.New(diag.KindProgramInvariant, "acquire requested with no role bits set")
	}
	if roles.Has(RoleIndev) && reg.indev != nil && reg.indev.address != addr {
		return nil, diag.New(diag.KindProgramInvariant, "a different drive is already assessed as indev")
	}
	if roles.Has(RoleOutdev) && reg.outdev != nil && reg.outdev.address != addr {
		return nil, diag.New(diag.KindProgramInvariant, "a different drive is already assessed as outdev")
	}

	raw, err := backend.Acquire(addr, burnbackend.AcquireFlags{
		Exclusive: exclusive,
		AsIndev:   roles.Has(RoleIndev),
		AsOutdev:  roles.Has(RoleOutdev),
	})
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "acquire "+addr, err)
	}

	h := &Handle{backend: backend, raw: raw, address: addr, roles: roles, exclusive: exclusive}
	if roles.Has(RoleIndev) {
		reg.indev = h
	}
	if roles.Has(RoleOutdev) {
		reg.outdev = h
	}
	return h, nil
}

// Release releases h, optionally requesting ejection. Eject is honored
// only when exclusivity was granted at acquire time; otherwise a WARNING
// is emitted and the medium stays.
func (reg *Registry) Release(h *Handle, requestEject bool, sink *diag.Sink) error {
	eject := requestEject && h.exclusive
	if requestEject && !h.exclusive && sink != nil {
		sink.Record(diag.WARNING, "drive", "eject requested without exclusivity; medium stays", 0)
	}
	if err := h.backend.Release(h.raw, eject); err != nil {
		return diag.Wrap(diag.KindResource, "release "+h.address, err)
	}
	if reg.indev == h {
		reg.indev = nil
	}
	if reg.outdev == h {
		reg.outdev = nil
	}
	return nil
}

// Indev / Outdev expose the currently assessed handles, or nil.
func (reg *Registry) Indev() *Handle  { return reg.indev }
func (reg *Registry) Outdev() *Handle { return reg.outdev }

func (h *Handle) Address() string         { return h.address }
func (h *Handle) Roles() RoleBits         { return h.roles }
func (h *Handle) Exclusive() bool         { return h.exclusive }
func (h *Handle) Raw() burnbackend.Handle { return h.raw }

func (h *Handle) Profile() (burnbackend.Profile, string, error) { return h.raw.Profile() }
func (h *Handle) DiscStatus() (burnbackend.DiscStatus, error)   { return h.raw.DiscStatus() }
func (h *Handle) NextWritableAddress() (int64, error)           { return h.raw.NextWritableAddress() }
func (h *Handle) ReadCapacityBlocks() (int64, error)            { return h.raw.ReadCapacityBlocks() }

func (h *Handle) ReadBlock(ctx context.Context, lba int64, blocks int) ([]byte, error) {
	b, err := h.raw.ReadBlock(ctx, lba, blocks)
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "read block", err)
	}
	return b, nil
}

func (h *Handle) WriteRegion(ctx context.Context, lba int64, data []byte) error {
	if err := h.raw.WriteRegion(ctx, lba, data); err != nil {
		return diag.Wrap(diag.KindResource, "write region", err)
	}
	return nil
}

func (h *Handle) RandomAccessWrite(ctx context.Context, byteOffset int64, data []byte) error {
	if err := h.raw.RandomAccessWrite(ctx, byteOffset, data); err != nil {
		return diag.Wrap(diag.KindResource, "random access write", err)
	}
	return nil
}

func (h *Handle) Format(size int64, mode int, flags int) error {
	return h.raw.Format(size, mode, flags)
}
func (h *Handle) Blank(mode int) error { return h.raw.Blank(mode) }
func (h *Handle) Snooze() error        { return h.raw.Snooze() }

// ReadSpeedList / ReadATIP: MMC-only, return burnbackend.ErrNotApplicable on
// emulated drives.
func (h *Handle) ReadSpeedList() ([]int, error) { return h.raw.ReadSpeedList() }
func (h *Handle) ReadATIP() ([]byte, error)     { return h.raw.ReadATIP() }
