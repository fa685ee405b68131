package writeplan

import (
	"time"

	"github.com/google/uuid"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/imagetree"
)

// RelaxFlags is the ISO 9660 relaxation bit set handed to the image
// library at write time. The bit layout leaves the process, so it stays a
// bitset rather than a field-per-flag record.
type RelaxFlags uint32

const (
	RelaxOmitVersionNumbers RelaxFlags = 1 << iota
	RelaxAllowDeepPaths
	RelaxAllowLongerPaths
	RelaxMaxLenPaths
	RelaxNoForceDots
	RelaxAllowLowercase
	RelaxAllowFullASCII
	RelaxJolietLongNames
	RelaxAlwaysGMT
)

// PVDTimes is the volume descriptor time set recorded into the new
// session, plus the per-session UUID string.
type PVDTimes struct {
	Creation     time.Time `json:"creation" yaml:"creation"`
	Modification time.Time `json:"modification" yaml:"modification"`
	Expiration   time.Time `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	Effective    time.Time `json:"effective,omitempty" yaml:"effective,omitempty"`
	UUID         string    `json:"uuid" yaml:"uuid"`
}

// NewPVDTimes stamps creation and modification with now and mints a fresh
// UUID for the session.
func NewPVDTimes(now time.Time) PVDTimes {
	return PVDTimes{Creation: now, Modification: now, UUID: uuid.NewString()}
}

// SessionPlan is the ephemeral bundle consumed by exactly one write:
// constructed from user configuration and the current image state,
// applied to the image tree, then discarded.
type SessionPlan struct {
	OutputCharset string     `json:"outputCharset" yaml:"outputCharset"`
	ISOLevel      int        `json:"isoLevel" yaml:"isoLevel"`
	Relax         RelaxFlags `json:"relax" yaml:"relax"`

	WriteType WriteType     `json:"-" yaml:"-"`
	Padding   PaddingResult `json:"-" yaml:"-"`

	PartitionOffsetLBA uint32 `json:"partitionOffsetLba" yaml:"partitionOffsetLba"`
	SectorsPerHead     uint32 `json:"sectorsPerHead" yaml:"sectorsPerHead"`
	HeadsPerCylinder   uint32 `json:"headsPerCylinder" yaml:"headsPerCylinder"`

	SystemArea         [systemAreaSize]byte `json:"-" yaml:"-"`
	SystemAreaPatching bool                 `json:"systemAreaPatching" yaml:"systemAreaPatching"`

	AppendedPartitions map[int]imagetree.AppendedPartition `json:"appendedPartitions,omitempty" yaml:"appendedPartitions,omitempty"`
	HFSBlockSize       int                                 `json:"hfsBlockSize,omitempty" yaml:"hfsBlockSize,omitempty"`

	PVD PVDTimes `json:"pvd" yaml:"pvd"`

	// DelegatePadding hands the padding count to the image library
	// (libjte-style) instead of the burn backend.
	DelegatePadding bool `json:"delegatePadding" yaml:"delegatePadding"`

	StreamRecordingStartLBA int64 `json:"streamRecordingStartLba" yaml:"streamRecordingStartLba"`
}

// PlanInput is everything Build needs beyond the medium's profile/status.
type PlanInput struct {
	OutputCharset string
	ISOLevel      int
	Relax         RelaxFlags

	Padding PaddingInput

	PartitionOffsetLBA uint32
	SectorsPerHead     uint32
	HeadsPerCylinder   uint32

	SystemArea SystemAreaRequest

	AppendedPartitions map[int]imagetree.AppendedPartition
	HFSBlockSize       int

	Multisession            bool
	StreamRecordingStartLBA int64

	Now time.Time
}

// Build assembles a SessionPlan: write-type selection, the padding
// computation, system-area resolution, and a freshly minted PVD time set.
func Build(in PlanInput, profile burnbackend.Profile, status burnbackend.DiscStatus, sink *diag.Sink) (*SessionPlan, error) {
	wt, err := SelectWriteType(profile, status, in.Multisession)
	if err != nil {
		return nil, err
	}

	sysBuf, patching, err := BuildSystemArea(in.SystemArea, sink)
	if err != nil {
		return nil, err
	}

	level := in.ISOLevel
	if level < 1 || level > 3 {
		level = 3
	}

	return &SessionPlan{
		OutputCharset:           in.OutputCharset,
		ISOLevel:                level,
		Relax:                   in.Relax,
		WriteType:               wt,
		Padding:                 ComputePadding(in.Padding),
		PartitionOffsetLBA:      in.PartitionOffsetLBA,
		SectorsPerHead:          in.SectorsPerHead,
		HeadsPerCylinder:        in.HeadsPerCylinder,
		SystemArea:              sysBuf,
		SystemAreaPatching:      patching,
		AppendedPartitions:      in.AppendedPartitions,
		HFSBlockSize:            in.HFSBlockSize,
		PVD:                     NewPVDTimes(in.Now),
		DelegatePadding:         in.Padding.DelegateToLibrary,
		StreamRecordingStartLBA: in.StreamRecordingStartLBA,
	}, nil
}

// Apply records plan into tree: system area and geometry, the output
// charset and session timestamp attributes, and the volume time set.
func (p *SessionPlan) Apply(tree imagetree.Tree) {
	tree.SetSystemArea(p.SystemArea, imagetree.SystemAreaOptions{
		PartitionOffsetLBA: p.PartitionOffsetLBA,
		SectorsPerHead:     p.SectorsPerHead,
		HeadsPerCylinder:   p.HeadsPerCylinder,
		AppendedPartitions: p.AppendedPartitions,
		HFSBlockSize:       p.HFSBlockSize,
	})

	if p.OutputCharset != "" {
		tree.SetRootAttribute("isofs.cs", p.OutputCharset)
	}
	tree.SetRootAttribute("isofs.st", p.PVD.Modification.UTC().Format("2006010215040500"))

	ids := tree.GetVolumeIdentifiers()
	ids.CreationTime = p.PVD.Creation
	ids.ModificationTime = p.PVD.Modification
	ids.ExpirationTime = p.PVD.Expiration
	ids.EffectiveTime = p.PVD.Effective
	tree.SetVolumeIdentifiers(ids)
}
