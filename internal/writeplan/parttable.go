package writeplan

import (
	"sort"

	"github.com/diskfs/go-diskfs/partition"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

// AppendedSlot is one appended-partition slot with its placement size.
type AppendedSlot struct {
	Slot       int
	TypeByte   byte
	Path       string
	SizeBlocks int64
}

// isoPartitionType marks partition 1, the ISO 9660 image itself, in an
// appended-partition MBR.
const isoPartitionType = 0xCD

const sectorsPerBlock = 4 // 2048-byte blocks to 512-byte sectors

// BuildAppendedPartitionTable lays out partition 1 over the ISO image and
// one partition per appended slot directly behind it, returning either an
// MBR or a GPT table. Slots are placed in ascending slot order; slot
// numbers above 4 demand GPT since the MBR primary table has no room for
// them.
func BuildAppendedPartitionTable(imageBlocks int64, slots []AppendedSlot, useGPT bool) (partition.Table, error) {
	ordered := append([]AppendedSlot(nil), slots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Slot < ordered[j].Slot })

	for _, s := range ordered {
		if s.Slot < 2 {
			return nil, diag.New(diag.KindBounds, "appended partition slots start at 2; slot 1 is the image itself")
		}
		if !useGPT && s.Slot > 4 {
			return nil, diag.New(diag.KindBounds, "MBR holds at most 4 primary partitions; use GPT for higher slots")
		}
		if s.SizeBlocks <= 0 {
			return nil, diag.New(diag.KindBounds, "appended partition has no size")
		}
	}

	if useGPT {
		return buildGPT(imageBlocks, ordered), nil
	}
	return buildMBR(imageBlocks, ordered), nil
}

func buildMBR(imageBlocks int64, slots []AppendedSlot) *mbr.Table {
	parts := []*mbr.Partition{{
		Bootable: true,
		Type:     mbr.Type(isoPartitionType),
		Start:    0,
		Size:     uint32(imageBlocks * sectorsPerBlock),
	}}

	next := imageBlocks * sectorsPerBlock
	for _, s := range slots {
		size := s.SizeBlocks * sectorsPerBlock
		parts = append(parts, &mbr.Partition{
			Type:  mbr.Type(s.TypeByte),
			Start: uint32(next),
			Size:  uint32(size),
		})
		next += size
	}

	return &mbr.Table{
		Partitions:         parts,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
	}
}

func buildGPT(imageBlocks int64, slots []AppendedSlot) *gpt.Table {
	parts := []*gpt.Partition{{
		Start: 0,
		End:   uint64(imageBlocks*sectorsPerBlock) - 1,
		Type:  gpt.LinuxFilesystem,
		Name:  "ISO9660",
	}}

	next := uint64(imageBlocks * sectorsPerBlock)
	for _, s := range slots {
		size := uint64(s.SizeBlocks * sectorsPerBlock)
		parts = append(parts, &gpt.Partition{
			Start: next,
			End:   next + size - 1,
			Type:  gptTypeFor(s.TypeByte),
			Name:  s.Path,
		})
		next += size
	}

	return &gpt.Table{
		Partitions:         parts,
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
		ProtectiveMBR:      true,
	}
}

// gptTypeFor maps the MBR-style type byte of an appended slot onto the
// nearest GPT partition type GUID.
func gptTypeFor(typeByte byte) gpt.Type {
	switch typeByte {
	case 0xEF:
		return gpt.EFISystemPartition
	case 0x07:
		return gpt.MicrosoftBasicData
	default:
		return gpt.LinuxFilesystem
	}
}
