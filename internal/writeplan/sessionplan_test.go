package writeplan

import (
	"testing"
	"time"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/imagetree"
	"github.com/open-edge-platform/xorriso-engine/internal/imagetree/memtree"
)

func TestBuildSessionPlanMintsUUIDAndSelectsSAO(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	in := PlanInput{
		OutputCharset: "UTF-8",
		ISOLevel:      3,
		Padding:       PaddingInput{Profile: burnbackend.ProfileCDR, ImageBlocks: 10},
		SystemArea:    SystemAreaRequest{Source: SourceDevZero},
		Now:           now,
	}
	plan, err := Build(in, burnbackend.ProfileCDR, burnbackend.StatusBlank, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.WriteType != WriteSAO {
		t.Fatalf("WriteType = %v, want SAO on blank CD", plan.WriteType)
	}
	if plan.PVD.UUID == "" {
		t.Fatal("expected a minted session UUID")
	}
	if plan.Padding.PaddingBlocks+plan.Padding.EffectiveImageBlocks < 300 {
		t.Fatalf("CD session below 300 sectors: %+v", plan.Padding)
	}

	// A second plan gets a distinct UUID.
	plan2, err := Build(in, burnbackend.ProfileCDR, burnbackend.StatusBlank, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan2.PVD.UUID == plan.PVD.UUID {
		t.Fatal("expected per-session UUIDs to differ")
	}
}

func TestBuildSessionPlanClampsISOLevel(t *testing.T) {
	in := PlanInput{
		ISOLevel:   9,
		Padding:    PaddingInput{Profile: burnbackend.ProfileDVDPlusRW, ImageBlocks: 100},
		SystemArea: SystemAreaRequest{Source: SourceDevZero},
		Now:        time.Now(),
	}
	plan, err := Build(in, burnbackend.ProfileDVDPlusRW, burnbackend.StatusBlank, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if plan.ISOLevel != 3 {
		t.Fatalf("ISOLevel = %d, want clamp to 3", plan.ISOLevel)
	}
}

func TestApplyRecordsCharsetTimestampAndGeometry(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	plan := &SessionPlan{
		OutputCharset:      "ISO-8859-1",
		PartitionOffsetLBA: 16,
		SectorsPerHead:     32,
		HeadsPerCylinder:   64,
		PVD:                NewPVDTimes(now),
		AppendedPartitions: map[int]imagetree.AppendedPartition{
			2: {TypeByte: 0xEF, Path: "/efi.img"},
		},
	}

	tree := memtree.New()
	plan.Apply(tree)

	if cs, ok := tree.RootAttribute("isofs.cs"); !ok || cs != "ISO-8859-1" {
		t.Fatalf("isofs.cs = %q ok=%v", cs, ok)
	}
	if st, ok := tree.RootAttribute("isofs.st"); !ok || st != "2026070112000000" {
		t.Fatalf("isofs.st = %q ok=%v", st, ok)
	}
	_, opts := tree.SystemArea()
	if opts.PartitionOffsetLBA != 16 || opts.SectorsPerHead != 32 || opts.HeadsPerCylinder != 64 {
		t.Fatalf("geometry not recorded: %+v", opts)
	}
	if opts.AppendedPartitions[2].TypeByte != 0xEF {
		t.Fatalf("appended partition slot 2 not recorded: %+v", opts.AppendedPartitions)
	}
	ids := tree.GetVolumeIdentifiers()
	if !ids.CreationTime.Equal(now) || !ids.ModificationTime.Equal(now) {
		t.Fatalf("PVD times not recorded: %+v", ids)
	}
}

func TestBuildAppendedPartitionTableMBRPlacesSlotsBehindImage(t *testing.T) {
	table, err := BuildAppendedPartitionTable(1000, []AppendedSlot{
		{Slot: 2, TypeByte: 0xEF, Path: "/efi.img", SizeBlocks: 100},
	}, false)
	if err != nil {
		t.Fatalf("BuildAppendedPartitionTable: %v", err)
	}
	mt, ok := table.(*mbr.Table)
	if !ok {
		t.Fatalf("expected *mbr.Table, got %T", table)
	}
	if len(mt.Partitions) != 2 {
		t.Fatalf("expected image partition + 1 appended, got %d", len(mt.Partitions))
	}
	img := mt.Partitions[0]
	if img.Start != 0 || img.Size != 4000 {
		t.Fatalf("image partition = start %d size %d, want 0/4000 sectors", img.Start, img.Size)
	}
	app := mt.Partitions[1]
	if app.Start != 4000 || app.Size != 400 {
		t.Fatalf("appended partition = start %d size %d, want 4000/400 sectors", app.Start, app.Size)
	}
	if byte(app.Type) != 0xEF {
		t.Fatalf("appended partition type = %#x, want 0xEF", byte(app.Type))
	}
}

func TestBuildAppendedPartitionTableRejectsSlot5OnMBR(t *testing.T) {
	_, err := BuildAppendedPartitionTable(1000, []AppendedSlot{
		{Slot: 5, TypeByte: 0x83, SizeBlocks: 10},
	}, false)
	if err == nil {
		t.Fatal("expected slot 5 to be rejected without GPT")
	}
}

func TestBuildAppendedPartitionTableGPTMapsEFIType(t *testing.T) {
	table, err := BuildAppendedPartitionTable(1000, []AppendedSlot{
		{Slot: 5, TypeByte: 0xEF, Path: "/efi.img", SizeBlocks: 50},
	}, true)
	if err != nil {
		t.Fatalf("BuildAppendedPartitionTable: %v", err)
	}
	gt, ok := table.(*gpt.Table)
	if !ok {
		t.Fatalf("expected *gpt.Table, got %T", table)
	}
	if len(gt.Partitions) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(gt.Partitions))
	}
	if gt.Partitions[1].Type != gpt.EFISystemPartition {
		t.Fatalf("appended GPT type = %v, want EFI system partition", gt.Partitions[1].Type)
	}
	if gt.Partitions[1].Start != 4000 || gt.Partitions[1].End != 4199 {
		t.Fatalf("appended GPT extent = [%d,%d], want [4000,4199]", gt.Partitions[1].Start, gt.Partitions[1].End)
	}
}
