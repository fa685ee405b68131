package mediacheck

import (
	"context"
	"testing"
	"time"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

type fakeReader struct {
	blockSize int
	fail      map[int64]error
}

func (f *fakeReader) ReadBlock(_ context.Context, lba int64, blocks int) ([]byte, error) {
	if err, ok := f.fail[lba]; ok {
		return nil, err
	}
	return make([]byte, blocks*2048), nil
}

func TestSpotListCoalesces(t *testing.T) {
	sl := &SpotList{}
	sl.Append(Spot{StartLBA: 0, BlockCount: 10, Quality: QualityGood})
	sl.Append(Spot{StartLBA: 10, BlockCount: 5, Quality: QualityGood})
	sl.Append(Spot{StartLBA: 15, BlockCount: 2, Quality: QualityUnreadable})

	got := sl.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 coalesced spots, got %d: %+v", len(got), got)
	}
	if got[0].BlockCount != 15 {
		t.Fatalf("expected first spot to coalesce to 15 blocks, got %d", got[0].BlockCount)
	}
}

func TestRunWholeCapacityAllGood(t *testing.T) {
	reader := &fakeReader{fail: map[int64]error{}}
	e := New(reader, diag.NewSink(diag.FAILURE), nil, nil, nil)

	job := CheckJob{
		Mode:        ModeWholeCapacity,
		MinLBA:      0,
		MaxLBA:      100,
		ChunkBlocks: 16,
		JobStart:    time.Now(),
	}
	spots, status, err := e.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	snap := spots.Snapshot()
	if len(snap) != 1 || snap[0].Quality != QualityGood {
		t.Fatalf("expected one good spot covering the whole range, got %+v", snap)
	}
	if snap[0].StartLBA != 0 || snap[0].End() != 100 {
		t.Fatalf("expected coverage [0,100), got [%d,%d)", snap[0].StartLBA, snap[0].End())
	}
}

// TestAbortByFile: abort_file's
// mtime >= job start ends the scan with one untested spot to the end of
// the range and status 2 (aborted).
func TestAbortByFile(t *testing.T) {
	reader := &fakeReader{fail: map[int64]error{}}
	e := New(reader, diag.NewSink(diag.FAILURE), nil, nil, nil)
	jobStart := time.Now()
	e.StatAbortFile = func(path string) (time.Time, bool) {
		return jobStart.Add(time.Second), true
	}

	job := CheckJob{
		Mode:          ModeWholeCapacity,
		MinLBA:        0,
		MaxLBA:        1000,
		ChunkBlocks:   16,
		AbortFilePath: "/tmp/stop",
		JobStart:      jobStart,
	}
	spots, status, err := e.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusAborted {
		t.Fatalf("expected StatusAborted, got %v", status)
	}
	snap := spots.Snapshot()
	if len(snap) != 1 || snap[0].Quality != QualityUntested {
		t.Fatalf("expected a single untested spot, got %+v", snap)
	}
	if snap[0].StartLBA != 0 || snap[0].End() != 1000 {
		t.Fatalf("expected untested spot to cover [0,1000), got [%d,%d)", snap[0].StartLBA, snap[0].End())
	}
}

func TestItemLimitAborts(t *testing.T) {
	reader := &fakeReader{}
	e := New(reader, diag.NewSink(diag.FAILURE), nil, nil, nil)

	job := CheckJob{
		Mode:        ModeWholeCapacity,
		MinLBA:      0,
		MaxLBA:      1000,
		ChunkBlocks: 10,
		ItemLimit:   1,
		JobStart:    time.Now(),
	}
	_, status, err := e.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusAborted {
		t.Fatalf("expected StatusAborted once the item limit (N+2) is reached, got %v", status)
	}
}

type recordingReader struct {
	fakeReader
	calls []interval
}

func (r *recordingReader) ReadBlock(ctx context.Context, lba int64, blocks int) ([]byte, error) {
	r.calls = append(r.calls, interval{lba, lba + int64(blocks)})
	return r.fakeReader.ReadBlock(ctx, lba, blocks)
}

func TestTrackByTrackNeverCrossesBoundary(t *testing.T) {
	reader := &recordingReader{}
	e := New(reader, diag.NewSink(diag.FAILURE), nil, nil, nil)

	job := CheckJob{
		Mode:            ModeTrackByTrack,
		MinLBA:          0,
		MaxLBA:          40,
		ChunkBlocks:     100, // larger than any interval so boundaries drive chunking
		TrackBoundaries: []int64{20},
		JobStart:        time.Now(),
	}
	spots, _, err := e.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range reader.calls {
		if c.start < 20 && c.end > 20 {
			t.Fatalf("a single read crossed the track boundary at LBA 20: %+v", c)
		}
	}
	snap := spots.Snapshot()
	if len(snap) != 1 || snap[0].StartLBA != 0 || snap[0].End() != 40 {
		t.Fatalf("expected the two equal-quality chunks to coalesce into one spot, got %+v", snap)
	}
}

func TestTAOTailClassifiesFinalTwoBlocks(t *testing.T) {
	reader := &fakeReader{}
	e := New(reader, diag.NewSink(diag.FAILURE), nil, nil, nil)

	job := CheckJob{
		Mode:        ModeWholeCapacity,
		MinLBA:      0,
		MaxLBA:      10,
		ChunkBlocks: 10,
		IsCD:        true,
		TAOTail:     true,
		JobStart:    time.Now(),
	}
	spots, _, err := e.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := spots.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected body + tao-end tail, got %+v", snap)
	}
	tail := snap[len(snap)-1]
	if tail.Quality != QualityTAOEnd || tail.BlockCount != 2 || tail.StartLBA != 8 {
		t.Fatalf("expected a 2-block tao-end tail at LBA 8, got %+v", tail)
	}
}

// TestMD5ChainBreak: a session
// tag whose range_start disagrees with the state machine's expected
// md5_start breaks the chain and never produces md5-match.
func TestMD5ChainBreak(t *testing.T) {
	sink := diag.NewSink(diag.FAILURE)
	st := NewMD5ChainState(64)

	reader := &fakeReader{}
	e := New(reader, sink, nil, nil, st)

	tag := MD5Tag{Type: TagTypeSession, RangeStart: 32, RangeSize: 32}
	e.consumeTag(tag, 100, &SpotList{})

	if !st.ChainBroken {
		t.Fatal("expected chain_broken to be set on a range_start mismatch")
	}
}

func TestChainBreakMessageMatchesScenario(t *testing.T) {
	got := ChainBreakMessage(64, 32)
	if got != "MD5 tag carries a different data range. Expected: 64 Found: 32" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestMD5TagRoundTrip(t *testing.T) {
	buf := make([]byte, md5TagSize)
	buf[0] = byte(TagTypeSuperblock)
	buf[1], buf[2], buf[3], buf[4] = 64, 0, 0, 0 // range_start = 64 little-endian
	tag, ok := DecodeMD5Tag(buf, 100)
	if !ok {
		t.Fatal("expected tag to decode")
	}
	if tag.Type != TagTypeSuperblock || tag.RangeStart != 64 || tag.Position != 100 {
		t.Fatalf("unexpected decode: %+v", tag)
	}
}

func TestPartialReadSplitsSpots(t *testing.T) {
	reader := &fakeReader{fail: map[int64]error{
		0: &partialReadError{goodBlocks: 3, err: context.DeadlineExceeded},
	}}
	e := New(reader, diag.NewSink(diag.FAILURE), nil, nil, nil)

	job := CheckJob{Mode: ModeWholeCapacity, MinLBA: 0, MaxLBA: 10, ChunkBlocks: 10, JobStart: time.Now()}
	spots, _, err := e.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := spots.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected partial + unreadable remainder, got %+v", snap)
	}
	if snap[0].Quality != QualityPartial || snap[0].BlockCount != 3 {
		t.Fatalf("expected a 3-block partial spot, got %+v", snap[0])
	}
	if snap[1].Quality != QualityUnreadable || snap[1].StartLBA != 3 {
		t.Fatalf("expected the remainder to be unreadable starting at LBA 3, got %+v", snap[1])
	}
}
