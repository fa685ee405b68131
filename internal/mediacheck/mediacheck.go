// Package mediacheck verifies readable media block by block: an outer
// loop selects intervals (track-by-track, image-range, or whole-capacity),
// an inner loop walks each interval chunk by chunk classifying every
// range by outcome, and an MD5 chain state machine recognizes recorded
// superblock/tree/session tags across the scan.
package mediacheck

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

// Mode selects how the outer loop partitions the medium.
type Mode int

const (
	ModeTrackByTrack Mode = iota
	ModeImageRange
	ModeWholeCapacity
)

// Quality is a Spot's classified outcome.
type Quality int

const (
	QualityUntested Quality = iota
	QualityGood
	QualitySlow
	QualityPartial
	QualityUnreadable
	QualityTAOEnd
	QualityValid
	QualityOffTrack
	QualityMD5Match
	QualityMD5Mismatch
)

func (q Quality) String() string {
	switch q {
	case QualityUntested:
		return "untested"
	case QualityGood:
		return "good"
	case QualitySlow:
		return "slow"
	case QualityPartial:
		return "partial"
	case QualityUnreadable:
		return "unreadable"
	case QualityTAOEnd:
		return "tao-end"
	case QualityValid:
		return "valid"
	case QualityOffTrack:
		return "off-track"
	case QualityMD5Match:
		return "md5-match"
	case QualityMD5Mismatch:
		return "md5-mismatch"
	default:
		return "unknown"
	}
}

// Spot is one (start_lba, block_count, quality) record.
type Spot struct {
	StartLBA   int64
	BlockCount int64
	Quality    Quality
}

func (s Spot) End() int64 { return s.StartLBA + s.BlockCount }

// SpotList is the append-only sequence of Spots. It is the only state
// shared between the reader and the hashing worker, so it alone carries a
// mutex.
type SpotList struct {
	mu    sync.Mutex
	spots []Spot
}

// Append adds s, coalescing it into the previous spot when it is adjacent
// and of equal quality.
func (sl *SpotList) Append(s Spot) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if n := len(sl.spots); n > 0 {
		last := &sl.spots[n-1]
		if last.Quality == s.Quality && last.End() == s.StartLBA {
			last.BlockCount += s.BlockCount
			return
		}
	}
	sl.spots = append(sl.spots, s)
}

// Snapshot returns a copy of the accumulated spots.
func (sl *SpotList) Snapshot() []Spot {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := make([]Spot, len(sl.spots))
	copy(out, sl.spots)
	return out
}

// Status is the Check Job's terminal outcome.
type Status int

const (
	StatusOK      Status = 0
	StatusAborted Status = 2
)

// RetryPolicy controls whether and how many times a failed chunk read is
// retried before being classified unreadable.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// CheckJob bundles verification parameters.
type CheckJob struct {
	// ID names this run in diagnostics and sidecar files.
	ID string

	Mode Mode

	MinLBA, MaxLBA int64
	ChunkBlocks    int64

	// TrackBoundaries lists every session/track start LBA within
	// [MinLBA, MaxLBA]. A chunk never crosses one.
	TrackBoundaries []int64

	// IsCD marks media where the final 2 blocks of a track must be read
	// separately, since TAO closure makes them unreadable while SAO
	// preserves them.
	IsCD    bool
	TAOTail bool

	SectorMapPath string
	RetryPolicy   RetryPolicy

	AbortFilePath string
	JobStart      time.Time
	TimeLimit     time.Duration
	ItemLimit     int

	AsyncChunkCount int
	SlowThreshold   time.Duration

	// MD5Enabled forwards each read chunk to the MD5 subsystem.
	MD5Enabled bool
}

// BlockReader is the minimal read surface the inner loop needs, satisfied
// by internal/drive.Handle.
type BlockReader interface {
	ReadBlock(ctx context.Context, lba int64, blocks int) ([]byte, error)
}

// ValidatedRangeChecker reports whether a chunk was already validated by
// a prior run, letting the scan skip its I/O.
type ValidatedRangeChecker interface {
	IsValid(lba int64) bool
}

// Engine drives one Check Job to completion.
type Engine struct {
	reader    BlockReader
	sink      *diag.Sink
	sectorMap ValidatedRangeChecker
	hasher    HashWorker
	md5State  *MD5ChainState

	// Now and StatAbortFile are overridable for tests.
	Now           func() time.Time
	StatAbortFile func(path string) (mtime time.Time, exists bool)
}

// New builds an Engine. sectorMap and hasher may be nil when unused;
// md5State must be non-nil only when job.MD5Enabled is set.
func New(reader BlockReader, sink *diag.Sink, sectorMap ValidatedRangeChecker, hasher HashWorker, md5State *MD5ChainState) *Engine {
	return &Engine{
		reader:    reader,
		sink:      sink,
		sectorMap: sectorMap,
		hasher:    hasher,
		md5State:  md5State,
		Now:       time.Now,
		StatAbortFile: func(path string) (time.Time, bool) {
			fi, err := os.Stat(path)
			if err != nil {
				return time.Time{}, false
			}
			return fi.ModTime(), true
		},
	}
}

// NewCheckJob returns a CheckJob for mode with a freshly minted run ID and
// job start stamped at now.
func NewCheckJob(mode Mode, now time.Time) CheckJob {
	return CheckJob{ID: uuid.NewString(), Mode: mode, JobStart: now}
}

// Run executes job's outer loop over the selected intervals, returning the
// spot list and terminal status.
func (e *Engine) Run(ctx context.Context, job CheckJob) (*SpotList, Status, error) {
	spots := &SpotList{}
	intervals := e.selectIntervals(job)

	if e.sink != nil && job.ID != "" {
		e.sink.Record(diag.DEBUG, "mediacheck", "check run "+job.ID+" started", 0)
	}

	itemCount := 0
	for _, iv := range intervals {
		status, n, err := e.scanInterval(ctx, job, iv.start, iv.end, spots, itemCount)
		itemCount = n
		if err != nil {
			return spots, StatusOK, err
		}
		if status == StatusAborted {
			return spots, StatusAborted, nil
		}
	}

	if e.md5State != nil && e.md5State.NextTagPosition > 0 {
		// A required tag never arrived at its announced position.
		spots.Append(Spot{StartLBA: e.md5State.NextTagPosition, BlockCount: 1, Quality: QualityMD5Mismatch})
		if e.sink != nil {
			e.sink.Record(diag.WARNING, "mediacheck", "required MD5 tag missing at expected position", 0)
		}
	}

	return spots, StatusOK, nil
}

type interval struct{ start, end int64 }

// selectIntervals partitions the job's range: one interval per track, or
// the single [MinLBA, MaxLBA) span for range/capacity scans.
func (e *Engine) selectIntervals(job CheckJob) []interval {
	switch job.Mode {
	case ModeTrackByTrack:
		bounds := append([]int64{}, job.TrackBoundaries...)
		if len(bounds) == 0 || bounds[0] != job.MinLBA {
			bounds = append([]int64{job.MinLBA}, bounds...)
		}
		bounds = append(bounds, job.MaxLBA)
		var out []interval
		for i := 0; i+1 < len(bounds); i++ {
			if bounds[i] < bounds[i+1] {
				out = append(out, interval{bounds[i], bounds[i+1]})
			}
		}
		return out
	default: // ModeImageRange, ModeWholeCapacity
		return []interval{{job.MinLBA, job.MaxLBA}}
	}
}

// scanInterval walks one interval chunk by chunk.
func (e *Engine) scanInterval(ctx context.Context, job CheckJob, start, end int64, spots *SpotList, itemCount int) (Status, int, error) {
	lba := start
	for lba < end {
		if aborted, reason := e.checkAbort(job, itemCount); aborted {
			spots.Append(Spot{StartLBA: lba, BlockCount: end - lba, Quality: QualityUntested})
			if e.sink != nil {
				e.sink.Record(diag.NOTE, "mediacheck", "aborted: "+reason, 0)
			}
			return StatusAborted, itemCount, nil
		}
		select {
		case <-ctx.Done():
			spots.Append(Spot{StartLBA: lba, BlockCount: end - lba, Quality: QualityUntested})
			return StatusAborted, itemCount, nil
		default:
		}

		chunkEnd := lba + job.ChunkBlocks
		if chunkEnd > end {
			chunkEnd = end
		}
		if b := nextBoundaryWithin(job.TrackBoundaries, lba, chunkEnd); b > lba {
			chunkEnd = b
		}

		tailStart := chunkEnd
		if job.IsCD && chunkEnd == end && chunkEnd-lba > 2 {
			// Final 2 blocks of a CD track: TAO closure makes them
			// unreadable while SAO preserves them, so read separately.
			tailStart = chunkEnd - 2
		}
		bodyEnd := tailStart

		if bodyEnd > lba {
			n, err := e.scanChunk(ctx, job, lba, bodyEnd, spots)
			if err != nil {
				return StatusOK, itemCount, err
			}
			itemCount += n
			lba = bodyEnd
		}

		if tailStart < chunkEnd {
			if job.TAOTail {
				spots.Append(Spot{StartLBA: tailStart, BlockCount: chunkEnd - tailStart, Quality: QualityTAOEnd})
			} else {
				n, err := e.scanChunk(ctx, job, tailStart, chunkEnd, spots)
				if err != nil {
					return StatusOK, itemCount, err
				}
				itemCount += n
			}
			lba = chunkEnd
		}
	}
	return StatusOK, itemCount, nil
}

// checkAbort tests the three abort conditions: external abort file with
// mtime >= job start, item limit reached, time limit reached.
func (e *Engine) checkAbort(job CheckJob, itemCount int) (bool, string) {
	if job.AbortFilePath != "" {
		if mtime, ok := e.StatAbortFile(job.AbortFilePath); ok && !mtime.Before(job.JobStart) {
			return true, "abort file present"
		}
	}
	if job.ItemLimit > 0 && itemCount >= job.ItemLimit+2 {
		return true, "item limit reached"
	}
	if job.TimeLimit > 0 && e.Now().Sub(job.JobStart) >= job.TimeLimit {
		return true, "time limit reached"
	}
	return false, ""
}

// nextBoundaryWithin returns the first track boundary strictly inside
// (lba, chunkEnd), or 0 if none exists. A chunk never crosses a
// session/track boundary.
func nextBoundaryWithin(boundaries []int64, lba, chunkEnd int64) int64 {
	best := int64(0)
	for _, b := range boundaries {
		if b > lba && b < chunkEnd {
			if best == 0 || b < best {
				best = b
			}
		}
	}
	return best
}

// scanChunk checks the sector map, reads [lba, end) with retries,
// classifies the outcome, and feeds the MD5 subsystem.
func (e *Engine) scanChunk(ctx context.Context, job CheckJob, lba, end int64, spots *SpotList) (int, error) {
	blocks := end - lba

	if e.sectorMap != nil && e.sectorMap.IsValid(lba) {
		spots.Append(Spot{StartLBA: lba, BlockCount: blocks, Quality: QualityValid})
		return 1, nil
	}

	readStart := e.Now()
	data, err := e.readWithRetry(ctx, job, lba, int(blocks))
	elapsed := e.Now().Sub(readStart)

	switch {
	case err == nil:
		quality := QualityGood
		if job.SlowThreshold > 0 && elapsed >= job.SlowThreshold {
			quality = QualitySlow
		}
		spots.Append(Spot{StartLBA: lba, BlockCount: blocks, Quality: quality})
		if job.MD5Enabled && e.hasher != nil {
			if ferr := e.hasher.Feed(data); ferr != nil {
				return 1, diag.Wrap(diag.KindResource, "feed MD5 worker", ferr)
			}
		}
		if job.MD5Enabled && e.md5State != nil {
			e.processMD5Tags(job, lba, data, spots)
		}
		return 1, nil
	case isPartialRead(err):
		partialBlocks := partialReadBlocks(err)
		if partialBlocks > 0 {
			spots.Append(Spot{StartLBA: lba, BlockCount: partialBlocks, Quality: QualityPartial})
		}
		remainderStart := lba + partialBlocks
		remainderQuality := QualityUnreadable
		if job.TAOTail && end-remainderStart <= 2 {
			remainderQuality = QualityTAOEnd
		}
		if end > remainderStart {
			spots.Append(Spot{StartLBA: remainderStart, BlockCount: end - remainderStart, Quality: remainderQuality})
		}
		return 1, nil
	default:
		spots.Append(Spot{StartLBA: lba, BlockCount: blocks, Quality: QualityUnreadable})
		return 1, nil
	}
}

func (e *Engine) readWithRetry(ctx context.Context, job CheckJob, lba int64, blocks int) ([]byte, error) {
	var lastErr error
	attempts := job.RetryPolicy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		data, err := e.reader.ReadBlock(ctx, lba, blocks)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if i+1 < attempts && job.RetryPolicy.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(job.RetryPolicy.Delay):
			}
		}
	}
	return nil, lastErr
}

// partialReadError marks a read that recovered some, but not all, of the
// requested blocks.
type partialReadError struct {
	goodBlocks int64
	err        error
}

func (p *partialReadError) Error() string { return p.err.Error() }
func (p *partialReadError) Unwrap() error { return p.err }

func isPartialRead(err error) bool {
	_, ok := err.(*partialReadError)
	return ok
}

func partialReadBlocks(err error) int64 {
	if p, ok := err.(*partialReadError); ok {
		return p.goodBlocks
	}
	return 0
}
