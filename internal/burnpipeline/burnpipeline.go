// Package burnpipeline drives one write: it polls the burn backend's
// state machine, emits progress lines at a bounded cadence, settles the
// end-of-stream race against the image generator, plumbs cancellation,
// and relocates the image superblock after a growth write. An optional
// progressbar is layered above the machine-readable progress line for
// interactive runs.
package burnpipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/drive"
)

const (
	pollInterval           = 100 * time.Millisecond
	minEmitInterval        = 1 * time.Second
	endOfStreamGraceCycles = 5

	speedFactorBD      = 4495625
	speedFactorCD      = 150 * 1024
	speedFactorDefault = 1385000
)

var canonicalCDSpeeds = []int{8, 10, 12, 16, 24, 32, 40, 48, 52}

// SpeedUnit returns the speed-unit letter and divisor factor for profile:
// B for BD media, C for CD media, D for everything else.
func SpeedUnit(profile burnbackend.Profile) (letter string, factor float64) {
	switch profile {
	case burnbackend.ProfileBDR_SRM, burnbackend.ProfileBDRE:
		return "B", speedFactorBD
	case burnbackend.ProfileCDR, burnbackend.ProfileCDRW:
		return "C", speedFactorCD
	default:
		return "D", speedFactorDefault
	}
}

// NormalizeCDSpeed snaps x to the nearest canonical CD speed multiplier,
// the way drives advertise their nominal kB/s rates.
func NormalizeCDSpeed(x float64) int {
	best := canonicalCDSpeeds[0]
	bestDiff := diffFloat(x, float64(best))
	for _, c := range canonicalCDSpeeds[1:] {
		if d := diffFloat(x, float64(c)); d < bestDiff {
			best, bestDiff = c, d
		}
	}
	return best
}

func diffFloat(a, b float64) float64 {
	if a >= b {
		return a - b
	}
	return b - a
}

// ProgressLine carries the rendered fields for one progress emission.
type ProgressLine struct {
	ElapsedSeconds int
	PercentDone    int
	FifoPercent    int
	BufPercent     int
	Speed          float64
	SpeedUnit      string
}

// FormatProgressLine renders l in the default progress style.
func FormatProgressLine(l ProgressLine) string {
	return fmt.Sprintf("Writing: %10ds %d%% fifo %3d%% buf %3d%% %5.1fx%s",
		l.ElapsedSeconds, l.PercentDone, l.FifoPercent, l.BufPercent, l.Speed, l.SpeedUnit)
}

// EstimateFinish computes the estimated finish time only after at least
// 2 s have elapsed and 2% is done, using a rolling base point updated
// every 10 s to damp jitter.
type EstimateFinish struct {
	baseElapsed time.Duration
	basePercent float64
	lastRebase  time.Duration
}

// Update feeds one sample and returns the estimated remaining duration,
// or ok=false if the policy's preconditions aren't met yet.
func (e *EstimateFinish) Update(elapsed time.Duration, percentDone float64) (remaining time.Duration, ok bool) {
	if elapsed < 2*time.Second || percentDone < 2.0 {
		return 0, false
	}
	deltaElapsed := elapsed - e.baseElapsed
	deltaPercent := percentDone - e.basePercent
	if elapsed-e.lastRebase >= 10*time.Second {
		e.baseElapsed = elapsed
		e.basePercent = percentDone
		e.lastRebase = elapsed
	}
	if deltaPercent <= 0 {
		return 0, false
	}
	rate := float64(deltaElapsed) / deltaPercent // duration per percent point
	remainingPercent := 100.0 - percentDone
	remaining = time.Duration(rate * remainingPercent)
	return remaining, true
}

// Pipeline drives the polling loop for one write.
type Pipeline struct {
	handle *drive.Handle
	sink   *diag.Sink
	bar    *progressbar.ProgressBar

	Clock func() time.Time
	Sleep func(time.Duration)
}

// New builds a Pipeline over an acquired outdev Handle, optionally
// layering a TTY progress bar (schollz/progressbar/v3) of totalBlocks
// above the machine-readable line; the bar is built only when tty is true
// and totalBlocks > 0.
func New(h *drive.Handle, sink *diag.Sink, totalBlocks int64, tty bool) *Pipeline {
	var bar *progressbar.ProgressBar
	if tty && totalBlocks > 0 {
		bar = progressbar.DefaultBytes(totalBlocks*2048, "writing")
	}
	return &Pipeline{
		handle: h,
		sink:   sink,
		bar:    bar,
		Clock:  time.Now,
		Sleep:  time.Sleep,
	}
}

// GeneratorDone reports whether the image-generator side has finished
// producing the burn source.
type GeneratorDone func() bool

// Run polls the backend until it reports idle, emitting progress lines at
// >=1s cadence. When the burner drains its input before the generator has
// flushed its last structures, Run waits a bounded number of polling
// cycles before asking the backend to cancel the prepared write.
func (p *Pipeline) Run(ctx context.Context, genDone GeneratorDone, emit func(string)) error {
	start := p.Clock()
	var lastEmit time.Duration
	var eta EstimateFinish
	idleCycles := 0

	for {
		select {
		case <-ctx.Done():
			// Request cancellation, then keep polling until the backend
			// reports idle so no writer thread outlives Run.
			_ = p.handle.Raw().Cancel()
			p.drainUntilIdle()
			return ctx.Err()
		default:
		}

		counters, status := p.handle.Raw().Progress()
		elapsed := p.Clock().Sub(start)

		if status == burnbackend.StatusIdle {
			if genDone != nil && !genDone() && idleCycles < endOfStreamGraceCycles {
				idleCycles++
				p.Sleep(pollInterval)
				continue
			}
			if genDone != nil && !genDone() {
				_ = p.handle.Raw().Cancel()
			}
			return nil
		}
		idleCycles = 0

		if elapsed-lastEmit >= minEmitInterval {
			lastEmit = elapsed
			pct := percentDone(counters)
			letter, factor := SpeedUnit(profileOf(p.handle))
			speed := speedMultiple(counters, elapsed, factor)
			if letter == "C" {
				speed = float64(NormalizeCDSpeed(speed))
			}
			line := FormatProgressLine(ProgressLine{
				ElapsedSeconds: int(elapsed.Seconds()),
				PercentDone:    pct,
				FifoPercent:    fifoPercent(counters),
				BufPercent:     bufPercent(counters),
				Speed:          speed,
				SpeedUnit:      letter,
			})
			if emit != nil {
				emit(line)
			}
			if p.bar != nil {
				_ = p.bar.Set64(counters.Sector * 2048)
			}
			eta.Update(elapsed, float64(pct))
		}

		p.Sleep(pollInterval)
	}
}

// drainUntilIdle polls the backend after a cancellation request until it
// reports idle.
func (p *Pipeline) drainUntilIdle() {
	for {
		if _, status := p.handle.Raw().Progress(); status == burnbackend.StatusIdle {
			return
		}
		p.Sleep(pollInterval)
	}
}

func profileOf(h *drive.Handle) burnbackend.Profile {
	profile, _, err := h.Profile()
	if err != nil {
		return burnbackend.ProfileUnknown
	}
	return profile
}

func percentDone(c burnbackend.ProgressCounters) int {
	if c.Sectors == 0 {
		return 0
	}
	return int(c.Sector * 100 / c.Sectors)
}

func fifoPercent(c burnbackend.ProgressCounters) int {
	if c.BufferCapacity == 0 {
		return 0
	}
	return c.BufferAvailable * 100 / c.BufferCapacity
}

func bufPercent(c burnbackend.ProgressCounters) int {
	return fifoPercent(c)
}

func speedMultiple(c burnbackend.ProgressCounters, elapsed time.Duration, factor float64) float64 {
	if elapsed <= 0 || factor == 0 {
		return 0
	}
	bytesPerSec := float64(c.Sector*2048) / elapsed.Seconds()
	return bytesPerSec / factor
}

// RelocateSuperblock finishes a growth write: re-read 32 blocks at
// sessionStartLBA, patch PVD bytes 80..87 (volume size, little then big
// endian) to sessionStartLBA+isoBlocks, and overwrite LBAs 0..31 with the
// patched buffer. When relocating into a file copy (verifyFileCopy), also
// zero any MD5 tag immediately following the volume-descriptor-set
// terminator, since the copy invalidates it.
func RelocateSuperblock(ctx context.Context, h *drive.Handle, sessionStartLBA, isoBlocks int64, verifyFileCopy bool) error {
	const relocateBlocks = 32
	buf, err := h.ReadBlock(ctx, sessionStartLBA, relocateBlocks)
	if err != nil {
		return diag.Wrap(diag.KindResource, "re-read 32 blocks for superblock relocation", err)
	}
	if len(buf) < 16*2048+88 {
		return diag.New(diag.KindBounds, "superblock relocation buffer shorter than the PVD block")
	}

	newSize := uint32(sessionStartLBA + isoBlocks)
	// The PVD sits at logical sector 16 relative to the session start
	// (ECMA-119), i.e. block index 16 within this 32-block reread window.
	const pvdBlock = 16
	pvd := buf[pvdBlock*2048 : pvdBlock*2048+2048]
	binary.LittleEndian.PutUint32(pvd[80:84], newSize)
	binary.BigEndian.PutUint32(pvd[84:88], newSize)

	if verifyFileCopy {
		zeroMD5TagAfterTerminator(buf)
	}

	if err := h.WriteRegion(ctx, 0, buf); err != nil {
		return diag.Wrap(diag.KindResource, "overwrite LBAs 0..31 after relocation", err)
	}
	return nil
}

// zeroMD5TagAfterTerminator zeroes the 2048-byte block immediately
// following the volume-descriptor-set terminator (type 255), the block a
// superblock MD5 tag would occupy.
func zeroMD5TagAfterTerminator(buf []byte) {
	const blockSize = 2048
	for off := 0; off+blockSize <= len(buf); off += blockSize {
		if buf[off] == 255 { // volume descriptor type 255: set terminator
			tagStart := off + blockSize
			tagEnd := tagStart + blockSize
			if tagEnd <= len(buf) {
				for i := tagStart; i < tagEnd; i++ {
					buf[i] = 0
				}
			}
			return
		}
	}
}
