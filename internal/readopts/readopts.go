// Package readopts assembles the read-side options record from engine
// configuration, drives the image tree's load, tolerates recoverable
// trouble during best-effort loading, and differentiates "tree corrupted"
// failures with a hint.
package readopts

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/imagetree"
)

// Flags is the subset of engine configuration that shapes a load.
type Flags struct {
	DisableISO9660v1999 bool
	DisableAAIP         bool
	DisableACL          bool
	DisableEA           bool
	DisableInode        bool
	DisableMD5          bool
	DisableMD5Tag       bool
	InputCharset        string
	DisplacementLBA     int64
	ImgReadErrorMode    int // >= 1 lowers the abort threshold to SORRY
	DoHFSPlus           bool
}

// PacifierEvery10 wraps a counter update into the Pacifier callback shape
// imagetree.ReadOptions expects, firing once every 10 nodes loaded.
func PacifierEvery10(onTick func(nodesLoaded int)) func(int) {
	return func(nodesLoaded int) {
		if onTick != nil && nodesLoaded%10 == 0 {
			onTick(nodesLoaded)
		}
	}
}

// Build assembles an imagetree.ReadOptions record from Flags. Nodes
// default to owner 0, group 0, permissions 0555.
func Build(f Flags, onTick func(nodesLoaded int)) imagetree.ReadOptions {
	opts := imagetree.DefaultReadOptions()
	opts.DisableISO9660v1999 = f.DisableISO9660v1999
	opts.DisableAAIP = f.DisableAAIP
	opts.DisableACL = f.DisableACL
	opts.DisableEA = f.DisableEA
	opts.DisableInode = f.DisableInode
	opts.DisableMD5 = f.DisableMD5
	opts.DisableMD5Tag = f.DisableMD5Tag
	opts.InputCharset = f.InputCharset
	opts.DisplacementLBA = f.DisplacementLBA
	opts.Pacifier = PacifierEvery10(onTick)
	return opts
}

// Loader drives imagetree.Tree.ReadFrom with the abort-threshold and
// HFS+ propagation policies applied.
type Loader struct {
	sink *diag.Sink
}

// New builds a Loader reporting through sink (may be nil).
func New(sink *diag.Sink) *Loader {
	return &Loader{sink: sink}
}

// Load reads r into tree using opts built from f, lowering the abort
// threshold to SORRY for the duration of the load when
// f.ImgReadErrorMode >= 1, and re-recording the root's isofs.hx/isofs.hb
// attributes afterward when f.DoHFSPlus is set. No per-node walk of the
// tree is made.
func (l *Loader) Load(tree imagetree.Tree, r imagetree.Reader, f Flags, onTick func(int)) error {
	opts := Build(f, onTick)

	if f.ImgReadErrorMode >= 1 && l.sink != nil {
		restore := l.sink.WithAbortThreshold(diag.SORRY)
		defer restore()
	}

	if err := tree.ReadFrom(r, opts); err != nil {
		return l.diagnoseLoadFailure(err)
	}

	if f.DoHFSPlus {
		propagateHFSPlus(tree)
	}

	return nil
}

// diagnoseLoadFailure attaches the corrupted-tree hint: a foreign add-on
// session can raise a false MD5 alarm, and best-effort loading is the
// fallback for a genuinely damaged tree.
func (l *Loader) diagnoseLoadFailure(err error) error {
	if !strings.Contains(err.Error(), "tree corrupted") {
		return diag.Wrap(diag.KindFormat, "load image tree", err)
	}
	wrapped := diag.Wrap(diag.KindFormat, "load image tree", err)
	hint := fmt.Sprintf(
		"a foreign add-on session can trigger a false MD5 alarm here; " +
			"if this is expected, retry with best-effort image-loading mode")
	return wrapped.WithHint(hint)
}

// propagateHFSPlus re-records the isofs.hx/isofs.hb root attributes after
// a load so HFS+ extension metadata and blessings survive into the next
// write. The tree's internal node graph is opaque to this engine; the
// root-level attributes are the extent of its responsibility.
func propagateHFSPlus(tree imagetree.Tree) {
	if hx, ok := tree.RootAttribute("isofs.hx"); ok {
		tree.SetRootAttribute("isofs.hx", hx)
	}
	if hb, ok := tree.RootAttribute("isofs.hb"); ok {
		tree.SetRootAttribute("isofs.hb", hb)
	}
}
