// Package memtree is an in-memory imagetree.Tree used across the engine's
// package tests, so that tests exercise staging and planning logic
// without real ISO 9660 tree semantics behind them.
package memtree

import (
	"bytes"
	"errors"
	"io"

	"github.com/open-edge-platform/xorriso-engine/internal/imagetree"
)

// Tree is a minimal, fully in-memory imagetree.Tree.
type Tree struct {
	created    bool
	volIDs     imagetree.VolumeIdentifiers
	bootImages []imagetree.EltoritoImage
	sysArea    [32 * 1024]byte
	sysOpts    imagetree.SystemAreaOptions
	md5Mode    imagetree.MD5Mode
	fileMD5    map[string][16]byte
	sessionMD5 [16]byte
	hasSession bool
	attrs      map[string]string
	sizeBlocks int64

	nodes         map[string]bool
	prepPartition string
	efiPartition  string
	sparcLabel    string
	sparcCore     string
	mipsBootFiles []string
	mipsELBoot    string
}

// New returns an empty Tree, matching the effect of CreateEmpty.
func New() *Tree {
	t := &Tree{fileMD5: map[string][16]byte{}, attrs: map[string]string{}, nodes: map[string]bool{}}
	return t
}

func (t *Tree) CreateEmpty() error {
	t.created = true
	return nil
}

func (t *Tree) ReadFrom(r imagetree.Reader, opts imagetree.ReadOptions) error {
	t.created = true
	t.sizeBlocks = r.Size() / 2048
	if opts.Pacifier != nil {
		opts.Pacifier(0)
	}
	return nil
}

func (t *Tree) UpdateSizes() error { return nil }

func (t *Tree) BurnSource() (imagetree.BurnSource, error) {
	return &memBurnSource{r: bytes.NewReader(make([]byte, t.sizeBlocks*2048)), total: t.sizeBlocks}, nil
}

func (t *Tree) GetVolumeIdentifiers() imagetree.VolumeIdentifiers  { return t.volIDs }
func (t *Tree) SetVolumeIdentifiers(v imagetree.VolumeIdentifiers) { t.volIDs = v }

func (t *Tree) FirstBootImage() (imagetree.EltoritoImage, bool) {
	if len(t.bootImages) == 0 {
		return imagetree.EltoritoImage{}, false
	}
	return t.bootImages[0], true
}

func (t *Tree) SetFirstBootImage(e imagetree.EltoritoImage) {
	if len(t.bootImages) == 0 {
		t.bootImages = append(t.bootImages, e)
	} else {
		t.bootImages[0] = e
	}
	t.AddNode(e.CatalogFile)
}

func (t *Tree) AddBootImage(e imagetree.EltoritoImage) {
	t.bootImages = append(t.bootImages, e)
	t.AddNode(e.CatalogFile)
}

func (t *Tree) BootImages() []imagetree.EltoritoImage { return t.bootImages }

func (t *Tree) SetSystemArea(buf [32 * 1024]byte, opts imagetree.SystemAreaOptions) {
	t.sysArea = buf
	t.sysOpts = opts
}

func (t *Tree) SystemArea() ([32 * 1024]byte, imagetree.SystemAreaOptions) {
	return t.sysArea, t.sysOpts
}

func (t *Tree) SetMD5Mode(m imagetree.MD5Mode) { t.md5Mode = m }

func (t *Tree) LookupFileMD5(path string) ([16]byte, bool) {
	v, ok := t.fileMD5[path]
	return v, ok
}

func (t *Tree) LookupSessionMD5() ([16]byte, bool) { return t.sessionMD5, t.hasSession }

// SetSessionMD5 lets tests stage a recorded session MD5 tag.
func (t *Tree) SetSessionMD5(h [16]byte) {
	t.sessionMD5 = h
	t.hasSession = true
}

const maxMIPSBootFiles = 15

func (t *Tree) SetPRePPartition(path string)    { t.prepPartition = path }
func (t *Tree) SetEFIBootPartition(path string) { t.efiPartition = path }
func (t *Tree) SetSPARCDiscLabel(label string)  { t.sparcLabel = label }
func (t *Tree) SetGRUB2SPARCCore(path string)   { t.sparcCore = path }

func (t *Tree) AddMIPSBootFile(path string) error {
	if len(t.mipsBootFiles) >= maxMIPSBootFiles {
		return errors.New("memtree: MIPS volume header boot file list is full")
	}
	t.mipsBootFiles = append(t.mipsBootFiles, path)
	return nil
}

func (t *Tree) SetMIPSLittleEndianBootFile(path string) { t.mipsELBoot = path }

// MIPSBootFiles exposes the staged big-endian list for tests.
func (t *Tree) MIPSBootFiles() []string { return append([]string(nil), t.mipsBootFiles...) }

// SPARCDiscLabel exposes the staged label for tests.
func (t *Tree) SPARCDiscLabel() (label, core string) { return t.sparcLabel, t.sparcCore }

func (t *Tree) HasNode(path string) bool {
	if path == "" {
		return false
	}
	return t.nodes[path]
}

func (t *Tree) RemoveNode(path string) { delete(t.nodes, path) }

func (t *Tree) AddNode(path string) {
	if path != "" {
		t.nodes[path] = true
	}
}

func (t *Tree) RootAttribute(name string) (string, bool) {
	v, ok := t.attrs[name]
	return v, ok
}

func (t *Tree) SetRootAttribute(name, value string) { t.attrs[name] = value }

func (t *Tree) SizeBlocks() int64 { return t.sizeBlocks }

// SetSizeBlocks lets tests stage a particular tree size without a real read.
func (t *Tree) SetSizeBlocks(n int64) { t.sizeBlocks = n }

type memBurnSource struct {
	r     io.Reader
	total int64
}

func (m *memBurnSource) Read(p []byte) (int, error) { return m.r.Read(p) }
func (m *memBurnSource) TotalBlocks() int64         { return m.total }
