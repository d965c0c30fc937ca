// Package cache is the cached interpreter's block store (spec §4.C.i):
// a per-PC map of decoded instruction runs plus a per-page "has a
// block starting here" index, keyed by xxhash so invalidation on a
// ROM/IWRAM write is a single hash-map lookup rather than a scan of
// every cached block.
package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// PageSize is the granularity at which writes invalidate cached
// blocks: any write whose address falls in a page that some block
// started in drops every block that started in that page.
const PageSize = 1024

// MaxBlockLen caps how many instructions a single block may contain,
// per spec's "(d) block length cap reached" terminator.
const MaxBlockLen = 64

// Step is one decoded instruction within a block: its raw encoding,
// whether it's a Thumb halfword, and the wait cycles its fetch cost
// at decode time (spec: "a sequence of decoded (raw_inst, handler_ptr,
// sn_cycles) records").
type Step struct {
	PC     uint32
	Raw    uint32
	Thumb  bool
	Cycles uint16
}

// Block is a run of instructions starting at PC that executed
// contiguously the first time the interpreter reached PC: no branch,
// no IRQ, no page crossing, until Steps ends.
type Block struct {
	PC    uint32
	Steps []Step
}

// Cache holds every known block plus the page index used to
// invalidate them in bulk.
type Cache struct {
	blocks map[uint32]*Block
	pages  map[uint64]map[uint32]struct{} // xxhash(page) -> set of block start PCs in that page
}

func New() *Cache {
	return &Cache{
		blocks: make(map[uint32]*Block),
		pages:  make(map[uint64]map[uint32]struct{}),
	}
}

func pageKey(addr uint32) uint64 {
	page := addr / PageSize
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], page)
	return xxhash.Sum64(b[:])
}

// Lookup returns the block starting at pc, if one is cached.
func (c *Cache) Lookup(pc uint32) (*Block, bool) {
	b, ok := c.blocks[pc]
	return b, ok
}

// Store records a freshly decoded block, indexing it under its
// starting page for later invalidation.
func (c *Cache) Store(b *Block) {
	c.blocks[b.PC] = b
	pk := pageKey(b.PC)
	set, ok := c.pages[pk]
	if !ok {
		set = make(map[uint32]struct{})
		c.pages[pk] = set
	}
	set[b.PC] = struct{}{}
}

// InvalidateAddr drops every block that starts within addr's page.
// Called on any write to a cacheable region (ROM-mirror patch carts,
// IWRAM self-modifying code).
func (c *Cache) InvalidateAddr(addr uint32) {
	pk := pageKey(addr)
	set, ok := c.pages[pk]
	if !ok {
		return
	}
	for pc := range set {
		delete(c.blocks, pc)
	}
	delete(c.pages, pk)
}

// Clear drops every cached block; used on a full core reset.
func (c *Cache) Clear() {
	c.blocks = make(map[uint32]*Block)
	c.pages = make(map[uint64]map[uint32]struct{})
}

// Len reports how many blocks are currently cached, for diagnostics
// and tests.
func (c *Cache) Len() int { return len(c.blocks) }
