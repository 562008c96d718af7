// Package region implements the aligned, power-of-two-sized region
// hierarchy spec.md §3 defines: line ⊂ block ⊂ chunk ⊂ space. Each level has
// a constant LOG_BYTES and regions compose by simple address masking,
// grounded on mheap.go's arena/span indexing arithmetic.
package region

import "github.com/gopherheap/gcplan/address"

// Size-class constants from the glossary: chunk is a 2^22-byte aligned
// unit (4 MiB); Immix's block is ~32 KiB and line ~256 B.
const (
	LogLineBytes  = 8  // 256 B
	LogBlockBytes = 15 // 32 KiB
	LogChunkBytes = 22 // 4 MiB

	LineBytes  = 1 << LogLineBytes
	BlockBytes = 1 << LogBlockBytes
	ChunkBytes = 1 << LogChunkBytes

	LinesPerBlock  = BlockBytes / LineBytes
	BlocksPerChunk = ChunkBytes / BlockBytes
)

// Line identifies a line-granularity region by its aligned start address.
type Line address.Address

// Block identifies a block-granularity region by its aligned start address.
type Block address.Address

// Chunk identifies a chunk-granularity region by its aligned start address.
type Chunk address.Address

// LineOf returns the line containing addr.
func LineOf(addr address.Address) Line { return Line(addr.AlignDown(LogLineBytes)) }

// BlockOf returns the block containing addr.
func BlockOf(addr address.Address) Block { return Block(addr.AlignDown(LogBlockBytes)) }

// ChunkOf returns the chunk containing addr.
func ChunkOf(addr address.Address) Chunk { return Chunk(addr.AlignDown(LogChunkBytes)) }

// Start returns the region's first address.
func (l Line) Start() address.Address  { return address.Address(l) }
func (b Block) Start() address.Address { return address.Address(b) }
func (c Chunk) Start() address.Address { return address.Address(c) }

// End returns the address one past the region's last byte.
func (l Line) End() address.Address  { return address.Address(l).Add(LineBytes) }
func (b Block) End() address.Address { return address.Address(b).Add(BlockBytes) }
func (c Chunk) End() address.Address { return address.Address(c).Add(ChunkBytes) }

// LineIndexInBlock returns l's 0-based index within its owning block.
func (l Line) LineIndexInBlock() int {
	return int(address.Address(l).Sub(BlockOf(address.Address(l)).Start())) / LineBytes
}

// BlockIndexInChunk returns b's 0-based index within its owning chunk.
func (b Block) BlockIndexInChunk() int {
	return int(address.Address(b).Sub(ChunkOf(address.Address(b)).Start())) / BlockBytes
}

// Lines returns the LinesPerBlock lines that make up b, in ascending order.
func (b Block) Lines() []Line {
	lines := make([]Line, 0, LinesPerBlock)
	for addr := b.Start(); addr.LT(b.End()); addr = addr.Add(LineBytes) {
		lines = append(lines, Line(addr))
	}
	return lines
}

// Blocks returns the BlocksPerChunk blocks that make up c, in ascending
// order.
func (c Chunk) Blocks() []Block {
	blocks := make([]Block, 0, BlocksPerChunk)
	for addr := c.Start(); addr.LT(c.End()); addr = addr.Add(BlockBytes) {
		blocks = append(blocks, Block(addr))
	}
	return blocks
}
