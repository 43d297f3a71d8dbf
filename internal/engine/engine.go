// Package engine holds the executable form of a query: one engine per
// snippet instance, made of blocks mirroring the snippet's plan nodes.
// This layer only assembles the graph; streaming execution lives
// behind the Block interface and is out of scope here.
package engine

import "github.com/perchdb/perch/internal/plan"

// Engine is the runnable form of one snippet. The coordinator holds
// one engine per coordinator snippet; every database server holds one
// engine per deployed (snippet, shard) pair.
type Engine struct {
	id     uint64
	blocks []Block
	root   Block
}

// New creates an empty engine under the given id. IDs come from the
// process-wide tick allocator so registry keys never collide.
func New(id uint64) *Engine {
	return &Engine{id: id}
}

// ID returns the engine id used as its registry key.
func (e *Engine) ID() uint64 {
	return e.id
}

// AddBlock appends a block to the engine. Blocks are added in
// dependency order; the last one added is the root candidate.
func (e *Engine) AddBlock(b Block) {
	e.blocks = append(e.blocks, b)
}

// Blocks returns the engine's blocks in insertion order.
func (e *Engine) Blocks() []Block {
	return e.blocks
}

// SetRoot marks the block results are pulled from.
func (e *Engine) SetRoot(b Block) {
	e.root = b
}

// Root returns the result block of the engine.
func (e *Engine) Root() Block {
	return e.root
}

// FromChain instantiates an engine for a decoded snippet chain, in
// wire order, wiring each block to its already-built dependencies.
// The last node of the chain becomes the root.
func FromChain(id uint64, nodes []*plan.Node) (*Engine, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyChain
	}

	e := New(id)
	built := make(map[uint64]Block, len(nodes))
	for _, n := range nodes {
		b, err := CreateBlock(n)
		if err != nil {
			return nil, err
		}
		for _, dep := range n.Deps {
			depBlock, ok := built[dep.ID]
			if !ok {
				return nil, ErrMissingDep.WithCausef("node:%d, dependency:%d", n.ID, dep.ID)
			}
			b.AddDependency(depBlock)
		}
		built[n.ID] = b
		e.AddBlock(b)
	}
	e.SetRoot(built[nodes[len(nodes)-1].ID])
	return e, nil
}
