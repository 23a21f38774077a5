package vm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/m0/pkg/bytecode"
)

var (
	// ErrChunkNotFound is returned when no registered chunk has the requested name.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrDuplicateChunk is returned when registering a name that is already linked.
	ErrDuplicateChunk = errors.New("duplicate chunk")
)

// Registry links loaded chunks so GOTO_CHUNK can find them by name.
// Chunks are kept in load order and never removed. Registration takes a
// write lock; lookups from running frames take a read lock, so one registry
// can serve many independent frames.
type Registry struct {
	mu     sync.RWMutex
	chunks []*bytecode.Chunk
}

// NewRegistry creates an empty chunk registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register builds a chunk from its segments and links it.
func (r *Registry) Register(name string, code *bytecode.Bytecode, consts *bytecode.Constants, meta *bytecode.Metadata) (*bytecode.Chunk, error) {
	if meta == nil {
		meta = bytecode.NewMetadata()
	}
	c := &bytecode.Chunk{Name: name, Code: code, Consts: consts, Meta: meta}
	if err := r.Add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Add links an already built chunk. A chunk is validated before it becomes
// reachable, so a partially built chunk is never visible to lookups.
func (r *Registry) Add(c *bytecode.Chunk) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.chunks {
		if existing.Name == c.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateChunk, c.Name)
		}
	}
	r.chunks = append(r.chunks, c)
	return nil
}

// AddAll links chunks in order, stopping at the first failure.
func (r *Registry) AddAll(chunks []*bytecode.Chunk) error {
	for _, c := range chunks {
		if err := r.Add(c); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the chunk whose name matches byte for byte.
func (r *Registry) Find(name string) (*bytecode.Chunk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.chunks {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// First returns the earliest loaded chunk, or nil for an empty registry.
func (r *Registry) First() *bytecode.Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.chunks) == 0 {
		return nil
	}
	return r.chunks[0]
}

// Chunks returns the linked chunks in load order.
func (r *Registry) Chunks() []*bytecode.Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*bytecode.Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// Len returns the number of linked chunks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}
