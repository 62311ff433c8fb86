package collage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrIndexOutOfRange = errors.New("collage: index out of range")

// Board is an ordered, editable list of collage slots. Every edit
// recomposes the whole collage. Compositions may finish out of order; a
// result only replaces the current one if it was started after it.
type Board struct {
	comp *Compositor

	mu         sync.Mutex
	items      []Source
	generation uint64
	latest     *Result
	latestGen  uint64
}

func NewBoard(comp *Compositor, items ...Source) *Board {
	return &Board{
		comp:  comp,
		items: append([]Source(nil), items...),
	}
}

// Len returns the number of slots.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Items returns a copy of the current slots in order.
func (b *Board) Items() []Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Source(nil), b.items...)
}

// Latest returns the most recent composition, or nil when the board is empty
// or nothing has been composed yet.
func (b *Board) Latest() *Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Recompose composes the current items without editing them.
func (b *Board) Recompose(ctx context.Context) (*Result, error) {
	return b.edit(ctx, func(items []Source) ([]Source, error) { return items, nil })
}

// Insert places s at index i, shifting later slots down. i == Len appends.
func (b *Board) Insert(ctx context.Context, i int, s Source) (*Result, error) {
	return b.edit(ctx, func(items []Source) ([]Source, error) {
		if i < 0 || i > len(items) {
			return nil, fmt.Errorf("%w: insert at %d, have %d", ErrIndexOutOfRange, i, len(items))
		}
		items = append(items, nil)
		copy(items[i+1:], items[i:])
		items[i] = s
		return items, nil
	})
}

// Delete removes slot i.
func (b *Board) Delete(ctx context.Context, i int) (*Result, error) {
	return b.edit(ctx, func(items []Source) ([]Source, error) {
		if err := checkIndex(i, len(items)); err != nil {
			return nil, err
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

// MoveUp swaps slot i with the slot above it.
func (b *Board) MoveUp(ctx context.Context, i int) (*Result, error) {
	return b.edit(ctx, func(items []Source) ([]Source, error) {
		if err := checkIndex(i, len(items)); err != nil {
			return nil, err
		}
		if i > 0 {
			items[i-1], items[i] = items[i], items[i-1]
		}
		return items, nil
	})
}

// MoveDown swaps slot i with the slot below it.
func (b *Board) MoveDown(ctx context.Context, i int) (*Result, error) {
	return b.edit(ctx, func(items []Source) ([]Source, error) {
		if err := checkIndex(i, len(items)); err != nil {
			return nil, err
		}
		if i < len(items)-1 {
			items[i+1], items[i] = items[i], items[i+1]
		}
		return items, nil
	})
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%w: %d, have %d", ErrIndexOutOfRange, i, n)
	}
	return nil
}

func (b *Board) edit(ctx context.Context, fn func([]Source) ([]Source, error)) (*Result, error) {
	b.mu.Lock()
	items, err := fn(append([]Source(nil), b.items...))
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.items = items
	b.generation++
	gen := b.generation
	snapshot := append([]Source(nil), items...)
	b.mu.Unlock()

	var res *Result
	if len(snapshot) > 0 {
		res, err = b.comp.Compose(ctx, snapshot)
		if err != nil {
			return nil, err
		}
	}

	b.commit(gen, res)
	return res, nil
}

func (b *Board) commit(gen uint64, res *Result) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen < b.latestGen {
		return false
	}
	b.latest = res
	b.latestGen = gen
	return true
}
