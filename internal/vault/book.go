package vault

import (
	"github.com/atmx/zdte-vault/internal/model"
)

// book is the ordered, id-indexed collection of positions. Ids are assigned
// from nextID and never reused. Only the vault mutates it, under its lock.
type book struct {
	positions []model.Position
	index     map[uint64]int
	nextID    uint64
}

func newBook() *book {
	return &book{index: make(map[uint64]int), nextID: 1}
}

// load replaces the book's contents. positions must be sorted by id.
func (b *book) load(positions []model.Position, nextID uint64) {
	b.positions = make([]model.Position, 0, len(positions))
	b.index = make(map[uint64]int, len(positions))
	b.nextID = 1
	for _, p := range positions {
		b.put(p)
	}
	if nextID > b.nextID {
		b.nextID = nextID
	}
}

func (b *book) get(id uint64) (model.Position, bool) {
	i, ok := b.index[id]
	if !ok {
		return model.Position{}, false
	}
	return b.positions[i], true
}

// put inserts a new position or replaces the record with the same id.
func (b *book) put(p model.Position) {
	if i, ok := b.index[p.ID]; ok {
		b.positions[i] = p
		return
	}
	b.index[p.ID] = len(b.positions)
	b.positions = append(b.positions, p)
	if p.ID >= b.nextID {
		b.nextID = p.ID + 1
	}
}

// open returns unsettled positions in id order.
func (b *book) open() []model.Position {
	var out []model.Position
	for _, p := range b.positions {
		if !p.Settled {
			out = append(out, p)
		}
	}
	return out
}

// byOwner returns the owner's positions in id order; an empty owner
// matches every position.
func (b *book) byOwner(owner string) []model.Position {
	out := make([]model.Position, 0)
	for _, p := range b.positions {
		if owner == "" || p.Owner == owner {
			out = append(out, p)
		}
	}
	return out
}

func (b *book) all() []model.Position {
	out := make([]model.Position, len(b.positions))
	copy(out, b.positions)
	return out
}
