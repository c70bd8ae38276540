package node

import (
	"sync"

	"github.com/google/uuid"
)

// HookHandle unregisters a hook.
type HookHandle struct {
	id     uuid.UUID
	remove func(uuid.UUID)
}

// Remove unregisters the hook. Removing twice is harmless.
func (h HookHandle) Remove() {
	if h.remove != nil {
		h.remove(h.id)
	}
}

type hook[F any] struct {
	id uuid.UUID
	fn F
}

// hooks keeps functions in registration order.
type hooks[F any] struct {
	mu    sync.Mutex
	items []hook[F]
}

func (hs *hooks[F]) add(fn F) HookHandle {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	id := uuid.New()
	hs.items = append(hs.items, hook[F]{id: id, fn: fn})
	return HookHandle{id: id, remove: hs.remove}
}

func (hs *hooks[F]) remove(id uuid.UUID) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	for i, h := range hs.items {
		if h.id == id {
			hs.items = append(hs.items[:i:i], hs.items[i+1:]...)
			return
		}
	}
}

func (hs *hooks[F]) list() []F {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	fns := make([]F, 0, len(hs.items))
	for _, h := range hs.items {
		fns = append(fns, h.fn)
	}
	return fns
}
