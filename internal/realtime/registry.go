package realtime

import (
	"context"
	"sync"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

// Registry tracks which connection belongs to which session and player.
// Lookup and Remove return domain.ErrRegistrationNotFound for unknown ids.
// PlayerConnections counts the live registrations of one player in one
// session, so a player with several tabs open is only gone after the last.
type Registry interface {
	Register(ctx context.Context, reg domain.Registration) error
	Lookup(ctx context.Context, connectionID string) (domain.Registration, error)
	Remove(ctx context.Context, connectionID string) error
	PlayerConnections(ctx context.Context, sessionID, playerID string) (int, error)
}

// MemoryRegistry is the process-local Registry.
type MemoryRegistry struct {
	mu   sync.RWMutex
	regs map[string]domain.Registration
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{regs: make(map[string]domain.Registration)}
}

func (r *MemoryRegistry) Register(_ context.Context, reg domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[reg.ConnectionID] = reg
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, connectionID string) (domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[connectionID]
	if !ok {
		return domain.Registration{}, domain.ErrRegistrationNotFound
	}
	return reg, nil
}

func (r *MemoryRegistry) Remove(_ context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[connectionID]; !ok {
		return domain.ErrRegistrationNotFound
	}
	delete(r.regs, connectionID)
	return nil
}

func (r *MemoryRegistry) PlayerConnections(_ context.Context, sessionID, playerID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, reg := range r.regs {
		if reg.SessionID == sessionID && reg.PlayerID == playerID {
			n++
		}
	}
	return n, nil
}

// Count returns the number of live registrations.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}
