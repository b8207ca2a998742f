package infrastructure

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/jukebot/internal/modules/music_player/domain"
)

// MemoryRepository is an in-memory implementation of GuildStateRepository.
// The map is guarded for concurrent access; the states themselves are only
// touched on the event loop.
type MemoryRepository struct {
	mu     sync.RWMutex
	states map[snowflake.ID]*domain.GuildState
}

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		states: make(map[snowflake.ID]*domain.GuildState),
	}
}

// GetOrCreate returns the GuildState for the given guild, creating an idle
// state with an empty queue on first access.
func (r *MemoryRepository) GetOrCreate(guildID snowflake.ID) *domain.GuildState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[guildID]
	if !ok {
		state = domain.NewGuildState(guildID)
		r.states[guildID] = state
	}
	return state
}

// Get returns the GuildState for the given guild, or nil if none exists.
func (r *MemoryRepository) Get(guildID snowflake.ID) *domain.GuildState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.states[guildID]
}

// Delete removes the GuildState for the given guild.
func (r *MemoryRepository) Delete(guildID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, guildID)
}

// Count returns the number of guild states (for testing/monitoring).
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.states)
}

// Ensure MemoryRepository implements GuildStateRepository.
var _ domain.GuildStateRepository = (*MemoryRepository)(nil)
