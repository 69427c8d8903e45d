package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// In-memory implementations back local runs without Postgres/Redis and service tests.

type memoryConnectionRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Connection
}

// NewMemoryConnectionRepository returns a process-local connection store.
func NewMemoryConnectionRepository() ConnectionRepository {
	return &memoryConnectionRepository{items: make(map[string]*domain.Connection)}
}

func (r *memoryConnectionRepository) Get(_ context.Context, userID string) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.items[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return conn.Clone(), nil
}

func (r *memoryConnectionRepository) Put(_ context.Context, conn *domain.Connection) error {
	conn.Normalize()
	now := time.Now().UTC()
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = now
	}
	conn.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[conn.UserID] = conn.Clone()
	return nil
}

func (r *memoryConnectionRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, userID)
	return nil
}

type memoryOAuthStateRepository struct {
	mu      sync.Mutex
	byUser  map[string]domain.OAuthState
	byState map[string]domain.HandshakeRecord
}

// NewMemoryOAuthStateRepository returns a process-local handshake store.
// Expired records are left in place; callers check ExpiresAt.
func NewMemoryOAuthStateRepository() OAuthStateRepository {
	return &memoryOAuthStateRepository{
		byUser:  make(map[string]domain.OAuthState),
		byState: make(map[string]domain.HandshakeRecord),
	}
}

func (r *memoryOAuthStateRepository) Put(_ context.Context, userID string, st domain.OAuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byUser[userID]; ok {
		delete(r.byState, prev.State)
	}
	r.byUser[userID] = st
	r.byState[st.State] = domain.HandshakeRecord{UserID: userID, State: st}
	return nil
}

func (r *memoryOAuthStateRepository) GetByState(_ context.Context, state string) (*domain.HandshakeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byState[state]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (r *memoryOAuthStateRepository) DeleteForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.byUser[userID]; ok {
		delete(r.byState, st.State)
	}
	delete(r.byUser, userID)
	return nil
}

type memoryConversationRepository struct {
	mu       sync.Mutex
	states   map[string]*domain.SupportState
	messages map[string][]domain.ChatMessage
}

// NewMemoryConversationRepository returns a process-local transcript store.
func NewMemoryConversationRepository() ConversationRepository {
	return &memoryConversationRepository{
		states:   make(map[string]*domain.SupportState),
		messages: make(map[string][]domain.ChatMessage),
	}
}

func (r *memoryConversationRepository) LoadState(_ context.Context, conversationID string) (*domain.SupportState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[conversationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st.Clone(), nil
}

func (r *memoryConversationRepository) SaveState(_ context.Context, state *domain.SupportState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored, exists := r.states[state.ConversationID]
	switch {
	case state.Version == 0 && exists:
		return domain.ErrStateConflict
	case state.Version != 0 && (!exists || stored.Version != state.Version):
		return domain.ErrStateConflict
	}
	if state.Version == 0 {
		state.CreatedAt = now
	}
	state.Version++
	state.UpdatedAt = now
	r.states[state.ConversationID] = state.Clone()
	return nil
}

func (r *memoryConversationRepository) AppendMessage(_ context.Context, conversationID string, msg domain.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[conversationID] = append(r.messages[conversationID], msg)
	return nil
}

func (r *memoryConversationRepository) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.ChatMessage{}, all...), nil
}

type memoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

// NewMemoryTicketRepository returns a process-local ticket audit store.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{tickets: make(map[string]domain.Ticket)}
}

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r *memoryTicketRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	r.mu.RLock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
