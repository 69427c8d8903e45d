package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// ConversationRepository is the transcript store: support state plus messages.
type ConversationRepository interface {
	LoadState(ctx context.Context, conversationID string) (*domain.SupportState, error)
	// SaveState inserts when Version is zero, otherwise updates only if the
	// stored version still matches. Returns domain.ErrStateConflict on a lost race.
	SaveState(ctx context.Context, state *domain.SupportState) error
	AppendMessage(ctx context.Context, conversationID string, msg domain.ChatMessage) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error)
}

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository instantiates repository.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

func (r *conversationRepository) LoadState(ctx context.Context, conversationID string) (*domain.SupportState, error) {
	const query = `
        SELECT state, version, created_at, updated_at
        FROM support_states WHERE conversation_id=$1`

	var (
		raw   []byte
		state domain.SupportState
	)
	if err := r.pool.QueryRow(ctx, query, conversationID).Scan(&raw, &state.Version, &state.CreatedAt, &state.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode support state: %w", err)
	}
	return &state, nil
}

func (r *conversationRepository) SaveState(ctx context.Context, state *domain.SupportState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode support state: %w", err)
	}
	now := time.Now().UTC()

	if state.Version == 0 {
		const insert = `
            INSERT INTO support_states (conversation_id, user_id, state, version, created_at, updated_at)
            VALUES ($1,$2,$3,1,$4,$4)`
		if _, err := r.pool.Exec(ctx, insert, state.ConversationID, state.UserID, string(raw), now); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.ErrStateConflict
			}
			return err
		}
		state.Version = 1
		state.CreatedAt = now
		state.UpdatedAt = now
		return nil
	}

	const update = `
        UPDATE support_states SET state=$1, version=version+1, updated_at=$2
        WHERE conversation_id=$3 AND version=$4`
	cmd, err := r.pool.Exec(ctx, update, string(raw), now, state.ConversationID, state.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrStateConflict
	}
	state.Version++
	state.UpdatedAt = now
	return nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, conversationID string, msg domain.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO conversation_messages (conversation_id, role, content, created_at)
        VALUES ($1,$2,$3,$4)`
	_, err := r.pool.Exec(ctx, query, conversationID, msg.Role, msg.Content, msg.CreatedAt)
	return err
}

func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT role, content, created_at FROM (
            SELECT id, role, content, created_at FROM conversation_messages
            WHERE conversation_id=$1 ORDER BY id DESC LIMIT $2
        ) recent ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
