package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// OAuthStateRepository stores in-flight handshakes under two keys: the
// initiating user and the state token. Both views are written and removed together.
type OAuthStateRepository interface {
	Put(ctx context.Context, userID string, st domain.OAuthState) error
	GetByState(ctx context.Context, state string) (*domain.HandshakeRecord, error)
	DeleteForUser(ctx context.Context, userID string) error
}

const (
	handshakeUserPrefix  = "oauth:handshake:user:"
	handshakeStatePrefix = "oauth:handshake:state:"
)

type redisOAuthStateRepository struct {
	client *redis.Client
}

// NewOAuthStateRepository instantiates a Redis-backed handshake store.
func NewOAuthStateRepository(client *redis.Client) OAuthStateRepository {
	return &redisOAuthStateRepository{client: client}
}

// Put replaces the user's pending handshake, dropping the previous state key.
func (r *redisOAuthStateRepository) Put(ctx context.Context, userID string, st domain.OAuthState) error {
	ttl := st.ExpiresAt.Sub(st.Timestamp)
	if ttl <= 0 {
		return fmt.Errorf("handshake %s already expired", st.State)
	}

	userPayload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	statePayload, err := json.Marshal(domain.HandshakeRecord{UserID: userID, State: st})
	if err != nil {
		return err
	}

	previous, err := r.userHandshake(ctx, userID)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != nil && previous.State != st.State {
			pipe.Del(ctx, handshakeStatePrefix+previous.State)
		}
		pipe.Set(ctx, handshakeUserPrefix+userID, userPayload, ttl)
		pipe.Set(ctx, handshakeStatePrefix+st.State, statePayload, ttl)
		return nil
	})
	return err
}

func (r *redisOAuthStateRepository) GetByState(ctx context.Context, state string) (*domain.HandshakeRecord, error) {
	raw, err := r.client.Get(ctx, handshakeStatePrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var record domain.HandshakeRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode handshake: %w", err)
	}
	return &record, nil
}

// DeleteForUser removes both views of the user's handshake. Missing keys are not an error.
func (r *redisOAuthStateRepository) DeleteForUser(ctx context.Context, userID string) error {
	current, err := r.userHandshake(ctx, userID)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, handshakeUserPrefix+userID)
		if current != nil {
			pipe.Del(ctx, handshakeStatePrefix+current.State)
		}
		return nil
	})
	return err
}

func (r *redisOAuthStateRepository) userHandshake(ctx context.Context, userID string) (*domain.OAuthState, error) {
	raw, err := r.client.Get(ctx, handshakeUserPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var st domain.OAuthState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode handshake: %w", err)
	}
	return &st, nil
}

// HandshakeTTL reports the remaining lifetime of the state key, for diagnostics.
func (r *redisOAuthStateRepository) HandshakeTTL(ctx context.Context, state string) (time.Duration, error) {
	return r.client.TTL(ctx, handshakeStatePrefix+state).Result()
}
