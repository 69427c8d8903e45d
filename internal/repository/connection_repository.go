package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// ConnectionRepository stores the single integration connection per user.
type ConnectionRepository interface {
	Get(ctx context.Context, userID string) (*domain.Connection, error)
	Put(ctx context.Context, conn *domain.Connection) error
	Delete(ctx context.Context, userID string) error
}

// TokenSealer encrypts tokens at rest.
type TokenSealer interface {
	Seal(plaintext string) ([]byte, error)
	Open(sealed []byte) (string, error)
}

type connectionRepository struct {
	pool   *pgxpool.Pool
	sealer TokenSealer
}

// NewConnectionRepository instantiates repository.
func NewConnectionRepository(pool *pgxpool.Pool, sealer TokenSealer) ConnectionRepository {
	return &connectionRepository{pool: pool, sealer: sealer}
}

func (r *connectionRepository) Get(ctx context.Context, userID string) (*domain.Connection, error) {
	const query = `
        SELECT user_id, status, access_token, refresh_token, expires_at, scope,
               available_projects, default_project, connected_at, updated_at
        FROM integration_connections WHERE user_id=$1`

	var (
		conn          domain.Connection
		sealedAccess  []byte
		sealedRefresh []byte
		expiresAt     *time.Time
		projects      []byte
		defaultRaw    []byte
	)
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&conn.UserID,
		&conn.Status,
		&sealedAccess,
		&sealedRefresh,
		&expiresAt,
		&conn.Scope,
		&projects,
		&defaultRaw,
		&conn.ConnectedAt,
		&conn.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var err error
	if conn.AccessToken, err = r.sealer.Open(sealedAccess); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if conn.RefreshToken, err = r.sealer.Open(sealedRefresh); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	if expiresAt != nil {
		conn.ExpiresAt = *expiresAt
	}
	if len(projects) > 0 {
		if err := json.Unmarshal(projects, &conn.AvailableProjects); err != nil {
			return nil, fmt.Errorf("decode projects: %w", err)
		}
	}
	if len(defaultRaw) > 0 && string(defaultRaw) != "null" {
		var p domain.Project
		if err := json.Unmarshal(defaultRaw, &p); err != nil {
			return nil, fmt.Errorf("decode default project: %w", err)
		}
		conn.DefaultProject = &p
	}
	return &conn, nil
}

// Put overwrites the connection wholesale in a single statement.
func (r *connectionRepository) Put(ctx context.Context, conn *domain.Connection) error {
	conn.Normalize()

	sealedAccess, err := r.sealer.Seal(conn.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	sealedRefresh, err := r.sealer.Seal(conn.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	projects, err := json.Marshal(conn.AvailableProjects)
	if err != nil {
		return err
	}
	if conn.AvailableProjects == nil {
		projects = []byte("[]")
	}
	var defaultRaw []byte
	if conn.DefaultProject != nil {
		if defaultRaw, err = json.Marshal(conn.DefaultProject); err != nil {
			return err
		}
	}
	var expiresAt *time.Time
	if !conn.ExpiresAt.IsZero() {
		expiresAt = &conn.ExpiresAt
	}
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = time.Now().UTC()
	}
	conn.UpdatedAt = time.Now().UTC()

	const query = `
        INSERT INTO integration_connections (user_id, status, access_token, refresh_token, expires_at, scope,
            available_projects, default_project, connected_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (user_id) DO UPDATE SET
            status=EXCLUDED.status, access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token,
            expires_at=EXCLUDED.expires_at, scope=EXCLUDED.scope, available_projects=EXCLUDED.available_projects,
            default_project=EXCLUDED.default_project, connected_at=EXCLUDED.connected_at, updated_at=EXCLUDED.updated_at`
	_, err = r.pool.Exec(ctx, query,
		conn.UserID,
		conn.Status,
		sealedAccess,
		sealedRefresh,
		expiresAt,
		conn.Scope,
		string(projects),
		nullableJSON(defaultRaw),
		conn.ConnectedAt,
		conn.UpdatedAt,
	)
	return err
}

func (r *connectionRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM integration_connections WHERE user_id=$1`, userID)
	return err
}

func nullableJSON(raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}
