package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trove/api/internal/flow"
	"trove/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, display_name, email, password_hash, role, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, mapPgError(err)
	}
	return user, nil
}

// EnsureUserByName finds or creates the dev-login user with this name.
func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE display_name = $1`, name))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@local.trove.dev"
	user, err = scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (display_name) DO UPDATE SET updated_at = users.updated_at
		RETURNING `+userColumns,
		util.NewID("usr"), name, email))
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email)))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, strings.ToLower(user.Email), user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("create user: %w", mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.role, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash))
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) InsertContent(ctx context.Context, ownerID string, content flow.Content) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contents (id, owner_id, kind, title, creator, year, cover_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, content.ID, ownerID, string(content.Kind), content.Title, content.Creator, content.Year, content.CoverURL)
	if err != nil {
		return fmt.Errorf("insert content: %w", mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) GetContent(ctx context.Context, contentID string) (flow.Content, error) {
	var c flow.Content
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, title, creator, year, cover_url FROM contents WHERE id=$1
	`, contentID).Scan(&c.ID, &kind, &c.Title, &c.Creator, &c.Year, &c.CoverURL)
	if err != nil {
		return flow.Content{}, mapPgError(err)
	}
	c.Kind = flow.ContentKind(kind)
	return c, nil
}

// ListContents returns the owner's library, newest first. A non-empty query
// matches title or creator case-insensitively.
func (s *PostgresStore) ListContents(ctx context.Context, ownerID, query string, limit int) ([]flow.Content, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, title, creator, year, cover_url
		FROM contents
		WHERE owner_id = $1
			AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR creator ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id
		LIMIT $3
	`, ownerID, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer rows.Close()

	items := make([]flow.Content, 0)
	for rows.Next() {
		var c flow.Content
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.Title, &c.Creator, &c.Year, &c.CoverURL); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		c.Kind = flow.ContentKind(kind)
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return items, nil
}

// UsageCounts returns how many flows reference each content id. Ids with no
// usage are omitted.
func (s *PostgresStore) UsageCounts(ctx context.Context, contentIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(contentIDs))
	if len(contentIDs) == 0 {
		return counts, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_id, COUNT(DISTINCT flow_id)
		FROM flow_nodes
		WHERE content_id = ANY($1)
		GROUP BY content_id
	`, contentIDs)
	if err != nil {
		return nil, fmt.Errorf("usage counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan usage count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage counts: %w", err)
	}
	return counts, nil
}
