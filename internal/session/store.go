package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/db"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm"
)

var (
	// ErrNoSession means there is no usable session: unknown id, logged out or expired.
	ErrNoSession = errors.New("session: not found")
	// ErrEmptyToken rejects a login answer without a bearer token.
	ErrEmptyToken = errors.New("session: empty token")
)

const nonceSize = 24

// Session is the server side view of a signed-in user.
type Session struct {
	ID         string
	User       backnews.User
	Token      string
	ExpiresAt  *time.Time
	LastSeenAt time.Time
}

// Expired reports whether the token expiry has passed at now.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Store persists sessions in the admin_sessions table. Tokens are sealed with
// secretbox under a key derived from the session secret.
type Store struct {
	db     *gorm.DB
	key    [32]byte
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(conn *gorm.DB, secret string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     conn,
		key:    blake2b.Sum256([]byte(secret)),
		now:    time.Now,
		logger: logger,
	}
}

// Create persists a freshly authenticated user and token (login).
func (s *Store) Create(ctx context.Context, user backnews.User, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrEmptyToken
	}
	sealed, err := s.seal(token)
	if err != nil {
		return Session{}, err
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		return Session{}, fmt.Errorf("session: encode user: %w", err)
	}

	now := s.now()
	row := db.AdminSession{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Username:    user.Username,
		Role:        string(user.Role),
		UserJSON:    string(userJSON),
		SealedToken: sealed,
		ExpiresAt:   TokenExpiry(token),
		LastSeenAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}
	s.logger.Info("session created", "session", row.ID, "user", user.Username, "role", user.Role)

	return Session{ID: row.ID, User: user, Token: token, ExpiresAt: row.ExpiresAt, LastSeenAt: now}, nil
}

// Load rehydrates a session from storage. The stored user is returned as is;
// reconciliation with the API happens separately.
func (s *Store) Load(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNoSession
	}
	var row db.AdminSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("session: load: %w", err)
	}

	sess, err := s.decode(row)
	if err != nil {
		s.logger.Warn("dropping unreadable session", "session", id, "error", err)
		_ = s.Destroy(ctx, id)
		return Session{}, ErrNoSession
	}
	if sess.Expired(s.now()) {
		_ = s.Destroy(ctx, id)
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Touch records activity on the session.
func (s *Store) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Model(&db.AdminSession{}).
		Where("id = ?", id).
		Update("last_seen_at", s.now()).Error
}

// UpdateUser replaces the stored user snapshot with the authoritative one.
func (s *Store) UpdateUser(ctx context.Context, id string, user backnews.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.db.WithContext(ctx).Model(&db.AdminSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"user_id":      user.ID,
			"username":     user.Username,
			"role":         string(user.Role),
			"user_json":    string(userJSON),
			"refreshed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("session: update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoSession
	}
	return nil
}

// Destroy removes the session (logout). Unknown ids are not an error.
func (s *Store) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&db.AdminSession{}).Error; err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// Invalidate destroys a session after the API rejected its token.
func (s *Store) Invalidate(ctx context.Context, id string) error {
	s.logger.Warn("session invalidated by upstream 401", "session", id)
	return s.Destroy(ctx, id)
}

// Purge deletes expired sessions and those idle for longer than idle (0 keeps idle ones).
func (s *Store) Purge(ctx context.Context, idle time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	query := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", now)
	if idle > 0 {
		query = query.Or("last_seen_at < ?", now.Add(-idle))
	}
	result := query.Delete(&db.AdminSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("session: purge: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("purged sessions", "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// Active returns every unexpired session.
func (s *Store) Active(ctx context.Context) ([]Session, error) {
	var rows []db.AdminSession
	if err := s.db.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", s.now()).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		sess, err := s.decode(row)
		if err != nil {
			s.logger.Warn("skipping unreadable session", "session", row.ID, "error", err)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) decode(row db.AdminSession) (Session, error) {
	token, err := s.open(row.SealedToken)
	if err != nil {
		return Session{}, err
	}
	var user backnews.User
	if err := json.Unmarshal([]byte(row.UserJSON), &user); err != nil {
		return Session{}, fmt.Errorf("session: decode user: %w", err)
	}
	return Session{
		ID:         row.ID,
		User:       user,
		Token:      token,
		ExpiresAt:  row.ExpiresAt,
		LastSeenAt: row.LastSeenAt,
	}, nil
}

func (s *Store) seal(token string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("session: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key), nil
}

func (s *Store) open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", errors.New("session: sealed token too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", errors.New("session: token does not open with the current secret")
	}
	return string(plain), nil
}

// TokenExpiry reads the exp claim without verifying the signature; the API
// stays the authority on validity. Non-JWT tokens have no known expiry.
func TokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
