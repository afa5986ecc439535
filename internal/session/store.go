package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

const (
	hashIterations = 100000
	saltLen        = 16
	keyLen         = 32
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoSession          = errors.New("no active session")
)

// User is a registered studio user.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Store keeps users and sessions in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: c, ttl: ttl}, nil
}

func (s *Store) Close() error { return s.client.Close() }

// Client returns the underlying Redis client so collaborating stores can
// share the connection.
func (s *Store) Client() *redis.Client { return s.client }

func userKey(id string) string     { return "user:" + id }
func emailKey(email string) string { return "user:email:" + strings.ToLower(email) }
func sessionKey(tok string) string { return "session:" + tok }

// Register creates a user and returns it. The email must be unused.
func (s *Store) Register(ctx context.Context, name, email, password string) (User, error) {
	if name == "" || email == "" || password == "" {
		return User{}, errors.New("name, email and password are required")
	}
	ok, err := s.client.SetNX(ctx, emailKey(email), "", 0).Result()
	if err != nil {
		return User{}, fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return User{}, ErrEmailTaken
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return User{}, fmt.Errorf("generate salt: %w", err)
	}
	hash := derive(password, salt)

	u := User{ID: uuid.NewString(), Name: name, Email: email, CreatedAt: time.Now()}
	fields := map[string]interface{}{
		"name":       u.Name,
		"email":      u.Email,
		"pw_salt":    hex.EncodeToString(salt),
		"pw_hash":    hex.EncodeToString(hash),
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, userKey(u.ID), fields).Err(); err != nil {
		return User{}, fmt.Errorf("store user: %w", err)
	}
	if err := s.client.Set(ctx, emailKey(email), u.ID, 0).Err(); err != nil {
		return User{}, fmt.Errorf("index email: %w", err)
	}

	log.Info().Str("user_id", u.ID).Msg("user registered")
	return u, nil
}

// Login verifies credentials and opens a session, returning its token.
func (s *Store) Login(ctx context.Context, email, password string) (string, User, error) {
	id, err := s.client.Get(ctx, emailKey(email)).Result()
	if err == redis.Nil || id == "" {
		return "", User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", User{}, err
	}
	u, fields, err := s.loadUser(ctx, id)
	if err != nil {
		return "", User{}, err
	}

	salt, err := hex.DecodeString(fields["pw_salt"])
	if err != nil {
		return "", User{}, fmt.Errorf("corrupt salt for user %s", id)
	}
	stored, err := hex.DecodeString(fields["pw_hash"])
	if err != nil {
		return "", User{}, fmt.Errorf("corrupt hash for user %s", id)
	}
	if subtle.ConstantTimeCompare(derive(password, salt), stored) != 1 {
		return "", User{}, ErrInvalidCredentials
	}

	token := uuid.NewString()
	if err := s.client.Set(ctx, sessionKey(token), id, s.ttl).Err(); err != nil {
		return "", User{}, fmt.Errorf("store session: %w", err)
	}
	log.Info().Str("user_id", id).Msg("user logged in")
	return token, u, nil
}

// Current resolves a session token to its user, refreshing the TTL.
func (s *Store) Current(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNoSession
	}
	id, err := s.client.Get(ctx, sessionKey(token)).Result()
	if err == redis.Nil || id == "" {
		return User{}, ErrNoSession
	}
	if err != nil {
		return User{}, err
	}
	s.client.Expire(ctx, sessionKey(token), s.ttl)
	u, _, err := s.loadUser(ctx, id)
	return u, err
}

// Logout drops the session.
func (s *Store) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.client.Del(ctx, sessionKey(token)).Err()
}

func (s *Store) loadUser(ctx context.Context, id string) (User, map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return User{}, nil, err
	}
	if len(fields) == 0 {
		return User{}, nil, fmt.Errorf("user %s not found", id)
	}
	u := User{ID: id, Name: fields["name"], Email: fields["email"]}
	if v := fields["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			u.CreatedAt = t
		}
	}
	return u, fields, nil
}

func derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, hashIterations, keyLen, sha256.New)
}
