package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Turn is one message in a conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Store keeps per-conversation chat history in Redis lists.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	max    int64
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, ttl: 7 * 24 * time.Hour, max: 200}
}

func (s *Store) key(userID, convID string) string {
	return fmt.Sprintf("chat:%s:%s", userID, convID)
}

// Append adds a turn and trims the conversation to its most recent entries.
func (s *Store) Append(ctx context.Context, userID, convID string, turn Turn) error {
	b, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	k := s.key(userID, convID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, string(b))
	pipe.LTrim(ctx, k, -s.max, -1)
	pipe.Expire(ctx, k, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns the conversation oldest-first.
func (s *Store) List(ctx context.Context, userID, convID string) ([]Turn, error) {
	vals, err := s.client.LRange(ctx, s.key(userID, convID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(vals))
	for _, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear drops a conversation.
func (s *Store) Clear(ctx context.Context, userID, convID string) error {
	return s.client.Del(ctx, s.key(userID, convID)).Err()
}
