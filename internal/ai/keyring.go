package ai

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Keyring holds the configured API credentials and tracks which one is
// active. It implements CredentialSource for the backend client and the
// gateway's credential-selection collaborator: selection advances to the
// next configured key.
type Keyring struct {
	mu     sync.Mutex
	keys   []string
	cursor int
	active bool
}

// NewKeyringFromEnv reads GEMINI_API_KEYS (comma-separated) and falls back to
// GEMINI_API_KEY. An empty keyring is valid; every call then fails until a
// credential is configured.
func NewKeyringFromEnv() *Keyring {
	raw := os.Getenv("GEMINI_API_KEYS")
	if raw == "" {
		raw = os.Getenv("GEMINI_API_KEY")
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return NewKeyring(keys)
}

func NewKeyring(keys []string) *Keyring {
	return &Keyring{keys: keys, active: len(keys) > 0}
}

// Active returns the currently selected credential.
func (k *Keyring) Active() (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.active || len(k.keys) == 0 {
		return "", false
	}
	return k.keys[k.cursor], true
}

// Available reports whether a selection flow can produce a different
// credential than the one currently active.
func (k *Keyring) Available() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return false
	}
	return len(k.keys) > 1 || !k.active
}

// PromptSelection advances to the next configured credential. Once every key
// has been cycled through the ring refuses further selection until Reset.
func (k *Keyring) PromptSelection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return errors.New("no credentials configured")
	}
	if !k.active {
		k.active = true
		log.Info().Int("credential", k.cursor).Msg("credential activated")
		return nil
	}
	if k.cursor+1 >= len(k.keys) {
		return errors.New("all configured credentials exhausted")
	}
	k.cursor++
	log.Info().Int("credential", k.cursor).Msg("rotated to next credential")
	return nil
}

// Reset returns the ring to its first credential.
func (k *Keyring) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cursor = 0
	k.active = len(k.keys) > 0
}
