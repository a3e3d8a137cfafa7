package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrKeysExhausted - every configured key has been marked lost
var ErrKeysExhausted = errors.New("all API keys exhausted")

// KeyPool - server-side session Provider over a list of Gemini API keys
// Selecting a session moves to the next key that has not been lost; a lost
// key is skipped until the pool is reset.
type KeyPool struct {
	mu       sync.Mutex
	keys     []string
	lost     []bool
	current  int
	selected bool
	log      zerolog.Logger
}

// NewKeyPool - no key is selected until the first PromptSessionSelection
func NewKeyPool(keys []string, log zerolog.Logger) *KeyPool {
	return &KeyPool{
		keys:    append([]string(nil), keys...),
		lost:    make([]bool, len(keys)),
		current: -1,
		log:     log,
	}
}

// HasSession - a key is selected and not lost
func (p *KeyPool) HasSession(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected && p.current >= 0 && !p.lost[p.current]
}

// PromptSessionSelection - mark the active key lost (if any) and select the next healthy one
func (p *KeyPool) PromptSessionSelection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.selected && p.current >= 0 {
		p.lost[p.current] = true
		p.log.Warn().Int("key_index", p.current+1).Int("keys", len(p.keys)).Msg("⚠️  [KeyPool] API key marked lost")
	}

	for step := 1; step <= len(p.keys); step++ {
		next := (p.current + step) % len(p.keys)
		if next < 0 {
			next += len(p.keys)
		}
		if p.lost[next] {
			continue
		}
		p.current = next
		p.selected = true
		p.log.Info().Int("key_index", next+1).Int("keys", len(p.keys)).Msg("🔑 [KeyPool] API key selected")
		return nil
	}

	p.selected = false
	return ErrKeysExhausted
}

// APIKey - the active key, empty when no session is selected
func (p *KeyPool) APIKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.selected || p.current < 0 || p.lost[p.current] {
		return ""
	}
	return p.keys[p.current]
}

// Reset - forget lost marks (operator action after rotating keys upstream)
func (p *KeyPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.lost {
		p.lost[i] = false
	}
	p.current = -1
	p.selected = false
}

// Keys - number of configured keys and how many are still usable
func (p *KeyPool) Keys() (total, healthy int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, lost := range p.lost {
		if !lost {
			healthy++
		}
	}
	return len(p.keys), healthy
}
