package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSession - no usable credential after the selection step
var ErrNoSession = errors.New("no API key session selected")

// Provider - host credential/session capability, consumed as an opaque collaborator
type Provider interface {
	HasSession(ctx context.Context) bool
	PromptSessionSelection(ctx context.Context) error
}

// Gate - precondition check before a video submission
// It does not store or rotate credentials itself; that stays with the Provider.
type Gate struct {
	provider Provider
}

func NewGate(provider Provider) *Gate {
	return &Gate{provider: provider}
}

// EnsureSession - check, prompt once if needed, re-check
func (g *Gate) EnsureSession(ctx context.Context) error {
	if g.provider.HasSession(ctx) {
		return nil
	}
	if err := g.provider.PromptSessionSelection(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if !g.provider.HasSession(ctx) {
		return ErrNoSession
	}
	return nil
}

// Reselect - run the selection step once after the current session was lost
func (g *Gate) Reselect(ctx context.Context) error {
	return g.provider.PromptSessionSelection(ctx)
}

// Ambient - Provider for credentials resolved by the environment (Vertex ADC)
type Ambient struct{}

func (Ambient) HasSession(context.Context) bool { return true }

func (Ambient) PromptSessionSelection(context.Context) error { return nil }

func (Ambient) APIKey() string { return "" }
