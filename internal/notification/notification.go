// Package notification delivers signal and trade messages to chat
// providers. Providers implement Notifier; the Manager fans out and
// never lets one provider's failure block another.
package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier is a single chat provider.
type Notifier interface {
	Name() string
	Enabled() bool
	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, photoPath, caption string) error
}

// Manager fans out to all registered providers.
type Manager struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewManager creates an empty Manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log.With().Str("component", "notification").Logger()}
}

// Add registers a provider.
func (m *Manager) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// SendText delivers a plain text message to every enabled provider.
// Delivery is attempted on all; the last error wins.
func (m *Manager) SendText(ctx context.Context, text string) error {
	var lastErr error
	for _, n := range m.notifiers {
		if !n.Enabled() {
			continue
		}
		if err := n.SendText(ctx, text); err != nil {
			m.log.Warn().Err(err).Str("provider", n.Name()).Msg("text send failed")
			lastErr = err
		}
	}
	return lastErr
}

// SendPhoto delivers a photo with an HTML caption to every enabled
// provider.
func (m *Manager) SendPhoto(ctx context.Context, photoPath, caption string) error {
	var lastErr error
	for _, n := range m.notifiers {
		if !n.Enabled() {
			continue
		}
		if err := n.SendPhoto(ctx, photoPath, caption); err != nil {
			m.log.Warn().Err(err).Str("provider", n.Name()).Msg("photo send failed")
			lastErr = err
		}
	}
	return lastErr
}
