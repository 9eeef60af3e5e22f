package apiclient

import (
	"strings"
	"sync"
)

// Provider owns the mutable API configuration and hands out a Client built
// from it. Changing the base URL or token drops the cached client; the next
// call to Client builds a fresh one. Requests already issued keep using the
// client they started with.
type Provider struct {
	opts []Option

	mu     sync.Mutex
	cfg    Config
	client *Client
	builds int
}

// NewProvider returns a provider for cfg. opts are applied to every client.
func NewProvider(cfg Config, opts ...Option) *Provider {
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	return &Provider{cfg: cfg, opts: opts}
}

// Client returns the client for the current configuration, building it if
// the configuration changed since the last call.
func (p *Provider) Client() *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		p.client = New(p.cfg, p.opts...)
		p.builds++
	}
	return p.client
}

// Config returns the current configuration.
func (p *Provider) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SetBaseURL changes the API base URL.
func (p *Provider) SetBaseURL(raw string) {
	u := NormalizeBaseURL(raw)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.BaseURL == u {
		return
	}
	p.cfg.BaseURL = u
	p.client = nil
}

// SetToken changes the bearer token. An empty token disables the header.
func (p *Provider) SetToken(token string) {
	token = strings.TrimSpace(token)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.Token == token {
		return
	}
	p.cfg.Token = token
	p.client = nil
}

// ClearAuth removes the bearer token.
func (p *Provider) ClearAuth() { p.SetToken("") }

// Builds returns how many clients have been constructed.
func (p *Provider) Builds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builds
}
