// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package permission provides the authorization collaborators used by the
// broadcast controller.
package permission

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
)

// Static answers every request the same way. Useful on headless hosts where
// access is decided by the service's own privileges.
type Static struct {
	granted bool
}

// NewStatic returns an authorizer that always answers with granted.
func NewStatic(granted bool) *Static {
	return &Static{granted: granted}
}

func (s *Static) Granted([]broadcast.Capability) bool {
	return s.granted
}

// Request answers on a new goroutine, like a host permission dialog would.
func (s *Static) Request(_ []broadcast.Capability, report func(bool)) {
	go report(s.granted)
}

// Request describes one pending authorization prompt.
type Request struct {
	ID           uint64                 `json:"id"`
	Capabilities []broadcast.Capability `json:"capabilities"`
	At           time.Time              `json:"at"`
}

type pending struct {
	req    Request
	report func(bool)
}

// Prompt defers each request to a person. A presentation layer shows the
// prompt (see OnPrompt) and answers with Resolve. Granted capabilities are
// remembered for later Granted calls.
type Prompt struct {
	mu       sync.Mutex
	granted  map[broadcast.Capability]bool
	pending  []pending
	nextID   uint64
	onPrompt []func(Request)
}

// NewPrompt returns a prompt authorizer with nothing granted.
func NewPrompt() *Prompt {
	return &Prompt{granted: make(map[broadcast.Capability]bool)}
}

// OnPrompt registers fn to be called for every new request.
func (p *Prompt) OnPrompt(fn func(Request)) {
	p.mu.Lock()
	p.onPrompt = append(p.onPrompt, fn)
	p.mu.Unlock()
}

// Granted reports whether every capability in caps was granted before.
func (p *Prompt) Granted(caps []broadcast.Capability) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range caps {
		if !p.granted[c] {
			return false
		}
	}
	return true
}

func (p *Prompt) Request(caps []broadcast.Capability, report func(bool)) {
	p.mu.Lock()
	p.nextID++
	req := Request{
		ID:           p.nextID,
		Capabilities: append([]broadcast.Capability(nil), caps...),
		At:           time.Now(),
	}
	p.pending = append(p.pending, pending{req: req, report: report})
	hooks := slices.Clone(p.onPrompt)
	p.mu.Unlock()

	for _, fn := range hooks {
		fn(req)
	}
}

// Pending lists unanswered requests, oldest first.
func (p *Prompt) Pending() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, 0, len(p.pending))
	for _, pd := range p.pending {
		out = append(out, pd.req)
	}
	return out
}

// Resolve answers every pending request with per-capability results. A
// request is granted only if all of its capabilities are granted. It returns
// how many requests were answered.
func (p *Prompt) Resolve(results map[broadcast.Capability]bool) int {
	p.mu.Lock()
	for c, ok := range results {
		if ok {
			p.granted[c] = true
		}
	}
	answered := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, pd := range answered {
		pd.report(allGranted(pd.req.Capabilities, results))
	}
	return len(answered)
}

// ResolveAll answers every pending request with the same decision for all capabilities.
func (p *Prompt) ResolveAll(granted bool) int {
	results := make(map[broadcast.Capability]bool)
	for _, c := range broadcast.RequiredCapabilities() {
		results[c] = granted
	}
	return p.Resolve(results)
}

// Revoke forgets every grant.
func (p *Prompt) Revoke() {
	p.mu.Lock()
	p.granted = make(map[broadcast.Capability]bool)
	p.mu.Unlock()
}

func allGranted(caps []broadcast.Capability, results map[broadcast.Capability]bool) bool {
	for _, c := range caps {
		if !results[c] {
			return false
		}
	}
	return true
}

// Parse builds the authorizer named by mode: "granted", "denied" or "prompt".
func Parse(mode string) (broadcast.Authorizer, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "granted":
		return NewStatic(true), nil
	case "denied":
		return NewStatic(false), nil
	case "prompt":
		return NewPrompt(), nil
	default:
		return nil, fmt.Errorf("unknown authorization mode %q (allowed: granted, denied, prompt)", mode)
	}
}
