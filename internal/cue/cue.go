// Package cue plays short synthesized tones on the control-room host when a
// client attaches or leaves and around unattended maintenance.
package cue

import (
	"context"
	"log/slog"
	"sync"
)

// Kind identifies one cue.
type Kind int

const (
	ClientConnected Kind = iota + 1
	ClientDisconnected
	MaintenanceStart
	MaintenanceEnd
	MaintenanceFailed
)

func (k Kind) String() string {
	switch k {
	case ClientConnected:
		return "client_connected"
	case ClientDisconnected:
		return "client_disconnected"
	case MaintenanceStart:
		return "maintenance_start"
	case MaintenanceEnd:
		return "maintenance_end"
	case MaintenanceFailed:
		return "maintenance_failed"
	default:
		return "unknown"
	}
}

// Player serializes cue playback. A disabled player does nothing.
type Player struct {
	enabled bool
	logger  *slog.Logger
	play    func(context.Context, []int16) error

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewPlayer(enabled bool, logger *slog.Logger) *Player {
	return &Player{enabled: enabled, logger: logger, play: playPulse}
}

func (p *Player) ClientConnected(ctx context.Context)    { p.Play(ctx, ClientConnected) }
func (p *Player) ClientDisconnected(ctx context.Context) { p.Play(ctx, ClientDisconnected) }

// Play emits kind asynchronously; cues never overlap.
func (p *Player) Play(ctx context.Context, kind Kind) {
	if p == nil || !p.enabled {
		return
	}
	samples := Samples(kind)
	if len(samples) == 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.play(ctx, samples); err != nil && p.logger != nil {
			p.logger.Debug("cue playback failed", "cue", kind.String(), "error", err.Error())
		}
	}()
}

// Wait blocks until queued cues have finished.
func (p *Player) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}
