package memory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/rs/zerolog/log"
)

// StaticProfiles is a profile provider backed by a map (tests and demos).
type StaticProfiles struct {
	mu       sync.RWMutex
	profiles map[string]domain.PlayerProfile
}

func NewStaticProfiles(profiles ...domain.PlayerProfile) *StaticProfiles {
	p := &StaticProfiles{profiles: make(map[string]domain.PlayerProfile, len(profiles))}
	for _, profile := range profiles {
		p.profiles[profile.ID] = profile
	}
	return p
}

func (p *StaticProfiles) GetProfile(_ context.Context, playerID string) (domain.PlayerProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	profile, ok := p.profiles[playerID]
	if !ok {
		return domain.PlayerProfile{}, domain.ErrPlayerNotFound
	}
	return profile, nil
}

// Put registers or replaces a profile.
func (p *StaticProfiles) Put(profile domain.PlayerProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.ID] = profile
}

// BaseURLResolver resolves media references against a public base URL.
// References that already are absolute http(s) URLs are returned unchanged.
type BaseURLResolver struct {
	base string
}

func NewBaseURLResolver(base string) *BaseURLResolver {
	return &BaseURLResolver{base: base}
}

func (r *BaseURLResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if r.base == "" {
		return "", fmt.Errorf("no media base url configured for %q", ref)
	}
	return url.JoinPath(r.base, ref)
}

// LogNotifier stands in for a delivery backend and only logs the hand-off.
type LogNotifier struct{}

func (LogNotifier) Dispatch(_ context.Context, n domain.Notification) error {
	event := log.Info().
		Str("session_id", n.Report.SessionID).
		Str("player_id", n.Report.PlayerID).
		Float64("score", n.Report.Score)
	if n.Report.Rank != nil {
		event = event.Int("rank", *n.Report.Rank)
	}
	event.Msg("report ready for delivery")
	return nil
}
