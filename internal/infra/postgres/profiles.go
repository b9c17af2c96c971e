package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProfileProvider resolves public player fields from the players table.
type ProfileProvider struct {
	pool *pgxpool.Pool
}

func NewProfileProvider(pool *pgxpool.Pool) *ProfileProvider {
	return &ProfileProvider{pool: pool}
}

func (p *ProfileProvider) GetProfile(ctx context.Context, playerID string) (domain.PlayerProfile, error) {
	profile := domain.PlayerProfile{ID: playerID}
	err := p.pool.QueryRow(ctx,
		`SELECT username, COALESCE(email, '') FROM players WHERE id=$1`, playerID,
	).Scan(&profile.Username, &profile.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlayerProfile{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.PlayerProfile{}, fmt.Errorf("load player %s: %w", playerID, err)
	}
	return profile, nil
}
