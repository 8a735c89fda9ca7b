package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/domain"
)

// ReferenceRepository reads the itinerary catalog and user directory tables. Both
// are owned by other services; this one only reads them.
type ReferenceRepository struct {
	pool *pgxpool.Pool
}

func NewReferenceRepository(p *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: p}
}

func (r *ReferenceRepository) GetItinerary(ctx context.Context, id uuid.UUID) (*domain.Itinerary, error) {
	var it domain.Itinerary
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, location, image, average_cost
		FROM travel.itineraries
		WHERE id = $1
	`, id).Scan(&it.ID, &it.Title, &it.Location, &it.Image, &it.AverageCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrItineraryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select itinerary %s: %w", id, err)
	}
	return &it, nil
}

func (r *ReferenceRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, email
		FROM travel.users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %s: %w", id, err)
	}
	return &u, nil
}
