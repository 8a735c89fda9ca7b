package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RaikyD/trip-orders-service/internal/domain"
)

var ErrOrderAlreadyExists = errors.New("order already exists")

type OrderFilter struct {
	// Status filters on the aggregate order status when set.
	Status domain.OrderStatus
	// AllMembersPaid keeps only orders whose every member record is paid.
	AllMembersPaid bool
	// Limit caps the result (newest first); zero means no cap.
	Limit int
}

// OrderRepo stores orders together with their member records. Missing orders are
// reported as apperr.ErrOrderNotFound.
type OrderRepo interface {
	AddOrder(ctx context.Context, o *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// MarkMemberPaid sets one member's record to paid. A nil slip keeps the stored slip.
	MarkMemberPaid(ctx context.Context, orderID, userID uuid.UUID, slip *string, at time.Time) error
	MarkOrderPaid(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, error)
	ListOrdersByMember(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
}

type ItineraryRepo interface {
	GetItinerary(ctx context.Context, id uuid.UUID) (*domain.Itinerary, error)
}

type UserRepo interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

func (f OrderFilter) match(o *domain.Order) bool {
	if f.Status != "" && o.OrderStatus != f.Status {
		return false
	}
	if f.AllMembersPaid && !o.AllMembersPaid() {
		return false
	}
	return true
}
