package application

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/repository"
)

func (s *OrdersService) GetOrder(ctx context.Context, id uuid.UUID) (_ *domain.Order, err error) {
	ctx, span := startSpan(ctx, "GetOrder", attribute.String("order.id", id.String()))
	defer func() { endSpan(span, err) }()

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.newResolver().order(ctx, o), nil
}

// GetUserPayments lists userID's share of every order they are a member of.
func (s *OrdersService) GetUserPayments(ctx context.Context, userID uuid.UUID) (_ []domain.PaymentView, err error) {
	ctx, span := startSpan(ctx, "GetUserPayments")
	defer func() { endSpan(span, err) }()

	if userID == uuid.Nil {
		return nil, apperr.Validation("user_id_required", "user id is required")
	}
	orders, err := s.repo.ListOrdersByMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	r := s.newResolver()
	views := make([]domain.PaymentView, 0, len(orders))
	for _, o := range orders {
		v, ok := r.order(ctx, o).PaymentView(userID)
		if !ok {
			continue
		}
		views = append(views, v)
	}
	span.SetAttributes(attribute.Int("payments", len(views)))
	return views, nil
}

// GetPendingOrdersWithAllMembersPaid lists orders still open although every
// member has paid, i.e. the ones an administrator can close.
func (s *OrdersService) GetPendingOrdersWithAllMembersPaid(ctx context.Context) (_ []*domain.Order, err error) {
	ctx, span := startSpan(ctx, "GetPendingOrdersWithAllMembersPaid")
	defer func() { endSpan(span, err) }()

	orders, err := s.repo.ListOrders(ctx, repository.OrderFilter{
		Status:         domain.OrderPending,
		AllMembersPaid: true,
	})
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, orders, (*domain.Order).ReadyToClose), nil
}

func (s *OrdersService) GetCompletedOrders(ctx context.Context) (_ []*domain.Order, err error) {
	ctx, span := startSpan(ctx, "GetCompletedOrders")
	defer func() { endSpan(span, err) }()

	orders, err := s.repo.ListOrders(ctx, repository.OrderFilter{Status: domain.OrderPaid})
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, orders, func(o *domain.Order) bool { return o.OrderStatus == domain.OrderPaid }), nil
}

func (s *OrdersService) resolveAll(ctx context.Context, orders []*domain.Order, keep func(*domain.Order) bool) []*domain.Order {
	r := s.newResolver()
	out := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		if keep(o) {
			out = append(out, r.order(ctx, o))
		}
	}
	return out
}
