package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/logger"
	"github.com/RaikyD/trip-orders-service/internal/repository"
	"github.com/RaikyD/trip-orders-service/internal/storage"
)

// CreateOrder books in.ItineraryID for in.Members on behalf of requesterID. Every
// member starts pending with an equal share of perPersonCost × numberOfMembers.
func (s *OrdersService) CreateOrder(ctx context.Context, requesterID uuid.UUID, in CreateOrderInput) (_ *domain.Order, err error) {
	ctx, span := startSpan(ctx, "CreateOrder",
		attribute.String("itinerary.id", in.ItineraryID.String()),
		attribute.Int("order.members", in.NumberOfMembers),
	)
	defer func() { endSpan(span, err) }()

	if requesterID == uuid.Nil {
		return nil, apperr.Auth("unauthenticated", "requester identity is required")
	}
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if len(in.Members) != in.NumberOfMembers {
		return nil, apperr.Validation("member_count_mismatch",
			"numberOfMembers is %d but %d members were given", in.NumberOfMembers, len(in.Members))
	}

	now := s.now().UTC()
	date, err := time.ParseInLocation(dateLayout, in.Date, time.UTC)
	if err != nil {
		return nil, apperr.Validation("invalid_input", "date must be YYYY-MM-DD")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return nil, apperr.Validation("date_in_past", "trip date %s is before today", in.Date)
	}

	it, err := s.itineraries.GetItinerary(ctx, in.ItineraryID)
	if err != nil {
		return nil, lookupError("itinerary_lookup_failed", err)
	}

	members := make([]domain.User, 0, len(in.Members))
	for _, id := range in.Members {
		u, err := s.users.GetUser(ctx, id)
		if err != nil {
			return nil, lookupError("user_lookup_failed", err)
		}
		members = append(members, *u)
	}

	creator := domain.User{ID: requesterID}
	if u, err := s.users.GetUser(ctx, requesterID); err == nil {
		creator = *u
	} else {
		logger.Warn("creator lookup failed; storing id only", "user_id", requesterID, "err", err)
	}

	id := in.OrderID
	if id == uuid.Nil {
		id = s.newID()
	}
	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:        id,
		Itinerary: *it,
		Date:      date,
		Members:   members,
		CreatedBy: creator,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.AddOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyExists) {
			existing, err := s.repo.GetOrderByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if !sameOrder(existing, order) {
				logger.Warn("order id reused for a different order", "order_id", id, "requester", requesterID.String())
				return nil, apperr.ErrOrderIDConflict
			}
			logger.Info("order already exists; returning stored copy", "order_id", id)
			return s.newResolver().order(ctx, existing), nil
		}
		logger.Warn("add order failed", "order_id", id, "err", err)
		return nil, fmt.Errorf("add order: %w", err)
	}

	s.remember(order)
	logger.Info("order created",
		"order_id", order.ID,
		"itinerary_id", it.ID,
		"members", order.NumberOfMembers,
		"total_amount", order.TotalAmount.String(),
	)
	return s.newResolver().order(ctx, order.Clone()), nil
}

// RecordMemberPayment marks in.UserID's share of the order as paid, uploading the
// slip first when one is given. A failed upload leaves the order untouched.
func (s *OrdersService) RecordMemberPayment(ctx context.Context, in RecordPaymentInput) (_ *domain.Order, err error) {
	ctx, span := startSpan(ctx, "RecordMemberPayment",
		attribute.String("order.id", in.OrderID.String()),
		attribute.Bool("payment.slip", in.Slip != nil),
	)
	defer func() { endSpan(span, err) }()

	if in.UserID == uuid.Nil {
		return nil, apperr.Validation("user_id_required", "user id is required")
	}

	var contentType string
	if in.Slip != nil {
		if contentType, err = checkSlip(in.Slip); err != nil {
			return nil, err
		}
	}

	order, err := s.loadMembers(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if _, ok := order.Member(in.UserID); !ok {
		return nil, apperr.ErrMemberNotInOrder
	}

	// The upload and the write that records it run to completion even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()

	var slipURL *string
	if in.Slip != nil {
		name := storage.SlipObjectName(now, in.UserID, contentType)
		uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
		u, err := s.slips.Store(uploadCtx, in.Slip.Data, contentType, name)
		cancel()
		if err != nil {
			logger.Error("payment slip upload failed", "order_id", in.OrderID, "object", name, "err", err)
			return nil, apperr.Upstream("slip_upload_failed", fmt.Errorf("upload payment slip: %w", err))
		}
		slipURL = &u
	}

	if err := s.repo.MarkMemberPaid(ctx, in.OrderID, in.UserID, slipURL, now); err != nil {
		if errors.Is(err, apperr.ErrOrderNotFound) {
			s.forget(in.OrderID)
		}
		return nil, err
	}
	updated, err := s.repo.GetOrderByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	logger.Info("member payment recorded",
		"order_id", in.OrderID,
		"member", in.UserID.String(),
		"with_slip", slipURL != nil,
		"paid", updated.PaidCount(),
		"of", len(updated.Members),
	)
	return s.newResolver().order(ctx, updated), nil
}

// MarkOrderAsPaid closes the order administratively. Member records keep whatever
// status they had.
func (s *OrdersService) MarkOrderAsPaid(ctx context.Context, id uuid.UUID) (_ *domain.Order, err error) {
	ctx, span := startSpan(ctx, "MarkOrderAsPaid", attribute.String("order.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := s.repo.MarkOrderPaid(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Info("order marked paid", "order_id", id, "members_paid", updated.PaidCount(), "of", len(updated.Members))
	return s.newResolver().order(ctx, updated), nil
}

// DeleteOrder removes an order. Deleting a missing order returns apperr.ErrOrderNotFound.
func (s *OrdersService) DeleteOrder(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "DeleteOrder", attribute.String("order.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrOrderNotFound) {
			s.forget(id)
		}
		return err
	}
	s.forget(id)
	logger.Info("order deleted", "order_id", id)
	return nil
}

// sameOrder reports whether stored and requested describe one booking by one
// requester, so a replayed create can return the stored order.
func sameOrder(stored, requested *domain.Order) bool {
	if stored.CreatedBy.ID != requested.CreatedBy.ID ||
		stored.Itinerary.ID != requested.Itinerary.ID ||
		!stored.Date.Equal(requested.Date) ||
		len(stored.Members) != len(requested.Members) {
		return false
	}
	for i := range stored.Members {
		if stored.Members[i].UserID != requested.Members[i].UserID {
			return false
		}
	}
	return true
}

// loadMembers returns an order whose member list can be trusted. Payment and
// status fields of a cached copy may be stale.
func (s *OrdersService) loadMembers(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if o, ok := s.cached(id); ok {
		return o, nil
	}
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(o)
	return o, nil
}

// lookupError keeps not-found answers from a directory and reports anything
// else as an upstream failure.
func lookupError(code string, err error) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	return apperr.Upstream(code, err)
}
