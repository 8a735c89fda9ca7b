package application

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/logger"
	"github.com/RaikyD/trip-orders-service/internal/repository"
	"github.com/RaikyD/trip-orders-service/internal/storage"
)

const (
	defaultUploadTimeout = 2 * time.Minute
	defaultCacheLimit    = 1000
)

var tracer = otel.Tracer("github.com/RaikyD/trip-orders-service/internal/application")

type Deps struct {
	Orders      repository.OrderRepo
	Itineraries repository.ItineraryRepo
	Users       repository.UserRepo
	Slips       storage.SlipStore

	// optional
	Now           func() time.Time
	NewID         func() uuid.UUID
	UploadTimeout time.Duration
	CacheLimit    int
}

// OrdersService implements the order commands and read views. Reads always go to
// the repository; the process-local cache only answers "is this user a member of
// that order", which is fixed when the order is created.
type OrdersService struct {
	repo          repository.OrderRepo
	itineraries   repository.ItineraryRepo
	users         repository.UserRepo
	slips         storage.SlipStore
	now           func() time.Time
	newID         func() uuid.UUID
	uploadTimeout time.Duration
	cacheLimit    int
	validate      *validator.Validate

	mu   sync.RWMutex
	byID map[uuid.UUID]*domain.Order
}

func NewOrdersService(d Deps) *OrdersService {
	s := &OrdersService{
		repo:          d.Orders,
		itineraries:   d.Itineraries,
		users:         d.Users,
		slips:         d.Slips,
		now:           d.Now,
		newID:         d.NewID,
		uploadTimeout: d.UploadTimeout,
		cacheLimit:    d.CacheLimit,
		validate:      newValidator(),
		byID:          make(map[uuid.UUID]*domain.Order),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.New
	}
	if s.uploadTimeout <= 0 {
		s.uploadTimeout = defaultUploadTimeout
	}
	if s.cacheLimit <= 0 {
		s.cacheLimit = defaultCacheLimit
	}
	return s
}

// RestoreCache warms the membership cache with the newest limit orders.
func (s *OrdersService) RestoreCache(ctx context.Context, limit int) error {
	orders, err := s.repo.ListOrders(ctx, repository.OrderFilter{Limit: limit})
	if err != nil {
		return err
	}

	// build outside the lock
	tmp := make(map[uuid.UUID]*domain.Order, len(orders))
	for _, o := range orders {
		if len(tmp) >= s.cacheLimit {
			break
		}
		tmp[o.ID] = o
	}

	s.mu.Lock()
	s.byID = tmp
	s.mu.Unlock()
	logger.Info("order cache restored", "orders", len(tmp))
	return nil
}

func (s *OrdersService) cached(id uuid.UUID) (*domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// remember caches o for membership checks. Entries are only added while the
// cache is below its limit.
func (s *OrdersService) remember(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ID]; !ok && len(s.byID) >= s.cacheLimit {
		return
	}
	s.byID[o.ID] = o.Clone()
}

func (s *OrdersService) forget(id uuid.UUID) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

// resolver fills itinerary and creator display fields, looking each id up once.
// Lookup failures leave the bare id in place.
type resolver struct {
	s           *OrdersService
	itineraries map[uuid.UUID]*domain.Itinerary
	users       map[uuid.UUID]*domain.User
}

func (s *OrdersService) newResolver() *resolver {
	return &resolver{
		s:           s,
		itineraries: make(map[uuid.UUID]*domain.Itinerary),
		users:       make(map[uuid.UUID]*domain.User),
	}
}

func (r *resolver) order(ctx context.Context, o *domain.Order) *domain.Order {
	if it := r.itinerary(ctx, o.Itinerary.ID); it != nil {
		o.Itinerary = it.Ref()
	}
	if u := r.user(ctx, o.CreatedBy.ID); u != nil {
		o.CreatedBy = u.Ref()
	}
	return o
}

func (r *resolver) itinerary(ctx context.Context, id uuid.UUID) *domain.Itinerary {
	if it, ok := r.itineraries[id]; ok {
		return it
	}
	it, err := r.s.itineraries.GetItinerary(ctx, id)
	if err != nil {
		logger.Warn("itinerary lookup failed; showing id only", "itinerary_id", id, "err", err)
		it = nil
	}
	r.itineraries[id] = it
	return it
}

func (r *resolver) user(ctx context.Context, id uuid.UUID) *domain.User {
	if u, ok := r.users[id]; ok {
		return u
	}
	u, err := r.s.users.GetUser(ctx, id)
	if err != nil {
		logger.Warn("user lookup failed; showing id only", "user_id", id, "err", err)
		u = nil
	}
	r.users[id] = u
	return u
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orders."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
