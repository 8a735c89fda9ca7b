package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/domain"
)

// MemoryOrderRepository keeps orders in process memory. It backs local runs without
// DB_STRING and the service tests. Stored and returned orders are copies.
type MemoryOrderRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{byID: make(map[uuid.UUID]*domain.Order)}
}

func (m *MemoryOrderRepository) AddOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[o.ID]; ok {
		return ErrOrderAlreadyExists
	}
	m.byID[o.ID] = o.Clone()
	return nil
}

func (m *MemoryOrderRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.byID[id]
	if !ok {
		return nil, apperr.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryOrderRepository) MarkMemberPaid(_ context.Context, orderID, userID uuid.UUID, slip *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[orderID]
	if !ok {
		return apperr.ErrOrderNotFound
	}
	return o.RecordPayment(userID, slip, at)
}

func (m *MemoryOrderRepository) MarkOrderPaid(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok {
		return apperr.ErrOrderNotFound
	}
	o.MarkPaid(at)
	return nil
}

func (m *MemoryOrderRepository) DeleteOrder(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return apperr.ErrOrderNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *MemoryOrderRepository) ListOrders(_ context.Context, f OrderFilter) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range m.byID {
		if f.match(o) {
			out = append(out, o.Clone())
		}
	}
	newestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryOrderRepository) ListOrdersByMember(_ context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range m.byID {
		if _, ok := o.Member(userID); ok {
			out = append(out, o.Clone())
		}
	}
	newestFirst(out)
	return out, nil
}

func newestFirst(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID.String() < orders[j].ID.String()
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

// MemoryDirectory serves itineraries and users from maps.
type MemoryDirectory struct {
	mu          sync.RWMutex
	itineraries map[uuid.UUID]domain.Itinerary
	users       map[uuid.UUID]domain.User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		itineraries: make(map[uuid.UUID]domain.Itinerary),
		users:       make(map[uuid.UUID]domain.User),
	}
}

func (d *MemoryDirectory) PutItinerary(it domain.Itinerary) {
	d.mu.Lock()
	d.itineraries[it.ID] = it
	d.mu.Unlock()
}

func (d *MemoryDirectory) PutUser(u domain.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryDirectory) GetItinerary(_ context.Context, id uuid.UUID) (*domain.Itinerary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	it, ok := d.itineraries[id]
	if !ok {
		return nil, apperr.ErrItineraryNotFound
	}
	return &it, nil
}

func (d *MemoryDirectory) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	return &u, nil
}
