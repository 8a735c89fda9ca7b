package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

// ItineraryRef is the itinerary as shown on an order. Only ID is stored; the
// rest is filled in when the order is read.
type ItineraryRef struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title,omitempty"`
	Location    string    `json:"location,omitempty"`
	Image       string    `json:"image,omitempty"`
	AverageCost string    `json:"averageCost,omitempty"`
}

type UserRef struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"email,omitempty"`
}

// PaymentRecord tracks one member's share. Username and Email are a snapshot taken
// when the order was created.
type PaymentRecord struct {
	UserID        uuid.UUID       `json:"userId"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	PaymentShare  decimal.Decimal `json:"paymentShare"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	PaymentSlip   *string         `json:"paymentSlip"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	Itinerary       ItineraryRef    `json:"itinerary"`
	Date            time.Time       `json:"date"`
	NumberOfMembers int             `json:"numberOfMembers"`
	Members         []PaymentRecord `json:"members"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	CreatedBy       UserRef         `json:"createdBy"`
	OrderStatus     OrderStatus     `json:"orderStatus"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type NewOrderParams struct {
	ID        uuid.UUID
	Itinerary Itinerary
	Date      time.Time
	Members   []User
	CreatedBy User
	Now       time.Time
}

// NewOrder builds a pending order with one pending record per member and the
// total split equally between them.
func NewOrder(p NewOrderParams) (*Order, error) {
	if len(p.Members) == 0 {
		return nil, apperr.Validation("members_required", "an order needs at least one member")
	}
	cost, err := p.Itinerary.PerPersonCost()
	if err != nil {
		return nil, err
	}

	n := decimal.NewFromInt(int64(len(p.Members)))
	total := cost.Mul(n)
	share := total.Div(n)

	members := make([]PaymentRecord, 0, len(p.Members))
	for _, u := range p.Members {
		members = append(members, PaymentRecord{
			UserID:        u.ID,
			Username:      u.Username,
			Email:         u.Email,
			PaymentShare:  share,
			PaymentStatus: PaymentPending,
		})
	}

	return &Order{
		ID:              p.ID,
		Itinerary:       p.Itinerary.Ref(),
		Date:            p.Date,
		NumberOfMembers: len(members),
		Members:         members,
		TotalAmount:     total,
		CreatedBy:       p.CreatedBy.Ref(),
		OrderStatus:     OrderPending,
		CreatedAt:       p.Now,
		UpdatedAt:       p.Now,
	}, nil
}

// Member returns the record of userID. The pointer aliases o.Members.
func (o *Order) Member(userID uuid.UUID) (*PaymentRecord, bool) {
	for i := range o.Members {
		if o.Members[i].UserID == userID {
			return &o.Members[i], true
		}
	}
	return nil, false
}

// RecordPayment marks userID's record paid. A nil slip keeps the previous one.
func (o *Order) RecordPayment(userID uuid.UUID, slip *string, at time.Time) error {
	m, ok := o.Member(userID)
	if !ok {
		return apperr.ErrMemberNotInOrder
	}
	m.PaymentStatus = PaymentPaid
	if slip != nil {
		s := *slip
		m.PaymentSlip = &s
	}
	o.UpdatedAt = at
	return nil
}

// MarkPaid closes the order without touching member records.
func (o *Order) MarkPaid(at time.Time) {
	if o.OrderStatus == OrderPaid {
		return
	}
	o.OrderStatus = OrderPaid
	o.UpdatedAt = at
}

func (o *Order) PaidCount() int {
	n := 0
	for _, m := range o.Members {
		if m.PaymentStatus == PaymentPaid {
			n++
		}
	}
	return n
}

func (o *Order) AllMembersPaid() bool {
	return len(o.Members) > 0 && o.PaidCount() == len(o.Members)
}

// ReadyToClose is true while the order is still open but every member has paid.
func (o *Order) ReadyToClose() bool {
	return o.OrderStatus == OrderPending && o.AllMembersPaid()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Members = make([]PaymentRecord, len(o.Members))
	for i, m := range o.Members {
		if m.PaymentSlip != nil {
			s := *m.PaymentSlip
			m.PaymentSlip = &s
		}
		c.Members[i] = m
	}
	return &c
}

// PaymentView is one member's share of one order.
type PaymentView struct {
	OrderID       uuid.UUID       `json:"orderId"`
	Itinerary     ItineraryRef    `json:"itinerary"`
	Date          time.Time       `json:"date"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	OrderStatus   OrderStatus     `json:"orderStatus"`
	PaymentShare  decimal.Decimal `json:"paymentShare"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	PaymentSlip   *string         `json:"paymentSlip"`
}

func (o *Order) PaymentView(userID uuid.UUID) (PaymentView, bool) {
	m, ok := o.Member(userID)
	if !ok {
		return PaymentView{}, false
	}
	v := PaymentView{
		OrderID:       o.ID,
		Itinerary:     o.Itinerary,
		Date:          o.Date,
		TotalAmount:   o.TotalAmount,
		OrderStatus:   o.OrderStatus,
		PaymentShare:  m.PaymentShare,
		PaymentStatus: m.PaymentStatus,
	}
	if m.PaymentSlip != nil {
		s := *m.PaymentSlip
		v.PaymentSlip = &s
	}
	return v, true
}
