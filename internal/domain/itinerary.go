package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
)

// Itinerary is a catalog entry owned by the itinerary service. AverageCost is free-form
// display text such as "LKR 12,500 per person".
type Itinerary struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	Image       string    `json:"image,omitempty"`
	AverageCost string    `json:"averageCost"`
}

type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// PerPersonCost keeps only digits and the decimal point of AverageCost and parses the rest.
func (it Itinerary) PerPersonCost() (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range it.AverageCost {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	raw := b.String()
	if raw == "" {
		return decimal.Zero, apperr.Validation("itinerary_cost_invalid", "itinerary %s has no per-person cost", it.ID)
	}
	cost, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Validation("itinerary_cost_invalid", "itinerary %s cost %q is not a number", it.ID, it.AverageCost)
	}
	return cost, nil
}

func (it Itinerary) Ref() ItineraryRef {
	return ItineraryRef{
		ID:          it.ID,
		Title:       it.Title,
		Location:    it.Location,
		Image:       it.Image,
		AverageCost: it.AverageCost,
	}
}

func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, Email: u.Email}
}
