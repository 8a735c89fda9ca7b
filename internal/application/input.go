package application

import (
	"errors"
	"mime"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
)

const (
	MaxSlipSize = 100 << 20
	dateLayout  = "2006-01-02"
)

var allowedSlipTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// CreateOrderInput is the request body for order creation. OrderID is optional;
// when set, a repeated request with the same id returns the stored order.
type CreateOrderInput struct {
	OrderID         uuid.UUID   `json:"orderId,omitempty"`
	ItineraryID     uuid.UUID   `json:"itinerary" validate:"required"`
	Date            string      `json:"date" validate:"required,datetime=2006-01-02"`
	NumberOfMembers int         `json:"numberOfMembers" validate:"required,gt=0"`
	Members         []uuid.UUID `json:"members" validate:"required,min=1,unique"`
}

// Slip is an uploaded payment proof. ContentType comes from the upload and may be empty.
type Slip struct {
	Data        []byte
	ContentType string
}

type RecordPaymentInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Slip    *Slip
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *OrdersService) validateStruct(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid_input", "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fe.Field()+" is required")
			continue
		}
		msgs = append(msgs, fe.Field()+" failed '"+fe.Tag()+"' check")
	}
	return apperr.Validation("invalid_input", "%s", strings.Join(msgs, "; "))
}

// checkSlip returns the media type the slip is stored under. A missing or generic
// declared type is replaced by the sniffed one.
func checkSlip(slip *Slip) (string, error) {
	if len(slip.Data) == 0 {
		return "", apperr.Validation("empty_payment_slip", "payment slip is empty")
	}

	ct := baseMediaType(slip.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = baseMediaType(mimetype.Detect(slip.Data).String())
	}
	if !allowedSlipTypes[ct] {
		return "", apperr.ErrUnsupportedMediaType
	}
	if len(slip.Data) > MaxSlipSize {
		return "", apperr.ErrPayloadTooLarge
	}
	return ct, nil
}

func baseMediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mt
}

// OrderRequest is a queued CreateOrder call.
type OrderRequest struct {
	RequesterID uuid.UUID        `json:"requesterId"`
	Order       CreateOrderInput `json:"order"`
}
