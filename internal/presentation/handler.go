package presentation

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/application"
	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/logger"
	"github.com/RaikyD/trip-orders-service/internal/presentation/helpers"
)

// multipart framing and the userId field on top of the slip itself
const paymentBodySlack = 1 << 20

type OrderService interface {
	CreateOrder(ctx context.Context, requesterID uuid.UUID, in application.CreateOrderInput) (*domain.Order, error)
	RecordMemberPayment(ctx context.Context, in application.RecordPaymentInput) (*domain.Order, error)
	MarkOrderAsPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetUserPayments(ctx context.Context, userID uuid.UUID) ([]domain.PaymentView, error)
	GetPendingOrdersWithAllMembersPaid(ctx context.Context) ([]*domain.Order, error)
	GetCompletedOrders(ctx context.Context) ([]*domain.Order, error)
}

type OrderPublisher interface {
	PublishOrderRequest(ctx context.Context, req application.OrderRequest) error
}

type OrdersHandler struct {
	svc  OrderService
	pub  OrderPublisher
	auth *Authenticator
}

// NewOrdersHandler builds the order API. pub may be nil, which disables the
// asynchronous intake endpoint.
func NewOrdersHandler(svc OrderService, pub OrderPublisher, auth *Authenticator) *OrdersHandler {
	return &OrdersHandler{svc: svc, pub: pub, auth: auth}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/healthz", Healthz)

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(h.auth.RequireAuth)

		r.Post("/", h.CreateOrder)
		r.Post("/async", h.EnqueueOrder)
		r.Get("/users/{userId}/payments", h.GetUserPayments)
		r.Get("/{orderId}", h.GetOrder)
		r.Put("/{orderId}/payment", h.RecordPayment)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/pending-with-paid-members", h.GetPendingWithPaidMembers)
			r.Get("/completed", h.GetCompletedOrders)
			r.Put("/{orderId}/mark-paid", h.MarkOrderPaid)
			r.Delete("/{orderId}", h.DeleteOrder)
		})
	})
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	var in application.CreateOrderInput
	if err := helpers.DecodeJSON(r.Body, &in); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), claims.UserID, in)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, order)
}

// EnqueueOrder queues a creation request and answers with the id the order will
// be stored under.
func (h *OrdersHandler) EnqueueOrder(w http.ResponseWriter, r *http.Request) {
	if h.pub == nil {
		helpers.HttpError(w, http.StatusServiceUnavailable, "intake_disabled", "asynchronous order intake is not configured")
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	var in application.CreateOrderInput
	if err := helpers.DecodeJSON(r.Body, &in); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if in.OrderID == uuid.Nil {
		in.OrderID = uuid.New()
	}

	req := application.OrderRequest{RequesterID: claims.UserID, Order: in}
	if err := h.pub.PublishOrderRequest(r.Context(), req); err != nil {
		helpers.WriteError(w, r, apperr.Upstream("enqueue_failed", err))
		return
	}
	logger.Info("order request queued", "order_id", in.OrderID, "requester", claims.UserID.String())
	helpers.WriteJSON(w, http.StatusAccepted, map[string]any{
		"status":  "queued",
		"orderId": in.OrderID,
	})
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, order)
}

// RecordPayment reads a multipart body with a userId field and an optional
// paymentSlip file.
func (h *OrdersHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}

	mediatype, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediatype != "multipart/form-data" {
		helpers.HttpError(w, http.StatusUnsupportedMediaType, "unsupported_content_type", "expected multipart/form-data")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, application.MaxSlipSize+paymentBodySlack)
	in := application.RecordPaymentInput{OrderID: orderID}

	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeBodyError(w, r, err)
			return
		}

		switch part.FormName() {
		case "userId":
			raw, err := io.ReadAll(io.LimitReader(part, 128))
			if err != nil {
				writeBodyError(w, r, err)
				return
			}
			if s := strings.TrimSpace(string(raw)); s != "" {
				id, err := uuid.Parse(s)
				if err != nil {
					helpers.HttpError(w, http.StatusBadRequest, "invalid_id", "userId is not a valid id")
					return
				}
				in.UserID = id
			}
		case "paymentSlip":
			data, err := io.ReadAll(io.LimitReader(part, application.MaxSlipSize+1))
			if err != nil {
				writeBodyError(w, r, err)
				return
			}
			if len(data) > application.MaxSlipSize {
				helpers.WriteError(w, r, apperr.ErrPayloadTooLarge)
				return
			}
			if len(data) > 0 || part.FileName() != "" {
				in.Slip = &application.Slip{Data: data, ContentType: part.Header.Get("Content-Type")}
			}
		}
		_ = part.Close()
	}

	order, err := h.svc.RecordMemberPayment(r.Context(), in)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) GetUserPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	views, err := h.svc.GetUserPayments(r.Context(), userID)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"userPayments": views})
}

func (h *OrdersHandler) GetPendingWithPaidMembers(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.GetPendingOrdersWithAllMembersPaid(r.Context())
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *OrdersHandler) GetCompletedOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.GetCompletedOrders(r.Context())
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *OrdersHandler) MarkOrderPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.svc.MarkOrderAsPaid(r.Context(), id)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid_id", name+" is not a valid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		helpers.WriteError(w, r, apperr.ErrPayloadTooLarge)
		return
	}
	helpers.HttpError(w, http.StatusBadRequest, "invalid_multipart", "invalid multipart body: "+err.Error())
}
