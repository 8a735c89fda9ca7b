package presentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaikyD/trip-orders-service/internal/application"
	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/presentation/helpers"
	"github.com/RaikyD/trip-orders-service/internal/repository"
	"github.com/RaikyD/trip-orders-service/internal/storage"
)

const (
	testSecret  = "test-secret"
	testBaseURL = "http://slips.test"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []application.OrderRequest
}

func (p *fakePublisher) PublishOrderRequest(_ context.Context, req application.OrderRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, req)
	return nil
}

type api struct {
	router    http.Handler
	auth      *Authenticator
	pub       *fakePublisher
	itinerary domain.Itinerary
	alice     domain.User
	bob       domain.User
	admin     uuid.UUID
}

func newAPI(t *testing.T, withPublisher bool) *api {
	t.Helper()
	dir := repository.NewMemoryDirectory()
	a := &api{
		auth:      NewAuthenticator(testSecret),
		itinerary: domain.Itinerary{ID: uuid.New(), Title: "Sigiriya", Location: "Dambulla", AverageCost: "$100"},
		alice:     domain.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com"},
		bob:       domain.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com"},
		admin:     uuid.New(),
	}
	dir.PutItinerary(a.itinerary)
	dir.PutUser(a.alice)
	dir.PutUser(a.bob)

	slipDir := t.TempDir()
	slips, err := storage.NewLocalStore(slipDir, testBaseURL+SlipsPath)
	require.NoError(t, err)

	svc := application.NewOrdersService(application.Deps{
		Orders:      repository.NewMemoryOrderRepository(),
		Itineraries: dir,
		Users:       dir,
		Slips:       slips,
	})

	var pub OrderPublisher
	if withPublisher {
		a.pub = &fakePublisher{}
		pub = a.pub
	}

	r := chi.NewRouter()
	NewOrdersHandler(svc, pub, a.auth).Register(r)
	MountSlips(r, slipDir)
	a.router = r
	return a
}

func (a *api) token(t *testing.T, id uuid.UUID, role string) string {
	t.Helper()
	tok, err := a.auth.IssueToken(id, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *api) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) createBody(members ...uuid.UUID) io.Reader {
	b, _ := json.Marshal(map[string]any{
		"itinerary":       a.itinerary.ID,
		"date":            time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"),
		"numberOfMembers": len(members),
		"members":         members,
	})
	return bytes.NewReader(b)
}

func (a *api) createOrder(t *testing.T) domain.Order {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/orders", a.token(t, a.alice.ID, RoleUser),
		a.createBody(a.alice.ID, a.bob.ID), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	return o
}

func paymentBody(t *testing.T, userID string, slip []byte, slipType string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if userID != "" {
		require.NoError(t, mw.WriteField("userId", userID))
	}
	if slip != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="paymentSlip"; filename="slip"`)
		h.Set("Content-Type", slipType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(slip)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body helpers.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestCreateAndGetOrder(t *testing.T) {
	a := newAPI(t, false)
	o := a.createOrder(t)

	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, a.alice.ID, o.CreatedBy.ID)
	require.Len(t, o.Members, 2)
	assert.Equal(t, domain.PaymentPending, o.Members[1].PaymentStatus)

	rec := a.do(t, http.MethodGet, "/api/orders/"+o.ID.String(), a.token(t, a.bob.ID, RoleUser), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "Sigiriya", got.Itinerary.Title)
}

func TestAuthentication(t *testing.T) {
	a := newAPI(t, false)

	rec := a.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorCode(t, rec))

	other, err := NewAuthenticator("other-secret").IssueToken(a.alice.ID, RoleUser, time.Hour)
	require.NoError(t, err)
	rec = a.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), other, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := a.auth.IssueToken(a.alice.ID, RoleUser, -time.Minute)
	require.NoError(t, err)
	rec = a.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), expired, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	a := newAPI(t, false)
	user := a.token(t, a.alice.ID, RoleUser)
	admin := a.token(t, a.admin, RoleAdmin)

	for _, path := range []string{"/api/orders/completed", "/api/orders/pending-with-paid-members"} {
		rec := a.do(t, http.MethodGet, path, user, nil, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "forbidden", errorCode(t, rec))

		rec = a.do(t, http.MethodGet, path, admin, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"orders":[]}`, rec.Body.String())
	}

	rec := a.do(t, http.MethodDelete, "/api/orders/"+uuid.NewString(), user, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateOrderErrors(t *testing.T) {
	a := newAPI(t, false)
	tok := a.token(t, a.alice.ID, RoleUser)

	rec := a.do(t, http.MethodPost, "/api/orders", tok, strings.NewReader(`{"itinerary":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", errorCode(t, rec))

	rec = a.do(t, http.MethodPost, "/api/orders", tok, strings.NewReader(`{"members":[]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))

	a.itinerary.ID = uuid.New()
	rec = a.do(t, http.MethodPost, "/api/orders", tok, a.createBody(a.alice.ID), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "itinerary_not_found", errorCode(t, rec))

	rec = a.do(t, http.MethodGet, "/api/orders/not-an-id", tok, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", errorCode(t, rec))

	rec = a.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), tok, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order_not_found", errorCode(t, rec))
}

func TestRecordPaymentWithSlip(t *testing.T) {
	a := newAPI(t, false)
	o := a.createOrder(t)
	tok := a.token(t, a.bob.ID, RoleUser)

	body, ct := paymentBody(t, a.bob.ID.String(), pngBytes, "image/png")
	rec := a.do(t, http.MethodPut, "/api/orders/"+o.ID.String()+"/payment", tok, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.PaymentPending, got.Members[0].PaymentStatus)
	assert.Equal(t, domain.PaymentPaid, got.Members[1].PaymentStatus)
	require.NotNil(t, got.Members[1].PaymentSlip)

	slipURL := *got.Members[1].PaymentSlip
	assert.True(t, strings.HasPrefix(slipURL, testBaseURL+"/slips/payment-slips/"), slipURL)
	assert.True(t, strings.HasSuffix(slipURL, "-"+a.bob.ID.String()+".png"), slipURL)

	rec = a.do(t, http.MethodGet, strings.TrimPrefix(slipURL, testBaseURL), "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
}

func TestRecordPaymentErrors(t *testing.T) {
	a := newAPI(t, false)
	o := a.createOrder(t)
	tok := a.token(t, a.bob.ID, RoleUser)
	path := "/api/orders/" + o.ID.String() + "/payment"

	body, ct := paymentBody(t, a.bob.ID.String(), []byte("%PDF-1.7\n"), "application/pdf")
	rec := a.do(t, http.MethodPut, path, tok, body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "unsupported_media_type", errorCode(t, rec))

	body, ct = paymentBody(t, "", nil, "")
	rec = a.do(t, http.MethodPut, path, tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user_id_required", errorCode(t, rec))

	body, ct = paymentBody(t, uuid.NewString(), nil, "")
	rec = a.do(t, http.MethodPut, path, tok, body, ct)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "member_not_in_order", errorCode(t, rec))

	rec = a.do(t, http.MethodPut, path, tok, strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/orders/"+o.ID.String(), tok, nil, "")
	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	for _, m := range got.Members {
		assert.Equal(t, domain.PaymentPending, m.PaymentStatus)
	}
}

func TestUserPayments(t *testing.T) {
	a := newAPI(t, false)
	o := a.createOrder(t)
	tok := a.token(t, a.alice.ID, RoleUser)

	rec := a.do(t, http.MethodGet, "/api/orders/users/"+a.bob.ID.String()+"/payments", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		UserPayments []domain.PaymentView `json:"userPayments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.UserPayments, 1)
	assert.Equal(t, o.ID, body.UserPayments[0].OrderID)
	assert.True(t, body.UserPayments[0].PaymentShare.Equal(decimal.NewFromInt(100)))

	rec = a.do(t, http.MethodGet, "/api/orders/users/"+uuid.NewString()+"/payments", tok, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userPayments":[]}`, rec.Body.String())
}

func TestAdminLifecycle(t *testing.T) {
	a := newAPI(t, false)
	o := a.createOrder(t)
	admin := a.token(t, a.admin, RoleAdmin)

	for _, u := range []domain.User{a.alice, a.bob} {
		body, ct := paymentBody(t, u.ID.String(), nil, "")
		rec := a.do(t, http.MethodPut, "/api/orders/"+o.ID.String()+"/payment", a.token(t, u.ID, RoleUser), body, ct)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var list struct {
		Orders []domain.Order `json:"orders"`
	}
	rec := a.do(t, http.MethodGet, "/api/orders/pending-with-paid-members", admin, nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Orders, 1)

	rec = a.do(t, http.MethodPut, "/api/orders/"+o.ID.String()+"/mark-paid", admin, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/orders/completed", admin, nil, "")
	list.Orders = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, domain.OrderPaid, list.Orders[0].OrderStatus)

	rec = a.do(t, http.MethodDelete, "/api/orders/"+o.ID.String(), admin, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodDelete, "/api/orders/"+o.ID.String(), admin, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueOrder(t *testing.T) {
	a := newAPI(t, true)
	tok := a.token(t, a.alice.ID, RoleUser)

	rec := a.do(t, http.MethodPost, "/api/orders/async", tok, a.createBody(a.alice.ID), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body struct {
		OrderID uuid.UUID `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, a.pub.sent, 1)
	assert.Equal(t, a.alice.ID, a.pub.sent[0].RequesterID)
	assert.Equal(t, body.OrderID, a.pub.sent[0].Order.OrderID)
	assert.NotEqual(t, uuid.Nil, body.OrderID)

	a.pub.err = errors.New("broker down")
	rec = a.do(t, http.MethodPost, "/api/orders/async", tok, a.createBody(a.alice.ID), "application/json")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "enqueue_failed", errorCode(t, rec))
}

func TestEnqueueOrderDisabled(t *testing.T) {
	a := newAPI(t, false)
	rec := a.do(t, http.MethodPost, "/api/orders/async", a.token(t, a.alice.ID, RoleUser),
		a.createBody(a.alice.ID), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "intake_disabled", errorCode(t, rec))
}

func TestSlipDirectoryIsNotListed(t *testing.T) {
	a := newAPI(t, false)
	rec := a.do(t, http.MethodGet, "/slips/", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrderReusedIDConflicts(t *testing.T) {
	a := newAPI(t, false)
	body, err := json.Marshal(map[string]any{
		"orderId":         uuid.New(),
		"itinerary":       a.itinerary.ID,
		"date":            time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"),
		"numberOfMembers": 2,
		"members":         []uuid.UUID{a.alice.ID, a.bob.ID},
	})
	require.NoError(t, err)

	rec := a.do(t, http.MethodPost, "/api/orders", a.token(t, a.alice.ID, RoleUser), bytes.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/orders", a.token(t, a.bob.ID, RoleUser), bytes.NewReader(body), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "order_id_conflict", errorCode(t, rec))
}
