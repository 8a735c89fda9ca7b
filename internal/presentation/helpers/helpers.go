package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/logger"
)

type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func HttpError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: msg})
}

// StatusOf maps an error to the HTTP status it is reported with.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, apperr.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	e, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuth:
		if e.Code == "forbidden" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err in the error envelope. Upstream and unclassified errors are
// logged and answered without their detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	e, _ := apperr.As(err)

	switch {
	case e == nil:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		HttpError(w, status, "internal_error", "internal error")
	case e.Kind == apperr.KindUpstream:
		logger.Error("upstream failure", "method", r.Method, "path", r.URL.Path, "code", e.Code, "err", err)
		HttpError(w, status, e.Code, "upstream service failed")
	default:
		HttpError(w, status, e.Code, e.Error())
	}
}
