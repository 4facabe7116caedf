// Package handlers exposes the logbook over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/service"
)

const maxJSONBody = 1 << 20

var (
	errEmptyBody = errors.New("request body is empty")
	errYear      = errors.New("year must be a number")
)

type errorBody struct {
	Error       string `json:"error"`
	Kind        string `json:"kind,omitempty"`
	Maintenance bool   `json:"maintenance,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: service.KindValidation.String()})
}

// writeError maps a service error to its status code. Only the service
// message reaches the client.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	kind := service.KindOf(err)
	body := errorBody{Error: service.Message(err), Kind: kind.String()}

	var status int
	switch kind {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindConflict:
		status = http.StatusConflict
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindUpstreamUnavailable:
		status = http.StatusServiceUnavailable
		body.Maintenance = true
		w.Header().Set("Retry-After", "30")
		log.WithError(err).Warn("store unavailable")
	default:
		status = http.StatusInternalServerError
		log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// queryPage reads ?page=, defaulting to 1.
func queryPage(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, errors.New("page must be a positive integer")
	}
	return page, nil
}
