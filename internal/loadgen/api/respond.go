package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/loadgen/internal/common/loaderrors"
	"github.com/armadaproject/loadgen/internal/common/logging"
)

const maxBodySize = 1 << 20

// handlerFunc is an http handler that reports failures by returning them. The error decides the status code.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		writeError(w, r, err)
	}
}

type errorBody struct {
	Status  int      `json:"status"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Err errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := loaderrors.HTTPStatusFromError(err)
	body := errorBody{Status: status, Message: err.Error()}

	var merr *multierror.Error
	if errors.As(err, &merr) {
		body.Message = "invalid request"
		for _, e := range merr.Errors {
			body.Details = append(body.Details, e.Error())
		}
	}

	logger := log.WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		logging.WithStacktrace(logger, err).Error("Request failed")
	} else {
		logger.WithError(err).Info("Request rejected")
	}
	writeJSON(w, status, errorEnvelope{Err: body})
}

// decodeJSON reads exactly one JSON object from the body into dst. Malformed bodies are invalid arguments.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return &loaderrors.ErrInvalidArgument{Name: "body", Value: "", Message: "request body is required"}
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			return &loaderrors.ErrInvalidArgument{Name: "body", Value: syntaxErr.Offset, Message: "malformed JSON"}
		case errors.As(err, &typeErr):
			return &loaderrors.ErrInvalidArgument{Name: typeErr.Field, Value: typeErr.Value, Message: "wrong type"}
		case errors.Is(err, io.EOF):
			return &loaderrors.ErrInvalidArgument{Name: "body", Value: "", Message: "request body is required"}
		default:
			return &loaderrors.ErrInvalidArgument{Name: "body", Value: "", Message: err.Error()}
		}
	}
	if dec.More() {
		return &loaderrors.ErrInvalidArgument{Name: "body", Value: "", Message: "multiple JSON values"}
	}
	return nil
}
