package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/importer"
	"github.com/JonMunkholm/gobimport/internal/logging"
	"github.com/JonMunkholm/gobimport/internal/mutations"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Action    string `json:"action,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type apiError struct {
	target error
	status int
	code   string
	action string
}

// apiErrors maps domain errors to responses. First match wins.
var apiErrors = []apiError{
	{importer.ErrImportNotFound, http.StatusNotFound, "IMP001", ""},
	{importer.ErrTooManyImports, http.StatusTooManyRequests, "IMP002", "Retry when a running import has finished"},
	{importer.ErrImportFinished, http.StatusConflict, "IMP003", ""},
	{importer.ErrMutationsDisabled, http.StatusNotImplemented, "MUT001", ""},
	{mutations.ErrUnknownApplication, http.StatusBadRequest, "MUT002", "Use an application that delivers mutation files"},
	{mutations.ErrNotYetAvailable, http.StatusConflict, "MUT003", "Retry later"},
	{core.ErrInvalidDataset, http.StatusBadRequest, "DS001", "Check the dataset definition"},
	{fs.ErrNotExist, http.StatusNotFound, "DS002", "Check the dataset path relative to the data directory"},
}

// respondError logs err with the request id and writes the mapped
// response. Unmapped errors are internal and their text is not returned.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Error:     "internal error",
		Code:      "INT001",
		RequestID: middleware.GetReqID(r.Context()),
	}
	status := http.StatusInternalServerError
	for _, e := range apiErrors {
		if errors.Is(err, e.target) {
			status = e.status
			resp.Error = err.Error()
			resp.Code = e.code
			resp.Action = e.action
			break
		}
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", resp.Code,
		"error", err,
	)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, r, status, resp)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, ErrorResponse{
		Error:     msg,
		Code:      "REQ001",
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeJSON encodes v as the response body. Encoding errors are only logged
// since the header is already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
