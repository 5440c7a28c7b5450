package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "ontohub/internal/api/context"
	"ontohub/internal/pkg/errors"
	"ontohub/internal/pkg/validator"
)

type listResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
}

// validateRequest writes a 400 with per-field details when req fails validation.
func validateRequest(w http.ResponseWriter, req interface{}) bool {
	err := validator.Struct(req)
	if err == nil {
		return true
	}
	var details interface{}
	if verr, ok := err.(*validator.Error); ok {
		details = verr.Fields
	}
	errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), details)
	return false
}

func param(r *http.Request, name string) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName(name)
}

// pagination reads limit and offset, accepting skip as an alias for offset.
func pagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offsetParam := q.Get("offset")
	if offsetParam == "" {
		offsetParam = q.Get("skip")
	}
	offset, err := strconv.Atoi(offsetParam)
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
