package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"ontohub/internal/engine/ontology"
	"ontohub/internal/engine/webhooks"
	"ontohub/internal/pkg/errors"
	"ontohub/internal/platform/audit"
)

type OntologyHandler struct {
	service  *ontology.Service
	analyzer *webhooks.Analyzer
	audit    *audit.Logger
}

func NewOntologyHandler(service *ontology.Service, analyzer *webhooks.Analyzer, auditLogger *audit.Logger) *OntologyHandler {
	return &OntologyHandler{service: service, analyzer: analyzer, audit: auditLogger}
}

// writeServiceError maps package service errors onto API error codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case stderrors.Is(err, ontology.ErrPackageNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Package not found", nil)
	case stderrors.Is(err, ontology.ErrInvalidPackage):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	case stderrors.Is(err, ontology.ErrVersionActive):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeVersionActive, "The active version cannot be deleted", nil)
	case stderrors.Is(err, ontology.ErrVersionInUse):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeResourceInUse, "This version is still in use by a webhook subscriber", nil)
	default:
		writeInternal(w, r, err)
	}
}

func (h *OntologyHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string `json:"code" validate:"required,max=128,excludesall=/\\"`
		Name       string `json:"name" validate:"max=255"`
		SourcePath string `json:"source_path" validate:"max=4096"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if !validateRequest(w, req) {
		return
	}

	pkg, err := h.service.Register(r.Context(), req.Code, req.Name, req.SourcePath)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.audit.Log(r, "package.register", "package", pkg.ID, map[string]interface{}{"code": pkg.Code, "version": pkg.Version})
	writeJSON(w, http.StatusCreated, pkg)
}

func (h *OntologyHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Detail(r.Context(), param(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *OntologyHandler) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.Versions(r.Context(), param(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if versions == nil {
		versions = []*ontology.Detail{}
	}

	writeJSON(w, http.StatusOK, versions)
}

// Deliveries reports the per-webhook delivery state of one package version.
func (h *OntologyHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.service.Get(r.Context(), param(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	states, err := h.analyzer.PackageDeliveryStatus(r.Context(), pkg)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, states)
}

// Activate returns as soon as the deliveries are scheduled.
func (h *OntologyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	pkg, matched, err := h.service.Activate(r.Context(), param(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.audit.Log(r, "package.activate", "package", pkg.ID, map[string]interface{}{"code": pkg.Code, "version": pkg.Version})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "activated",
		"version":  pkg.Version,
		"webhooks": matched,
	})
}

func (h *OntologyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	if err := h.service.DeleteVersion(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.audit.Log(r, "package.delete", "package", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OntologyHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	code := param(r, "code")
	if err := h.service.DeleteSeries(r.Context(), code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.audit.Log(r, "series.delete", "series", code, nil)
	w.WriteHeader(http.StatusNoContent)
}
