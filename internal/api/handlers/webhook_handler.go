package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"ontohub/internal/engine/ontology"
	"ontohub/internal/engine/webhooks"
	"ontohub/internal/pkg/errors"
	"ontohub/internal/platform/audit"
	"ontohub/internal/platform/models"
	"ontohub/internal/platform/repositories"
)

type WebhookHandler struct {
	webhooks    *repositories.WebhookRepository
	deliveries  *repositories.DeliveryRepository
	broadcaster *webhooks.Broadcaster
	analyzer    *webhooks.Analyzer
	packages    *ontology.Service
	audit       *audit.Logger
}

func NewWebhookHandler(
	webhookRepo *repositories.WebhookRepository,
	deliveryRepo *repositories.DeliveryRepository,
	broadcaster *webhooks.Broadcaster,
	analyzer *webhooks.Analyzer,
	packages *ontology.Service,
	auditLogger *audit.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		webhooks:    webhookRepo,
		deliveries:  deliveryRepo,
		broadcaster: broadcaster,
		analyzer:    analyzer,
		packages:    packages,
		audit:       auditLogger,
	}
}

// decodeSpec reads a webhook spec from the body and writes a 400 when it is
// unusable.
func decodeSpec(w http.ResponseWriter, r *http.Request) (models.WebhookSpec, bool) {
	var spec models.WebhookSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return spec, false
	}
	spec.TargetURL = strings.TrimSpace(spec.TargetURL)
	if !validateRequest(w, spec) {
		return spec, false
	}
	return spec, true
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	spec, ok := decodeSpec(w, r)
	if !ok {
		return
	}

	webhook, err := h.webhooks.Create(r.Context(), spec)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	h.audit.Log(r, "webhook.create", "webhook", webhook.ID, map[string]interface{}{
		"target_url": webhook.TargetURL,
		"event_type": webhook.EventType,
	})
	writeJSON(w, http.StatusCreated, webhook)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)

	items, total, err := h.webhooks.List(r.Context(), limit, offset)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Webhook{}
	}

	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhook, err := h.webhooks.GetByID(r.Context(), param(r, "id"))
	if stderrors.Is(err, repositories.ErrNotFound) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeWebhookNotFound, "Webhook not found", nil)
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	spec, ok := decodeSpec(w, r)
	if !ok {
		return
	}

	webhook, err := h.webhooks.Update(r.Context(), id, spec)
	switch {
	case stderrors.Is(err, repositories.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeWebhookNotFound, "Webhook not found", nil)
		return
	case stderrors.Is(err, repositories.ErrConflict):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Another webhook already uses this target_url and event_type", nil)
		return
	case err != nil:
		writeInternal(w, r, err)
		return
	}

	h.audit.Log(r, "webhook.update", "webhook", id, nil)
	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	if err := h.webhooks.Delete(r.Context(), id); err != nil {
		writeInternal(w, r, err)
		return
	}

	h.audit.Log(r, "webhook.delete", "webhook", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)
	filter := models.DeliveryFilter{
		OntologyCode: r.URL.Query().Get("ontology_code"),
		Status:       models.DeliveryStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:        limit,
		Offset:       offset,
	}

	items, total, err := h.deliveries.ListByWebhook(r.Context(), param(r, "id"), filter)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Delivery{}
	}

	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

// Ping always answers 200 once the webhook exists; the delivery outcome is
// in the body.
func (h *WebhookHandler) Ping(w http.ResponseWriter, r *http.Request) {
	result, err := h.broadcaster.Ping(context.WithoutCancel(r.Context()), param(r, "id"))
	if stderrors.Is(err, webhooks.ErrWebhookNotFound) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeWebhookNotFound, "Webhook not found", nil)
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, webhooks.Summarize(result))
}

// Push delivers one package version to one webhook. With sync=true the
// terminal delivery result is returned with status 200 even when the
// delivery failed.
func (h *WebhookHandler) Push(w http.ResponseWriter, r *http.Request) {
	packageID := r.URL.Query().Get("package_id")
	if packageID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "package_id is required", nil)
		return
	}
	synchronous, _ := strconv.ParseBool(r.URL.Query().Get("sync"))

	pkg, err := h.packages.Get(r.Context(), packageID)
	if stderrors.Is(err, ontology.ErrPackageNotFound) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Package not found", nil)
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	id := param(r, "id")
	result, queued, err := h.broadcaster.PushOne(context.WithoutCancel(r.Context()), id, pkg, h.packages.AttachmentPath(pkg), synchronous)
	if stderrors.Is(err, webhooks.ErrWebhookNotFound) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeWebhookNotFound, "Webhook not found", nil)
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	h.audit.Log(r, "webhook.push", "webhook", id, map[string]interface{}{
		"package_id": pkg.ID,
		"sync":       synchronous,
	})

	if queued {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	writeJSON(w, http.StatusOK, webhooks.Summarize(result))
}

func (h *WebhookHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	states, err := h.analyzer.SubscriptionStatus(r.Context(), param(r, "code"))
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, states)
}

func (h *WebhookHandler) DeliveriesByCode(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)

	items, err := h.deliveries.ListByOntology(r.Context(), param(r, "code"), limit, offset)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Delivery{}
	}

	writeJSON(w, http.StatusOK, items)
}
