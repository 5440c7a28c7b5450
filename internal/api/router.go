package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "ontohub/internal/api/context"
	"ontohub/internal/api/handlers"
	"ontohub/internal/api/middleware"
	"ontohub/internal/pkg/errors"
)

type Dependencies struct {
	WebhookHandler  *handlers.WebhookHandler
	OntologyHandler *handlers.OntologyHandler
	HealthHandler   *handlers.HealthHandler
	MetricsHandler  *handlers.MetricsHandler
	AuthMiddleware  *middleware.AuthMiddleware
	RateLimiter     *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("Handler panicked")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}

	// Operations
	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	authMid := deps.AuthMiddleware
	read := deps.RateLimiter.Limit(middleware.LimitRead)
	write := deps.RateLimiter.Limit(middleware.LimitWrite)
	whWrite := authMid.Require(middleware.ScopeWebhooksWrite)
	ontoWrite := authMid.Require(middleware.ScopeOntologiesWrite)
	wh := deps.WebhookHandler
	onto := deps.OntologyHandler

	// Webhook registry
	router.POST("/api/webhooks", chain(wh.Create, write, authMid.Handle, whWrite))
	router.GET("/api/webhooks", chain(wh.List, read, authMid.Handle))
	router.GET("/api/webhooks/:id", chain(wh.Get, read, authMid.Handle))
	router.PUT("/api/webhooks/:id", chain(wh.Update, write, authMid.Handle, whWrite))
	router.DELETE("/api/webhooks/:id", chain(wh.Delete, write, authMid.Handle, whWrite))

	// Deliveries
	router.GET("/api/webhooks/:id/logs", chain(wh.Logs, read, authMid.Handle))
	router.POST("/api/webhooks/:id/ping", chain(wh.Ping, write, authMid.Handle, whWrite))
	router.POST("/api/webhooks/:id/push", chain(wh.Push, write, authMid.Handle, whWrite))
	router.GET("/api/subscriptions/:code", chain(wh.Subscriptions, read, authMid.Handle))
	router.GET("/api/deliveries/by-code/:code", chain(wh.DeliveriesByCode, read, authMid.Handle))

	// Ontology packages
	router.POST("/api/ontologies", chain(onto.Register, write, authMid.Handle, ontoWrite))
	router.GET("/api/ontologies/:id", chain(onto.Get, read, authMid.Handle))
	router.GET("/api/ontologies/:id/deliveries", chain(onto.Deliveries, read, authMid.Handle))
	router.POST("/api/ontologies/:id/activate", chain(onto.Activate, write, authMid.Handle, ontoWrite))
	router.DELETE("/api/ontologies/:id", chain(onto.Delete, write, authMid.Handle, ontoWrite))
	router.GET("/api/series/:code", chain(onto.Versions, read, authMid.Handle))
	router.DELETE("/api/series/:code", chain(onto.DeleteSeries, write, authMid.Handle, ontoWrite))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
