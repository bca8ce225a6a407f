package busadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/api"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/apperrors"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

// Dispatcher is what the loopback admin router needs from the Control
// Façade: resolve a bus path, verb and client identity to a result,
// blocking until the underlying Async Task Envelope completes.
type Dispatcher interface {
	Call(ctx context.Context, path string, kind task.Kind, client string, args map[string]string) (task.Result, error)
}

// Router is the narrow bus-surface reference adapter: a loopback-only
// chi mux standing in for whatever real message-bus transport a
// deployment wires in. It implements Publisher so the registry/façade
// can announce and withdraw Devices, and forwards verb invocations to
// a Dispatcher. Verb invocations address a Device by the numeric
// suffix of its registry-assigned path (".../deviceN") and the router
// rebuilds the full path from it before dispatching; Publish,
// Unpublish and the /devices listing use the full path.
type Router struct {
	dispatcher Dispatcher

	mu        sync.RWMutex
	published map[string]string // path -> udn

	mux *chi.Mux
}

// NewRouter builds a Router dispatching verb calls through dispatcher.
func NewRouter(dispatcher Dispatcher) *Router {
	r := &Router{
		dispatcher: dispatcher,
		published:  make(map[string]string),
	}

	mux := chi.NewRouter()
	mux.Use(middleware.StripSlashes)
	mux.Use(api.RequestIDMiddleware)
	mux.Use(api.RecovererMiddleware)
	mux.Get("/devices", api.Handler(r.listDevices).ServeHTTP)
	mux.Post("/devices/{deviceID}/{verb}", api.Handler(r.invoke).ServeHTTP)
	r.mux = mux

	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Publish records path as controllable. Implements Publisher.
func (r *Router) Publish(path, udn string) {
	r.mu.Lock()
	r.published[path] = udn
	r.mu.Unlock()
}

// Unpublish withdraws path. Implements Publisher.
func (r *Router) Unpublish(path string) {
	r.mu.Lock()
	delete(r.published, path)
	r.mu.Unlock()
}

type deviceSummary struct {
	Path string `json:"path"`
	UDN  string `json:"udn"`
}

func (r *Router) listDevices(w http.ResponseWriter, req *http.Request) error {
	r.mu.RLock()
	out := make([]deviceSummary, 0, len(r.published))
	for path, udn := range r.published {
		out = append(out, deviceSummary{Path: path, UDN: udn})
	}
	r.mu.RUnlock()
	return api.WriteResource(w, http.StatusOK, out)
}

type invokeRequest struct {
	Args map[string]string `json:"args"`
}

func (r *Router) invoke(w http.ResponseWriter, req *http.Request) error {
	deviceID := chi.URLParam(req, "deviceID")
	path := fmt.Sprintf("/org/rendererserviceupnp/device%s", deviceID)
	verb := task.Kind(chi.URLParam(req, "verb"))

	var body invokeRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeInternalError, "malformed request body", http.StatusBadRequest, nil)
		}
	}

	clientKey := ""
	if identity, err := DecodeClientIdentity(req.Header.Get("Authorization")); err == nil {
		clientKey = identity.Key()
	}
	if clientKey == "" {
		// anonymous caller: mint a one-off key so the Host File Server's
		// refcounting still has a stable identity for this call.
		clientKey = "anon-" + uuid.NewString()
	}

	result, err := r.dispatcher.Call(req.Context(), path, verb, clientKey, body.Args)
	if err != nil {
		return err
	}
	return api.WriteResource(w, http.StatusOK, result)
}
