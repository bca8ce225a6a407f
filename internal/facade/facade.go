// Package facade wires the registry, host file service, discovery
// listener, bus adapter and monitor feed together into the daemon's
// single Control Façade, grounded on the teacher's
// internal/server.NewHandler wiring shape: construct every service in
// dependency order, build the middleware/router stack, and return a
// shutdown function the caller runs on exit.
package facade

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/api"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/apperrors"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/busadapter"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/config"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/discovery"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/hostfile"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/mimeguess"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/monitor"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/registry"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/soap"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

// Facade is the Control Façade (spec.md §4.4): the single object that
// owns every long-lived service and answers every control/host
// operation a bus transport can ask for.
type Facade struct {
	cfg      config.Config
	registry *registry.Registry
	hostSvc  *hostfile.Service
	hub      *monitor.Hub
	bus      *busadapter.Router

	discoveryCancel context.CancelFunc
}

// requestLoggerMiddleware logs every admin-surface request, matching
// the teacher's own request logger in internal/server/server.go.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.RequestURI(), time.Since(start).Round(time.Millisecond))
	})
}

// New builds a Facade and its HTTP handler, and starts device
// discovery. The returned shutdown func stops discovery, the
// subscription sweep, and the host file service's listeners.
func New(cfg config.Config) (*Facade, http.Handler, func(context.Context) error, error) {
	soapClient := soap.NewClient(cfg.SOAPTimeout())
	subscriptionClient := soap.NewSubscriptionClient(cfg.SOAPTimeout())
	hub := monitor.NewHub()
	hostSvc := hostfile.NewService(mimeguess.NewSniffingGuesser())

	f := &Facade{cfg: cfg, hostSvc: hostSvc, hub: hub}

	callbackBaseURL := "http://" + cfg.AdminHost + ":" + cfg.AdminPort + "/upnp/events"
	reg := registry.New(registry.Options{
		SOAPClient:             soapClient,
		SubscriptionClient:     subscriptionClient,
		CallbackBaseURL:        callbackBaseURL,
		ResubscribeDebounce:    time.Duration(cfg.ResubscribeDebounceMs) * time.Millisecond,
		SubscriptionTimeoutSec: cfg.SubscriptionTimeoutSec,
		OnFound: func(path, udn string) {
			f.bus.Publish(path, udn)
			hub.Broadcast(monitor.Event{Type: monitor.EventDeviceFound, Path: path, UDN: udn})
		},
		OnLost: func(path string) {
			f.bus.Unpublish(path)
			hub.Broadcast(monitor.Event{Type: monitor.EventDeviceLost, Path: path})
		},
	})
	f.registry = reg

	bus := busadapter.NewRouter(f)
	f.bus = bus

	if err := reg.StartSweep("@every 5m"); err != nil {
		return nil, nil, nil, err
	}

	discoveryCtx, cancel := context.WithCancel(context.Background())
	f.discoveryCancel = cancel
	listener := discovery.NewListener(
		cfg.SSDPDiscoveryPasses,
		time.Duration(cfg.SSDPPassIntervalMs)*time.Millisecond,
		time.Duration(cfg.SSDPDiscoveryTimeoutMs)*time.Millisecond,
		time.Duration(cfg.SSDPRescanIntervalMs)*time.Millisecond,
	)
	events := make(chan discovery.Event, 32)
	go listener.Run(discoveryCtx, events)
	go func() {
		for {
			select {
			case <-discoveryCtx.Done():
				return
			case ev := <-events:
				reg.HandleEvent(discoveryCtx, ev)
			}
		}
	}()

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	registerHealthRoutes(router)
	router.Mount("/bus", bus)
	router.Get("/monitor", monitor.Handler(hub))

	shutdown := func(ctx context.Context) error {
		cancel()
		reg.StopSweep()
		hostSvc.Delete()
		return nil
	}

	return f, router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": "rendererserviceupnp"})
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
}

// Call implements busadapter.Dispatcher: it synthesizes an Async Task
// Envelope for the verb, dispatches it against the resolved Device,
// and blocks until the Envelope completes, turning the daemon's
// scheduled-completion model into the loopback admin surface's
// synchronous request/response shape.
func (f *Facade) Call(ctx context.Context, path string, kind task.Kind, client string, args map[string]string) (task.Result, error) {
	resultCh := make(chan struct {
		result task.Result
		err    error
	}, 1)

	env, taskCtx := task.New(ctx, kind, path, func(result task.Result, err error) {
		ev := monitor.Event{Type: monitor.EventTaskCompleted, Path: path, Kind: string(kind), OK: err == nil}
		if err != nil {
			ev.Error = err.Error()
		}
		f.hub.Broadcast(ev)
		resultCh <- struct {
			result task.Result
			err    error
		}{result, err}
	})

	f.registry.Dispatch(env, func(d *registry.Device) {
		f.runVerb(taskCtx, d, env, kind, client, args)
	})

	select {
	case outcome := <-resultCh:
		return outcome.result, outcome.err
	case <-ctx.Done():
		env.Cancel()
		return nil, ctx.Err()
	}
}

func (f *Facade) runVerb(ctx context.Context, d *registry.Device, env *task.Envelope, kind task.Kind, client string, args map[string]string) {
	switch kind {
	case task.KindPlay:
		d.Play(env)
	case task.KindPause:
		d.Pause(env)
	case task.KindPlayPause:
		d.PlayPause(env)
	case task.KindStop:
		d.Stop(env)
	case task.KindNext:
		d.Next(env)
	case task.KindPrevious:
		d.Previous(env)
	case task.KindOpenURI:
		d.OpenURI(env, args["uri"], args["metadata"])
	case task.KindSeek:
		d.Seek(env, args["target"])
	case task.KindSetPosition:
		d.SetPosition(env, args["track"])
	case task.KindGetAllProps:
		d.GetAllProps(env)
	case task.KindGetProp:
		d.GetProp(env, args["name"])
	case task.KindSetProp:
		d.SetProp(env, args["name"], args["value"])
	case task.KindHostURI:
		f.hostURI(ctx, d, env, client, args["path"])
	case task.KindRemoveURI:
		f.removeHostedURI(d, env, client, args["path"])
	default:
		env.Complete(nil, apperrors.NewInternalError("unsupported verb: "+string(kind)))
	}
}

// hostURI turns a local file path into a served URL via the Host
// Service and then opens it on the Device, kept on the façade rather
// than on Device/Registry since only the façade holds the hostfile
// dependency (see DESIGN.md's host-uri/remove-uri placement note).
func (f *Facade) hostURI(ctx context.Context, d *registry.Device, env *task.Envelope, client, filePath string) {
	c, ok := d.FirstContext()
	if !ok {
		env.Complete(nil, apperrors.NewObjectNotFound("device has no reachable context", nil))
		return
	}

	url, err := f.hostSvc.Add(c.InterfaceIP, client, filePath)
	if err != nil {
		env.Complete(nil, err)
		return
	}
	d.OpenURI(env, url, "")
}

func (f *Facade) removeHostedURI(d *registry.Device, env *task.Envelope, client, filePath string) {
	c, ok := d.FirstContext()
	if !ok {
		env.Complete(nil, apperrors.NewObjectNotFound("device has no reachable context", nil))
		return
	}
	removed := f.hostSvc.Remove(c.InterfaceIP, client, filePath)
	env.Complete(removed, nil)
}

// Registry exposes the underlying Registry for introspection/tests.
func (f *Facade) Registry() *registry.Registry { return f.registry }
