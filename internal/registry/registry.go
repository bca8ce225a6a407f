// Package registry holds the live set of discovered MediaRenderer
// devices: their UDN identity, their per-interface Contexts, their
// published bus paths, and at most one in-flight task per Device.
package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/apperrors"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/discovery"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/soap"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

// FoundFunc and LostFunc notify a bus adapter when a Device's
// published path becomes valid or is withdrawn, so it can
// publish/unpublish the corresponding bus object.
type FoundFunc func(path string, udn string)
type LostFunc func(path string)

// Registry is the UDN-to-Device bijection plus its Path-to-Device
// secondary index, the Go analogue of rsu_device_finder_t's internal
// device table.
type Registry struct {
	soapClient       *soap.Client
	subscriptionSoap *soap.SubscriptionClient
	callbackBaseURL  string
	resubscribeDebounce time.Duration
	subscriptionTimeoutSec int

	mu        sync.Mutex
	byUDN     map[string]*Device
	byPath    map[string]*Device
	udnPaths  map[string]string // UDN -> path, retained across full removal so a returning UDN gets its old path back
	nextIndex int

	onFound FoundFunc
	onLost  LostFunc

	cronSweep *cron.Cron
}

// Options configures a new Registry.
type Options struct {
	SOAPClient             *soap.Client
	SubscriptionClient     *soap.SubscriptionClient
	CallbackBaseURL        string
	ResubscribeDebounce    time.Duration
	SubscriptionTimeoutSec int
	OnFound                FoundFunc
	OnLost                 LostFunc
}

// New constructs an empty Registry. The periodic subscription-health
// sweep is started by calling StartSweep separately, mirroring the
// teacher's pattern of wiring cron jobs in the server constructor
// rather than implicitly inside New.
func New(opts Options) *Registry {
	return &Registry{
		soapClient:             opts.SOAPClient,
		subscriptionSoap:       opts.SubscriptionClient,
		callbackBaseURL:        opts.CallbackBaseURL,
		resubscribeDebounce:    opts.ResubscribeDebounce,
		subscriptionTimeoutSec: opts.SubscriptionTimeoutSec,
		byUDN:                  make(map[string]*Device),
		byPath:                 make(map[string]*Device),
		udnPaths:               make(map[string]string),
		onFound:                opts.OnFound,
		onLost:                 opts.OnLost,
	}
}

// StartSweep schedules a periodic subscription-renewal pass with
// robfig/cron. The pass renews the GENA subscriptions of every
// currently subscribed Context; a Context whose renewal fails is
// marked unsubscribed and is not re-subscribed by the sweep.
func (r *Registry) StartSweep(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, r.sweepSubscriptions); err != nil {
		return err
	}
	c.Start()
	r.cronSweep = c
	return nil
}

// StopSweep halts the periodic sweep, if one was started.
func (r *Registry) StopSweep() {
	if r.cronSweep != nil {
		r.cronSweep.Stop()
	}
}

func (r *Registry) sweepSubscriptions() {
	for _, d := range r.snapshot() {
		for _, c := range d.Contexts() {
			if c.subscribed() {
				r.renewContext(context.Background(), c)
			}
		}
	}
}

func (r *Registry) snapshot() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Device, 0, len(r.byUDN))
	for _, d := range r.byUDN {
		out = append(out, d)
	}
	return out
}

// HandleEvent applies one discovery.Event to the Registry's device
// table, publishing or unpublishing bus paths as Devices come and go.
func (r *Registry) HandleEvent(ctx context.Context, ev discovery.Event) {
	switch ev.Type {
	case discovery.EventAvailable:
		r.handleAvailable(ctx, ev)
	case discovery.EventUnavailable:
		r.handleUnavailable(ctx, ev)
	}
}

func (r *Registry) handleAvailable(ctx context.Context, ev discovery.Event) {
	r.mu.Lock()
	d, exists := r.byUDN[ev.UDN]
	if !exists {
		path := r.pathForUDNLocked(ev.UDN)
		d = newDevice(r, ev.UDN, path, newContext(ev.InterfaceIP, ev.Description))
		r.byUDN[ev.UDN] = d
		r.byPath[path] = d
	}
	r.mu.Unlock()

	if !exists {
		if r.onFound != nil {
			r.onFound(d.Path, d.UDN)
		}
		r.subscribeContext(ctx, d, ev.InterfaceIP)
		return
	}

	d.appendContext(ev.InterfaceIP, ev.Description)
	r.subscribeContext(ctx, d, ev.InterfaceIP)
}

func (r *Registry) handleUnavailable(ctx context.Context, ev discovery.Event) {
	r.mu.Lock()
	d, ok := r.byUDN[ev.UDN]
	r.mu.Unlock()
	if !ok {
		return
	}

	noContextsLeft, shouldResubscribe := d.handleUnavailable(ev.InterfaceIP)

	if noContextsLeft {
		r.mu.Lock()
		delete(r.byUDN, ev.UDN)
		delete(r.byPath, d.Path)
		r.mu.Unlock()

		d.lostObject()
		if r.onLost != nil {
			r.onLost(d.Path)
		}
		return
	}

	if shouldResubscribe {
		d.scheduleResubscribe(r.resubscribeDebounce, func() {
			if c, ok := d.firstContext(); ok {
				r.subscribeContext(context.Background(), d, c.InterfaceIP)
			}
		})
	}
}

// pathForUDNLocked returns the bus path assigned to udn, allocating
// (and permanently remembering) a new one on first sight. Replaying
// unavailable/available for the same UDN after full removal reuses the
// same path rather than burning a fresh index, mirroring the
// original's counter-only-increments-on-first-sight behavior.
func (r *Registry) pathForUDNLocked(udn string) string {
	if path, ok := r.udnPaths[udn]; ok {
		return path
	}
	r.nextIndex++
	path := fmt.Sprintf("/org/rendererserviceupnp/device%d", r.nextIndex)
	r.udnPaths[udn] = path
	return path
}

// subscribeContext issues GENA SUBSCRIBE requests for the AVTransport
// and ConnectionManager services on the named interface's Context.
func (r *Registry) subscribeContext(ctx context.Context, d *Device, interfaceIP string) {
	c := d.findContext(interfaceIP)
	if c == nil {
		return
	}
	d.mu.Lock()
	callback := r.callbackBaseURL
	d.mu.Unlock()
	if callback == "" || r.subscriptionSoap == nil {
		return
	}

	if c.AVEventSubURL != "" && !c.SubscribedAV {
		sid, _, err := r.subscriptionSoap.Subscribe(ctx, c.AVEventSubURL, callback, r.subscriptionTimeoutSec)
		if err != nil {
			log.Printf("registry: AV subscribe failed for %s: %v", d.UDN, err)
		} else {
			c.avSID = sid
			c.SubscribedAV = true
		}
	}
	if c.CMEventSubURL != "" && !c.SubscribedCM {
		sid, _, err := r.subscriptionSoap.Subscribe(ctx, c.CMEventSubURL, callback, r.subscriptionTimeoutSec)
		if err != nil {
			log.Printf("registry: CM subscribe failed for %s: %v", d.UDN, err)
		} else {
			c.cmSID = sid
			c.SubscribedCM = true
		}
	}
}

func (r *Registry) renewContext(ctx context.Context, c *Context) {
	if c.SubscribedAV && c.avSID != "" {
		if _, err := r.subscriptionSoap.Renew(ctx, c.AVEventSubURL, c.avSID, r.subscriptionTimeoutSec); err != nil {
			log.Printf("registry: AV renew failed: %v", err)
			c.SubscribedAV = false
		}
	}
	if c.SubscribedCM && c.cmSID != "" {
		if _, err := r.subscriptionSoap.Renew(ctx, c.CMEventSubURL, c.cmSID, r.subscriptionTimeoutSec); err != nil {
			log.Printf("registry: CM renew failed: %v", err)
			c.SubscribedCM = false
		}
	}
}

// Lookup resolves a bus path to its Device.
func (r *Registry) Lookup(path string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byPath[path]
	return d, ok
}

// Dispatch resolves path to a Device and, if found, calls run with it;
// otherwise it synthesizes an ObjectNotFound completion on env so the
// caller never needs to special-case a missing device.
func (r *Registry) Dispatch(env *task.Envelope, run func(*Device)) {
	d, ok := r.Lookup(env.Path)
	if !ok {
		env.Complete(nil, apperrors.NewObjectNotFound("no such device: "+env.Path, nil))
		return
	}
	run(d)
}

// Devices returns a snapshot of all currently registered Devices, for
// introspection/monitor feeds.
func (r *Registry) Devices() []*Device {
	return r.snapshot()
}
