package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/apperrors"
	discoverypkg "github.com/rendererserviceupnp/rendererserviceupnp/internal/discovery"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/soap"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

// Device is a discovered renderer: a UDN, its contexts (one per
// interface it has been seen on), its published bus path, and at
// most one in-flight task.
type Device struct {
	UDN  string
	Path string

	registry *Registry

	mu          sync.Mutex
	contexts    []*Context
	currentTask *task.Envelope
	resubscribeTimer *time.Timer
}

func newDevice(reg *Registry, udn, path string, ctx *Context) *Device {
	return &Device{
		UDN:      udn,
		Path:     path,
		registry: reg,
		contexts: []*Context{ctx},
	}
}

// Contexts returns a snapshot of the Device's current Contexts.
func (d *Device) Contexts() []*Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Context, len(d.contexts))
	copy(out, d.contexts)
	return out
}

func (d *Device) findContext(interfaceIP string) *Context {
	for _, c := range d.contexts {
		if c.InterfaceIP == interfaceIP {
			return c
		}
	}
	return nil
}

// appendContext adds a new Context for interfaceIP if one doesn't
// already exist for it.
func (d *Device) appendContext(interfaceIP string, desc *discoverypkg.DeviceDescription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findContext(interfaceIP) != nil {
		return
	}
	d.contexts = append(d.contexts, newContext(interfaceIP, desc))
}

// handleUnavailable removes the Context for interfaceIP. It reports
// whether the Device has no Contexts left (the caller must then
// remove it from the registry) and whether a debounced resubscribe
// should be scheduled on a surviving context.
//
// The subscription flag is captured from the removed Context before
// it leaves the slice, resolving the spec's open question: resubscribe
// iff the *removed* context was itself subscribed, not whatever
// context happens to remain afterward.
func (d *Device) handleUnavailable(interfaceIP string) (noContextsLeft, shouldResubscribe bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := -1
	for i, c := range d.contexts {
		if c.InterfaceIP == interfaceIP {
			idx = i
			break
		}
	}
	if idx == -1 {
		return len(d.contexts) == 0, false
	}

	wasSubscribed := d.contexts[idx].subscribed()
	d.contexts = append(d.contexts[:idx], d.contexts[idx+1:]...)

	if len(d.contexts) == 0 {
		return true, false
	}

	if wasSubscribed && d.resubscribeTimer == nil {
		return false, true
	}
	return false, false
}

// scheduleResubscribe arranges for resubscribeFn to run after debounce,
// clearing the pending timer handle before invoking it so a second
// loss during the debounce window can schedule again.
func (d *Device) scheduleResubscribe(debounce time.Duration, resubscribeFn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resubscribeTimer != nil {
		return
	}
	d.resubscribeTimer = time.AfterFunc(debounce, func() {
		d.mu.Lock()
		d.resubscribeTimer = nil
		d.mu.Unlock()
		resubscribeFn()
	})
}

// lostObject notifies any in-flight task that its Device vanished.
func (d *Device) lostObject() {
	d.mu.Lock()
	env := d.currentTask
	d.currentTask = nil
	d.mu.Unlock()

	if env != nil {
		env.LostObject()
	}
}

// FirstContext returns the Device's first Context, for callers outside
// the package (the façade's Host Service dispatch) that need an
// interface IP but don't care which one carries the action.
func (d *Device) FirstContext() (*Context, bool) {
	return d.firstContext()
}

// firstContext returns the Device's first Context, used when a verb
// doesn't care which interface carries the action.
func (d *Device) firstContext() (*Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.contexts) == 0 {
		return nil, false
	}
	return d.contexts[0], true
}

// setCurrentTask installs env as the Device's in-flight task, rejecting
// the call if one is already active (at most one in-flight Envelope
// per Device).
func (d *Device) setCurrentTask(env *task.Envelope) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.currentTask != nil {
		return false
	}
	d.currentTask = env
	return true
}

func (d *Device) clearCurrentTask(env *task.Envelope) {
	d.mu.Lock()
	if d.currentTask == env {
		d.currentTask = nil
	}
	d.mu.Unlock()
}

// dispatch runs a SOAP action asynchronously and completes env with
// its result, clearing the Device's current-task slot on completion.
func (d *Device) dispatch(env *task.Envelope, action func(ctx context.Context, client *soap.Client, controlURL string) (task.Result, error)) {
	if !d.setCurrentTask(env) {
		env.Complete(nil, apperrors.NewAppError(apperrors.ErrorCodeInternalError, "device busy with another task", 409, nil))
		return
	}

	c, ok := d.firstContext()
	if !ok || c.AVControlURL == "" {
		d.clearCurrentTask(env)
		env.Complete(nil, apperrors.NewObjectNotFound("device has no reachable AVTransport context", nil))
		return
	}

	go func() {
		result, err := action(env.Context(), d.registry.soapClient, c.AVControlURL)
		d.clearCurrentTask(env)
		if err != nil {
			env.Complete(nil, apperrors.NewTransport(err))
			return
		}
		env.Complete(result, nil)
	}()
}

func (d *Device) Play(env *task.Envelope) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.Play(ctx, controlURL)
	})
}

func (d *Device) Pause(env *task.Envelope) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.Pause(ctx, controlURL)
	})
}

func (d *Device) Stop(env *task.Envelope) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.Stop(ctx, controlURL)
	})
}

func (d *Device) Next(env *task.Envelope) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.Next(ctx, controlURL)
	})
}

func (d *Device) Previous(env *task.Envelope) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.Previous(ctx, controlURL)
	})
}

// OpenURI sets the AVTransportURI to uri/metadata.
func (d *Device) OpenURI(env *task.Envelope, uri, metadata string) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.SetAVTransportURI(ctx, controlURL, uri, metadata)
	})
}

// PlayPause toggles transport state: a device caught PLAYING is
// paused, anything else (PAUSED_PLAYBACK, STOPPED, ...) is played,
// mirroring rsu_device_play_pause's fresh-state-then-decide shape.
func (d *Device) PlayPause(env *task.Envelope) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		info, err := c.GetTransportInfo(ctx, controlURL)
		if err != nil {
			return nil, err
		}
		if info.CurrentTransportState == "PLAYING" {
			return nil, c.Pause(ctx, controlURL)
		}
		return nil, c.Play(ctx, controlURL)
	})
}

// Seek moves to an absolute position by REL_TIME.
func (d *Device) Seek(env *task.Envelope, target string) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.Seek(ctx, controlURL, "REL_TIME", target)
	})
}

// SetPosition seeks to a track number.
func (d *Device) SetPosition(env *task.Envelope, trackNumber string) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		return nil, c.Seek(ctx, controlURL, "TRACK_NR", trackNumber)
	})
}

// Properties is the bag of transport/position state returned by
// get-all-props, built from a fresh GetTransportInfo/GetPositionInfo
// round-trip rather than a cached snapshot.
type Properties struct {
	TransportState string
	TrackURI       string
	RelTime        string
}

// GetAllProps issues GetTransportInfo and GetPositionInfo and merges
// their results.
func (d *Device) GetAllProps(env *task.Envelope) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		transport, err := c.GetTransportInfo(ctx, controlURL)
		if err != nil {
			return nil, err
		}
		position, err := c.GetPositionInfo(ctx, controlURL)
		if err != nil {
			return nil, err
		}
		return Properties{
			TransportState: transport.CurrentTransportState,
			TrackURI:       position.TrackURI,
			RelTime:        position.RelTime,
		}, nil
	})
}

// GetProp reads a single named property, a thin slice of GetAllProps.
func (d *Device) GetProp(env *task.Envelope, name string) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		transport, err := c.GetTransportInfo(ctx, controlURL)
		if err != nil {
			return nil, err
		}
		position, err := c.GetPositionInfo(ctx, controlURL)
		if err != nil {
			return nil, err
		}
		switch name {
		case "TransportState":
			return transport.CurrentTransportState, nil
		case "TrackURI":
			return position.TrackURI, nil
		case "RelTime":
			return position.RelTime, nil
		default:
			return nil, apperrors.NewObjectNotFound("unknown property: "+name, nil)
		}
	})
}

// SetProp is the writer counterpart of GetProp: (prop-name, variant)
// maps to whichever SOAP action actually changes that property, since
// AVTransport has no generic property-set action.
func (d *Device) SetProp(env *task.Envelope, name, value string) {
	d.dispatch(env, func(ctx context.Context, c *soap.Client, controlURL string) (task.Result, error) {
		switch name {
		case "TrackURI":
			return nil, c.SetAVTransportURI(ctx, controlURL, value, "")
		case "RelTime":
			return nil, c.Seek(ctx, controlURL, "REL_TIME", value)
		default:
			return nil, apperrors.NewObjectNotFound("unknown property: "+name, nil)
		}
	})
}
