package registry

import "github.com/rendererserviceupnp/rendererserviceupnp/internal/discovery"

// Context pairs a Device with one local network interface on which it
// was seen, the Go analogue of rsu_device_context_t.
type Context struct {
	InterfaceIP string

	AVControlURL  string
	AVEventSubURL string
	CMControlURL  string
	CMEventSubURL string

	SubscribedAV bool
	SubscribedCM bool
	avSID        string
	cmSID        string
}

func newContext(interfaceIP string, desc *discovery.DeviceDescription) *Context {
	ctx := &Context{InterfaceIP: interfaceIP}
	if av, ok := desc.AVTransport(); ok {
		ctx.AVControlURL = av.ControlURL
		ctx.AVEventSubURL = av.EventSubURL
	}
	if cm, ok := desc.ConnectionManager(); ok {
		ctx.CMControlURL = cm.ControlURL
		ctx.CMEventSubURL = cm.EventSubURL
	}
	return ctx
}

func (c *Context) subscribed() bool {
	return c.SubscribedAV || c.SubscribedCM
}
