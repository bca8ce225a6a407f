package discovery

import (
	"context"
	"log"
	"net"
	"net/url"
	"sync"
	"time"
)

// EventType tags a Listener Event as an appearance or disappearance.
type EventType int

const (
	EventAvailable EventType = iota
	EventUnavailable
)

// Event is one device-available or device-unavailable notification,
// the Go analogue of the original's prv_server_available_cb /
// prv_server_unavailable_cb callbacks.
type Event struct {
	Type        EventType
	UDN         string
	InterfaceIP string
	Description *DeviceDescription // nil for EventUnavailable
}

// Listener discovers UPnP MediaRenderer devices by combining periodic
// active M-SEARCH sweeps (for devices already up when the daemon
// starts, or missed by a dropped NOTIFY) with passive SSDP NOTIFY
// alive/byebye monitoring for timely appear/disappear detection.
// Active search is grounded on the teacher's ssdp.go; passive NOTIFY
// handling is grounded on the goupnp ssdp.Registry's alive/byebye
// dispatch, since the teacher's own discovery package never listens
// for NOTIFY at all.
type Listener struct {
	passes       int
	passInterval time.Duration
	timeout      time.Duration
	rescanEvery  time.Duration

	mu   sync.Mutex
	seen map[string]string // USN -> interface IP, to detect byebye targets we never probed
}

// NewListener constructs a Listener with the given discovery tuning.
func NewListener(passes int, passInterval, timeout, rescanEvery time.Duration) *Listener {
	return &Listener{
		passes:       passes,
		passInterval: passInterval,
		timeout:      timeout,
		rescanEvery:  rescanEvery,
		seen:         make(map[string]string),
	}
}

// Run streams Events to out until ctx is cancelled. It never returns
// until ctx is done; discovery errors are logged and swallowed so a
// transient network hiccup never kills the daemon's event loop.
func (l *Listener) Run(ctx context.Context, out chan<- Event) {
	notifications := make(chan notifyMessage, 32)
	go func() {
		if err := listenNotify(ctx, notifications); err != nil {
			log.Printf("discovery: notify listener stopped: %v", err)
		}
	}()

	l.activeScan(ctx, out)

	ticker := time.NewTicker(l.rescanEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-notifications:
			l.handleNotify(ctx, msg, out)
		case <-ticker.C:
			l.activeScan(ctx, out)
		}
	}
}

func (l *Listener) activeScan(ctx context.Context, out chan<- Event) {
	responses, err := Search(ctx, l.passes, l.passInterval, l.timeout)
	if err != nil && len(responses) == 0 {
		log.Printf("discovery: active scan failed: %v", err)
		return
	}

	for _, resp := range responses {
		l.announce(ctx, resp.USN, resp.Location, out)
	}
}

func (l *Listener) handleNotify(ctx context.Context, msg notifyMessage, out chan<- Event) {
	switch msg.NTS {
	case ntsAlive, ntsUpdate:
		l.announce(ctx, msg.USN, msg.Location, out)
	case ntsByebye:
		l.mu.Lock()
		ifaceIP, known := l.seen[msg.USN]
		delete(l.seen, msg.USN)
		l.mu.Unlock()

		if !known {
			return
		}
		out <- Event{Type: EventUnavailable, UDN: usnToUDN(msg.USN), InterfaceIP: ifaceIP}
	}
}

func (l *Listener) announce(ctx context.Context, usn, location string, out chan<- Event) {
	if location == "" {
		return
	}

	ifaceIP := localInterfaceFor(location)

	l.mu.Lock()
	_, already := l.seen[usn]
	l.seen[usn] = ifaceIP
	l.mu.Unlock()
	if already {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	desc, err := FetchDescription(probeCtx, location)
	cancel()
	if err != nil {
		log.Printf("discovery: failed to fetch description from %s: %v", location, err)
		l.mu.Lock()
		delete(l.seen, usn)
		l.mu.Unlock()
		return
	}

	out <- Event{
		Type:        EventAvailable,
		UDN:         desc.UDN,
		InterfaceIP: ifaceIP,
		Description: desc,
	}
}

func usnToUDN(usn string) string {
	// USN is typically "uuid:<UDN>::urn:...", so split on the first "::".
	for i := 0; i+1 < len(usn); i++ {
		if usn[i] == ':' && usn[i+1] == ':' {
			return trimUUIDPrefix(usn[:i])
		}
	}
	return trimUUIDPrefix(usn)
}

func trimUUIDPrefix(s string) string {
	const prefix = "uuid:"
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// localInterfaceFor picks the local outbound interface address that
// would be used to reach location's host, so the returned Context is
// bound to the right local IP without requiring the caller to track
// per-socket metadata from the SSDP datagram itself.
func localInterfaceFor(location string) string {
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	if host == "" {
		return ""
	}

	conn, err := net.Dial("udp", net.JoinHostPort(host, "1900"))
	if err != nil {
		return ""
	}
	defer conn.Close()

	local := conn.LocalAddr().(*net.UDPAddr)
	return local.IP.String()
}
