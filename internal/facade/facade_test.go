package facade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/busadapter"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/discovery"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/hostfile"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/mimeguess"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/monitor"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/registry"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/soap"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

func fakeRenderer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		w.Write([]byte(`<?xml version="1.0"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body></s:Body></s:Envelope>`))
	})
	mux.HandleFunc("/event", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

// newTestFacade builds a Facade without starting real SSDP discovery,
// so tests can drive its registry directly through HandleEvent.
func newTestFacade(t *testing.T) (*Facade, *httptest.Server) {
	t.Helper()
	server := fakeRenderer(t)
	t.Cleanup(server.Close)

	f := &Facade{
		hostSvc: hostfile.NewService(mimeguess.NewSniffingGuesser()),
		hub:     monitor.NewHub(),
	}
	f.registry = registry.New(registry.Options{
		SOAPClient:             soap.NewClient(2 * time.Second),
		SubscriptionClient:     soap.NewSubscriptionClient(2 * time.Second),
		CallbackBaseURL:        "http://127.0.0.1:9/callback",
		ResubscribeDebounce:    30 * time.Millisecond,
		SubscriptionTimeoutSec: 1800,
		OnFound: func(path, udn string) {
			f.bus.Publish(path, udn)
		},
		OnLost: func(path string) {
			f.bus.Unpublish(path)
		},
	})
	f.bus = busadapter.NewRouter(f)

	desc := &discovery.DeviceDescription{
		UDN: "udn-facade-1",
		Services: []discovery.ServiceEndpoint{
			{ServiceType: soap.ServiceTypeAVTransport, ControlURL: server.URL + "/control", EventSubURL: server.URL + "/event"},
			{ServiceType: soap.ServiceTypeConnectionManager, ControlURL: server.URL + "/control", EventSubURL: server.URL + "/event"},
		},
	}
	f.registry.HandleEvent(context.Background(), discovery.Event{
		Type:        discovery.EventAvailable,
		UDN:         "udn-facade-1",
		InterfaceIP: "127.0.0.1",
		Description: desc,
	})

	return f, server
}

func TestFacade_CallPlayDispatchesToDevice(t *testing.T) {
	f, _ := newTestFacade(t)

	devices := f.Registry().Devices()
	require.Len(t, devices, 1)
	path := devices[0].Path

	_, err := f.Call(context.Background(), path, task.KindPlay, "client-a", nil)
	require.NoError(t, err)
}

func TestFacade_CallPlayPauseDispatchesToDevice(t *testing.T) {
	f, _ := newTestFacade(t)

	path := f.Registry().Devices()[0].Path

	_, err := f.Call(context.Background(), path, task.KindPlayPause, "client-a", nil)
	require.NoError(t, err)
}

func TestFacade_CallSetPropDispatchesToDevice(t *testing.T) {
	f, _ := newTestFacade(t)

	path := f.Registry().Devices()[0].Path

	_, err := f.Call(context.Background(), path, task.KindSetProp, "client-a", map[string]string{"name": "TrackURI", "value": "http://example.com/track.mp3"})
	require.NoError(t, err)
}

func TestFacade_CallUnknownPathReturnsObjectNotFound(t *testing.T) {
	f, _ := newTestFacade(t)

	_, err := f.Call(context.Background(), "/org/rendererserviceupnp/device999", task.KindPlay, "client-a", nil)
	require.Error(t, err)
}

func TestFacade_HostURIThenRemoveHostedURI(t *testing.T) {
	f, _ := newTestFacade(t)

	path := f.Registry().Devices()[0].Path

	tmp, err := os.CreateTemp(t.TempDir(), "hosted-*.mp3")
	require.NoError(t, err)
	_, err = tmp.WriteString("fake-audio-bytes")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	_, err = f.Call(context.Background(), path, task.KindHostURI, "client-a", map[string]string{"path": tmp.Name()})
	require.NoError(t, err)

	result, err := f.Call(context.Background(), path, task.KindRemoveURI, "client-a", map[string]string{"path": tmp.Name()})
	require.NoError(t, err)
	assert.Equal(t, true, result)
}
