package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/discovery"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/soap"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

// fakeRenderer is a minimal AVTransport stand-in that answers every
// SOAP action with an empty success envelope and every SUBSCRIBE with
// a fixed SID, enough for the registry's control/subscription paths.
func fakeRenderer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		w.Write([]byte(`<?xml version="1.0"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body></s:Body></s:Envelope>`))
	})
	mux.HandleFunc("/event", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "SUBSCRIBE" {
			w.Header().Set("SID", "uuid:test-sid")
			w.Header().Set("TIMEOUT", "Second-1800")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func newTestDescription(udn, baseURL string) *discovery.DeviceDescription {
	return &discovery.DeviceDescription{
		UDN:          udn,
		FriendlyName: "Test Renderer",
		Services: []discovery.ServiceEndpoint{
			{ServiceType: soap.ServiceTypeAVTransport, ControlURL: baseURL + "/control", EventSubURL: baseURL + "/event"},
			{ServiceType: soap.ServiceTypeConnectionManager, ControlURL: baseURL + "/control", EventSubURL: baseURL + "/event"},
		},
	}
}

func newTestRegistry(found, lost *[]string, mu *sync.Mutex) *Registry {
	return New(Options{
		SOAPClient:             soap.NewClient(2 * time.Second),
		SubscriptionClient:     soap.NewSubscriptionClient(2 * time.Second),
		CallbackBaseURL:        "http://127.0.0.1:9/callback",
		ResubscribeDebounce:    30 * time.Millisecond,
		SubscriptionTimeoutSec: 1800,
		OnFound: func(path, udn string) {
			mu.Lock()
			*found = append(*found, path)
			mu.Unlock()
		},
		OnLost: func(path string) {
			mu.Lock()
			*lost = append(*lost, path)
			mu.Unlock()
		},
	})
}

func TestRegistry_DiscoveryPublishesPathAndSubscribes(t *testing.T) {
	server := fakeRenderer(t)
	defer server.Close()

	var found, lost []string
	var mu sync.Mutex
	reg := newTestRegistry(&found, &lost, &mu)

	desc := newTestDescription("udn-1", server.URL)
	reg.HandleEvent(context.Background(), discovery.Event{Type: discovery.EventAvailable, UDN: "udn-1", InterfaceIP: "127.0.0.1", Description: desc})

	mu.Lock()
	require.Len(t, found, 1)
	path := found[0]
	mu.Unlock()

	d, ok := reg.Lookup(path)
	require.True(t, ok)
	assert.Equal(t, "udn-1", d.UDN)

	c, ok := d.firstContext()
	require.True(t, ok)
	assert.True(t, c.SubscribedAV)
	assert.True(t, c.SubscribedCM)
}

func TestRegistry_ContextFlapKeepsDeviceWhenAnotherInterfaceSurvives(t *testing.T) {
	server := fakeRenderer(t)
	defer server.Close()

	var found, lost []string
	var mu sync.Mutex
	reg := newTestRegistry(&found, &lost, &mu)

	desc := newTestDescription("udn-2", server.URL)
	ctx := context.Background()
	reg.HandleEvent(ctx, discovery.Event{Type: discovery.EventAvailable, UDN: "udn-2", InterfaceIP: "127.0.0.1", Description: desc})
	reg.HandleEvent(ctx, discovery.Event{Type: discovery.EventAvailable, UDN: "udn-2", InterfaceIP: "127.0.0.2", Description: desc})

	mu.Lock()
	require.Len(t, found, 1, "a second context on an already-known UDN must not republish the path")
	path := found[0]
	mu.Unlock()

	d, ok := reg.Lookup(path)
	require.True(t, ok)
	require.Len(t, d.Contexts(), 2)

	// Losing one interface's context while the other survives must not
	// tear the Device down, and the loss of a subscribed context
	// schedules a debounced resubscribe on the surviving one rather
	// than leaving it permanently unsubscribed.
	reg.HandleEvent(ctx, discovery.Event{Type: discovery.EventUnavailable, UDN: "udn-2", InterfaceIP: "127.0.0.1"})

	mu.Lock()
	assert.Empty(t, lost, "device must survive the loss of one of two contexts")
	mu.Unlock()

	_, stillThere := reg.Lookup(path)
	assert.True(t, stillThere)
	require.Len(t, d.Contexts(), 1)

	time.Sleep(80 * time.Millisecond)

	c, ok := d.firstContext()
	require.True(t, ok)
	assert.True(t, c.SubscribedAV, "surviving context should remain subscribed after the debounced resubscribe pass")
}

func TestRegistry_LastContextLossCompletesInFlightTaskAsLost(t *testing.T) {
	server := fakeRenderer(t)
	defer server.Close()

	var found, lost []string
	var mu sync.Mutex
	reg := newTestRegistry(&found, &lost, &mu)

	desc := newTestDescription("udn-3", server.URL)
	ctx := context.Background()
	reg.HandleEvent(ctx, discovery.Event{Type: discovery.EventAvailable, UDN: "udn-3", InterfaceIP: "127.0.0.1", Description: desc})

	mu.Lock()
	path := found[0]
	mu.Unlock()
	d, _ := reg.Lookup(path)

	resultCh := make(chan error, 1)
	env, _ := task.New(ctx, task.KindPlay, path, func(result task.Result, err error) {
		resultCh <- err
	})
	require.True(t, d.setCurrentTask(env))

	reg.HandleEvent(ctx, discovery.Event{Type: discovery.EventUnavailable, UDN: "udn-3", InterfaceIP: "127.0.0.1"})

	select {
	case err := <-resultCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("in-flight task never completed after last context was lost")
	}

	mu.Lock()
	assert.Contains(t, lost, path)
	mu.Unlock()
}

func TestRegistry_DispatchUnknownPathCompletesObjectNotFound(t *testing.T) {
	var found, lost []string
	var mu sync.Mutex
	reg := newTestRegistry(&found, &lost, &mu)

	var gotErr error
	env, _ := task.New(context.Background(), task.KindPlay, "/org/rendererserviceupnp/device99", func(result task.Result, err error) {
		gotErr = err
	})

	reg.Dispatch(env, func(d *Device) {
		t.Fatal("run must not be called for an unknown path")
	})

	require.Error(t, gotErr)
}
