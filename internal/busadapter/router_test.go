package busadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/apperrors"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

type fakeDispatcher struct {
	lastPath   string
	lastKind   task.Kind
	lastClient string
	result     task.Result
	err        error
}

func (f *fakeDispatcher) Call(ctx context.Context, path string, kind task.Kind, client string, args map[string]string) (task.Result, error) {
	f.lastPath = path
	f.lastKind = kind
	f.lastClient = client
	return f.result, f.err
}

func TestRouter_ListDevicesReflectsPublishState(t *testing.T) {
	router := NewRouter(&fakeDispatcher{})
	router.Publish("/org/rendererserviceupnp/device1", "udn-1")

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "udn-1")

	router.Unpublish("/org/rendererserviceupnp/device1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotContains(t, rec.Body.String(), "udn-1")
}

func TestRouter_InvokeForwardsPathVerbAndClient(t *testing.T) {
	dispatcher := &fakeDispatcher{result: "ok"}
	router := NewRouter(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/devices/1/play", strings.NewReader(`{"args":{}}`))
	req.Header.Set("Authorization", "Bearer not-a-real-jwt")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/org/rendererserviceupnp/device1", dispatcher.lastPath)
	assert.Equal(t, task.KindPlay, dispatcher.lastKind)
}

func TestRouter_InvokePropagatesDispatcherError(t *testing.T) {
	dispatcher := &fakeDispatcher{err: apperrors.NewObjectNotFound("no such device", nil)}
	router := NewRouter(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/devices/9/play", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}
