package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/discovery"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/task"
)

func TestDevice_HandleUnavailableLastSubscribedContextReportsNoResubscribe(t *testing.T) {
	d := newDevice(nil, "udn-1", "/path/1", newContext("127.0.0.1", &discovery.DeviceDescription{}))
	d.contexts[0].SubscribedAV = true

	noContextsLeft, shouldResubscribe := d.handleUnavailable("127.0.0.1")

	assert.True(t, noContextsLeft, "the only context was removed")
	assert.False(t, shouldResubscribe, "no surviving context to resubscribe on")
}

func TestDevice_HandleUnavailableUnknownInterfaceIsNoOp(t *testing.T) {
	d := newDevice(nil, "udn-1", "/path/1", newContext("127.0.0.1", &discovery.DeviceDescription{}))

	noContextsLeft, shouldResubscribe := d.handleUnavailable("10.0.0.9")

	assert.False(t, noContextsLeft)
	assert.False(t, shouldResubscribe)
	assert.Len(t, d.Contexts(), 1)
}

func TestDevice_SetCurrentTaskRejectsWhileBusy(t *testing.T) {
	d := newDevice(nil, "udn-1", "/path/1", newContext("127.0.0.1", &discovery.DeviceDescription{}))

	env1, _ := task.New(context.Background(), task.KindPlay, "/path/1", func(task.Result, error) {})
	env2, _ := task.New(context.Background(), task.KindPlay, "/path/1", func(task.Result, error) {})

	require.True(t, d.setCurrentTask(env1))
	assert.False(t, d.setCurrentTask(env2), "at most one in-flight task per device")

	d.clearCurrentTask(env1)
	assert.True(t, d.setCurrentTask(env2))
}

func TestDevice_LostObjectCompletesInFlightTaskWithObjectNotFound(t *testing.T) {
	d := newDevice(nil, "udn-1", "/path/1", newContext("127.0.0.1", &discovery.DeviceDescription{}))

	errCh := make(chan error, 1)
	env, _ := task.New(context.Background(), task.KindPlay, "/path/1", func(_ task.Result, err error) {
		errCh <- err
	})
	require.True(t, d.setCurrentTask(env))

	d.lostObject()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}
}
