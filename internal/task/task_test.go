package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_CompletesExactlyOnce(t *testing.T) {
	var calls int32
	var gotResult Result
	var gotErr error

	env, _ := New(context.Background(), KindPlay, "/server/1", func(result Result, err error) {
		atomic.AddInt32(&calls, 1)
		gotResult = result
		gotErr = err
	})

	env.Complete("ok", nil)
	env.Complete("ok-again", nil)
	env.Complete(nil, assert.AnError)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, "ok", gotResult)
	assert.NoError(t, gotErr)
}

func TestEnvelope_LostObjectSetsObjectNotFound(t *testing.T) {
	var gotErr error
	env, _ := New(context.Background(), KindSeek, "/server/2", func(_ Result, err error) {
		gotErr = err
	})

	env.LostObject()

	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "device removed")
}

func TestEnvelope_CancelIsIdempotent(t *testing.T) {
	var calls int32
	env, ctx := New(context.Background(), KindStop, "/server/3", func(_ Result, _ error) {
		atomic.AddInt32(&calls, 1)
	})

	env.Cancel()
	env.Cancel()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected envelope context to be cancelled")
	}
}

func TestEnvelope_PrivatePayloadIsReleasedOnComplete(t *testing.T) {
	released := false
	env, _ := New(context.Background(), KindGetProp, "/server/4", func(_ Result, _ error) {})
	env.Private = "scratch"
	env.FreePrivate = func(any) { released = true }

	env.Complete("done", nil)

	assert.True(t, released)
}
