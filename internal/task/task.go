// Package task implements the Async Task Envelope: the uniform record
// binding one in-flight UPnP action to its originating request, its
// completion callback, and its cancellation token.
package task

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/apperrors"
)

// Kind tags the variant of action an Envelope carries.
type Kind string

const (
	KindGetProp      Kind = "get-prop"
	KindSetProp      Kind = "set-prop"
	KindGetAllProps  Kind = "get-all-props"
	KindPlay         Kind = "play"
	KindPause        Kind = "pause"
	KindPlayPause    Kind = "play-pause"
	KindStop         Kind = "stop"
	KindNext         Kind = "next"
	KindPrevious     Kind = "previous"
	KindOpenURI      Kind = "open-uri"
	KindSeek         Kind = "seek"
	KindSetPosition  Kind = "set-position"
	KindHostURI      Kind = "host-uri"
	KindRemoveURI    Kind = "remove-uri"
)

// Result is whatever value a successful action produces; its shape
// depends on Kind.
type Result any

// CompletionFunc is invoked exactly once when an Envelope finishes,
// carrying either a Result or an error (never both).
type CompletionFunc func(result Result, err error)

// Envelope is the Go analogue of rsu_async_cb_data_t. Unlike the
// original's GLib idle-source scheduling, Complete runs the callback
// synchronously on whichever goroutine calls it; completion is not
// deferred to a later tick.
type Envelope struct {
	ID     string
	Kind   Kind
	Path   string // bus path of the target device, for not-found completions before a device is resolved

	mu        sync.Mutex
	completed bool
	cb        CompletionFunc

	cancel context.CancelFunc
	ctx    context.Context

	// Private is component-specific scratch state (e.g. the SOAP
	// action in flight) released by Complete.
	Private     any
	FreePrivate func(any)
}

// New constructs an Envelope bound to parentCtx; cancelling parentCtx
// (or calling Cancel) drives the cancellation path.
func New(parentCtx context.Context, kind Kind, path string, cb CompletionFunc) (*Envelope, context.Context) {
	ctx, cancel := context.WithCancel(parentCtx)
	env := &Envelope{
		ID:     uuid.NewString(),
		Kind:   kind,
		Path:   path,
		cb:     cb,
		cancel: cancel,
		ctx:    ctx,
	}
	context.AfterFunc(ctx, env.Cancel)
	return env, ctx
}

// Context returns the Envelope's cancellation context, for selecting
// alongside a remote action's result channel.
func (e *Envelope) Context() context.Context {
	return e.ctx
}

// Complete invokes the completion callback exactly once. Subsequent
// calls are no-ops, matching complete_task's idempotence from the
// caller's viewpoint.
func (e *Envelope) Complete(result Result, err error) {
	e.mu.Lock()
	if e.completed {
		e.mu.Unlock()
		return
	}
	e.completed = true
	e.mu.Unlock()

	e.cancel()
	if e.FreePrivate != nil && e.Private != nil {
		e.FreePrivate(e.Private)
	}
	e.cb(result, err)
}

// LostObject fills the error slot with ObjectNotFound and completes,
// mirroring rsu_async_task_lost_object: called when the Device behind
// an in-flight task is torn down mid-action.
func (e *Envelope) LostObject() {
	e.Complete(nil, apperrors.NewObjectNotFound("device removed while task was in flight", nil))
}

// Cancel completes the Envelope with Cancelled. Re-entrant calls
// (cancel fired twice, or after natural completion) are no-ops via
// Complete's idempotence.
func (e *Envelope) Cancel() {
	e.Complete(nil, apperrors.NewCancelled())
}
