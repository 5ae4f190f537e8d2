package media_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bosley/snipe/media"
	"github.com/bosley/snipe/media/mediatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestAccessDesktopDefaults(t *testing.T) {
	backend := &mediatest.Backend{}
	acq := media.NewAcquirer(backend, media.Platform{})

	assert.True(t, acq.ShowPermissionButton())

	stream, err := acq.RequestAccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stream, acq.Stream())
	assert.True(t, acq.HasPermission())
	assert.False(t, acq.ShowPermissionButton())

	require.Len(t, backend.Requests, 1)
	assert.Nil(t, backend.Requests[0].Audio.EchoCancellation)
	assert.Equal(t, "user", backend.Requests[0].Video.FacingMode)
}

func TestRequestAccessIOSFallbackChain(t *testing.T) {
	backend := &mediatest.Backend{Errors: []error{media.ErrOverconstrained, media.ErrOverconstrained}}
	acq := media.NewAcquirer(backend, media.Platform{IOSFamily: true})

	_, err := acq.RequestAccess(context.Background())
	require.NoError(t, err)

	require.Len(t, backend.Requests, 3)
	raw := backend.Requests[0].Audio
	require.NotNil(t, raw.EchoCancellation)
	assert.False(t, *raw.EchoCancellation)
	assert.False(t, *raw.NoiseSuppression)
	assert.False(t, *raw.AutoGainControl)
	assert.Nil(t, backend.Requests[1].Audio.EchoCancellation)
	assert.True(t, backend.Requests[2].Unconstrained)
}

func TestRequestAccessDenied(t *testing.T) {
	backend := &mediatest.Backend{Errors: []error{media.ErrDenied}}
	acq := media.NewAcquirer(backend, media.Platform{IOSFamily: true})

	_, err := acq.RequestAccess(context.Background())
	var permErr *media.PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.ErrorIs(t, err, media.ErrDenied)
	assert.NotEmpty(t, permErr.UserMessage())

	// a denial is not retried with looser constraints
	assert.Equal(t, 1, backend.RequestCount())
	assert.False(t, acq.HasPermission())
	assert.True(t, acq.ShowPermissionButton())
	assert.Nil(t, acq.Stream())
}

func TestRequestAccessNoDevice(t *testing.T) {
	backend := &mediatest.Backend{Errors: []error{media.ErrNoDevice}}
	acq := media.NewAcquirer(backend, media.Platform{})

	_, err := acq.RequestAccess(context.Background())
	var permErr *media.PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Contains(t, permErr.UserMessage(), "No microphone")
}

func TestRequestAccessAllRejected(t *testing.T) {
	boom := errors.New("boom")
	backend := &mediatest.Backend{Errors: []error{boom, boom}}
	acq := media.NewAcquirer(backend, media.Platform{})

	_, err := acq.RequestAccess(context.Background())
	var permErr *media.PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.ErrorIs(t, err, boom)
}

func TestRequestAccessWhileHeld(t *testing.T) {
	acq := media.NewAcquirer(&mediatest.Backend{}, media.Platform{})

	_, err := acq.RequestAccess(context.Background())
	require.NoError(t, err)

	_, err = acq.RequestAccess(context.Background())
	assert.ErrorIs(t, err, media.ErrStreamHeld)
}

func TestReleaseThenRequest(t *testing.T) {
	backend := &mediatest.Backend{}
	acq := media.NewAcquirer(backend, media.Platform{})

	acq.Release() // nothing held

	_, err := acq.RequestAccess(context.Background())
	require.NoError(t, err)
	first := backend.Opened[0]

	acq.Release()
	acq.Release()
	assert.True(t, first.Stopped())
	assert.Nil(t, acq.Stream())

	stream, err := acq.RequestAccess(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), stream.ID())
	assert.True(t, acq.HasPermission())
}

func TestRequestAccessCancelled(t *testing.T) {
	backend := &mediatest.Backend{Errors: []error{context.Canceled}}
	acq := media.NewAcquirer(backend, media.Platform{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := acq.RequestAccess(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
