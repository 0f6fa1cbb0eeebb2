package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fbxos/internal/domain"
	"github.com/koltyakov/fbxos/internal/fakebox"
)

func TestRegisterAlreadyGranted(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	c := newTestClient(t, box, box.Registration())

	reg, err := c.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, box.Registration(), reg)
	assert.Zero(t, box.Hits(http.MethodPost, "/login/authorize/"))
}

func TestRegisterReportsTerminalStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status string
		want   error
	}{
		{domain.RegistrationPending, domain.ErrRegistrationPending},
		{domain.RegistrationDenied, domain.ErrRegistrationDenied},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.status, func(t *testing.T) {
			t.Parallel()
			box := fakebox.New(t)
			box.SetTrackStatus(box.Registration().TrackID, tt.status)
			c := newTestClient(t, box, box.Registration())

			_, err := c.Register(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, box.Hits(http.MethodPost, "/login/authorize/"))
		})
	}
}

func TestRegisterAgainAfterTimeout(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	old := box.Registration()
	box.SetTrackStatus(old.TrackID, domain.RegistrationTimeout)
	c := newTestClient(t, box, old)

	reg, err := c.Register(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, old.TrackID, reg.TrackID)
	assert.Equal(t, reg, c.Registration())
	assert.Equal(t, 1, box.Hits(http.MethodPost, "/login/authorize/"))

	bodies := box.Bodies(http.MethodPost, "/login/authorize/")
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"app_id":"fr.freebox.fbxos.test","app_name":"fbxos","app_version":"dev","device_name":"ci"}`, string(bodies[0]))
}

func TestRegisterFromScratch(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	c := newTestClient(t, box, domain.Registration{})

	reg, err := c.Register(context.Background())
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	status, err := c.RegistrationStatus(context.Background(), reg.TrackID)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationPending, status)
}

func TestWaitForGrant(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	c := newTestClient(t, box, domain.Registration{})
	reg, err := c.Register(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		box.SetTrackStatus(reg.TrackID, domain.RegistrationGranted)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.WaitForGrant(ctx, reg.TrackID, 5*time.Millisecond))

	require.NoError(t, c.Login(ctx))
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestWaitForGrantDenied(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	box.SetTrackStatus(99, domain.RegistrationDenied)
	c := newTestClient(t, box, domain.Registration{})

	err := c.WaitForGrant(context.Background(), 99, time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrRegistrationDenied)
}
