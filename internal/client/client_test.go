package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fbxos/internal/domain"
	"github.com/koltyakov/fbxos/internal/fakebox"
	"github.com/koltyakov/fbxos/internal/log"
)

func newTestClient(t *testing.T, box *fakebox.Server, reg domain.Registration) *Client {
	t.Helper()
	c, err := New(box.Addressing(), reg, domain.AppDescriptor{AppID: "fr.freebox.fbxos.test", AppName: "fbxos", AppVersion: "dev", DeviceName: "ci"}, Options{
		Timeout:      2 * time.Second,
		RetryBackoff: time.Millisecond,
		MaxAttempts:  5,
		RadioTimeout: 50 * time.Millisecond,
	}, log.Discard())
	require.NoError(t, err)
	return c
}

func TestSessionPassword(t *testing.T) {
	t.Parallel()

	pw := SessionPassword("dyNYgfK0Ya6FWGqq83sBHa7TwzWo+pg4fDFUJHShcjVYzTfaRrZzm93p7OTAfH/0", "VzhbtpR4r8CLaJle2QgJBEkyd8JPb0zL")
	assert.Len(t, pw, 40)
	assert.Equal(t, strings.ToLower(pw), pw)
	assert.Equal(t, "fbdb1d1b18aa6c08324b7d64b71fb76370690e1d", SessionPassword("", ""))
	assert.Equal(t, "de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9", SessionPassword("key", "The quick brown fox jumps over the lazy dog"))
}

func TestLoginOpensSession(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	c := newTestClient(t, box, box.Registration())
	assert.Equal(t, StateAnonymous, c.State())

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, StateAuthenticated, c.State())
	assert.True(t, c.Permissions().Has("settings"))

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, 1, box.Sessions(), "second login must reuse the session")

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, StateRevoked, c.State())
	assert.Nil(t, c.Permissions())
}

func TestLoginWithoutRegistrationMakesNoRequest(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	c := newTestClient(t, box, domain.Registration{})

	_, err := c.Get(context.Background(), "/call/log/")
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, domain.HintRegister, cfgErr.Hint)
	assert.Zero(t, box.Hits(http.MethodGet, "/login/"))
}

func TestLoginWrongTokenIsSessionAuthError(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	c := newTestClient(t, box, domain.Registration{AppToken: "wrong", TrackID: 7})

	err := c.Login(context.Background())
	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	assert.Equal(t, domain.StageSession, authErr.Stage)
	assert.Equal(t, "invalid_token", authErr.ErrorCode)
	assert.Equal(t, StateChallenged, c.State())
}

func TestMissingSettingsPermissionIsNotFatal(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	box.SetPermissions(domain.Permissions{"calls": true})
	c := newTestClient(t, box, box.Registration())

	require.NoError(t, c.Login(context.Background()))
	assert.False(t, c.Permissions().Has("settings"))
}

func TestForbiddenIsRetriedWithFreshSession(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	box.HandleResult(http.MethodGet, "/call/log/", []map[string]any{{"id": 1}})
	box.Forbid(http.MethodGet, "/call/log/", 2)
	c := newTestClient(t, box, box.Registration())

	env, err := c.Get(context.Background(), "/call/log/")
	require.NoError(t, err)
	assert.True(t, env.HasResult())
	assert.Equal(t, 3, box.Hits(http.MethodGet, "/call/log/"))
	assert.Equal(t, 3, box.Sessions())
}

func TestForbiddenRetryIsBounded(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	box.HandleResult(http.MethodGet, "/call/log/", nil)
	box.Forbid(http.MethodGet, "/call/log/", 6)
	c := newTestClient(t, box, box.Registration())

	_, err := c.Get(context.Background(), "/call/log/")
	var pe *domain.ProtocolError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	require.NotNil(t, pe.Envelope)
	assert.Equal(t, "insufficient_rights", pe.Envelope.ErrorCode)
	assert.Equal(t, 5, box.Hits(http.MethodGet, "/call/log/"))
}

func TestNon2xxIsProtocolError(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	box.Handle(http.MethodGet, "/broken/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	})
	c := newTestClient(t, box, box.Registration())

	_, err := c.Get(context.Background(), "/broken/")
	var pe *domain.ProtocolError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
	assert.Contains(t, pe.Body, "gateway exploded")
	assert.Equal(t, 1, box.Hits(http.MethodGet, "/broken/"))
}

func TestFailureEnvelopeIsRequestFailure(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	box.Handle(http.MethodPut, "/dhcp/static_lease/AA:BB", func(w http.ResponseWriter, _ *http.Request) {
		fakebox.WriteFailure(w, http.StatusOK, "Invalid value", "inval")
	})
	c := newTestClient(t, box, box.Registration())

	_, err := c.Put(context.Background(), "/dhcp/static_lease/AA:BB", map[string]any{"comment": "x"})
	var rf *domain.RequestFailure
	require.True(t, errors.As(err, &rf), "got %v", err)
	assert.Equal(t, "Invalid value", rf.Msg)
	assert.Equal(t, "inval", rf.ErrorCode)
}

func TestMalformedEnvelopePropagates(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	box.Handle(http.MethodGet, "/system/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	})
	c := newTestClient(t, box, box.Registration())

	_, err := c.SystemInfo(context.Background())
	var me *domain.MalformedResponseError
	require.True(t, errors.As(err, &me), "got %v", err)
}

func TestNewRejectsIncompleteAddressing(t *testing.T) {
	t.Parallel()

	_, err := New(domain.Addressing{}, domain.Registration{}, domain.AppDescriptor{}, Options{}, log.Discard())
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.HintDiscover, cfgErr.Hint)
}

func TestRootCAsIncludesVendorRoots(t *testing.T) {
	t.Parallel()

	pool, err := RootCAs("")
	require.NoError(t, err)
	assert.NotNil(t, pool)

	_, err = RootCAs("/nonexistent/ca.pem")
	assert.Error(t, err)
}

func TestDropSessionForcesNewLogin(t *testing.T) {
	t.Parallel()

	box := fakebox.New(t)
	c := newTestClient(t, box, box.Registration())

	first, err := c.SessionToken(context.Background())
	require.NoError(t, err)

	c.DropSession(context.Background(), "some-other-token")
	assert.Equal(t, StateAuthenticated, c.State())

	c.DropSession(context.Background(), first)
	assert.Equal(t, StateRevoked, c.State())

	second, err := c.SessionToken(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, box.Sessions())
}
