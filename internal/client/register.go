package client

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/koltyakov/fbxos/internal/domain"
)

// Register pairs this app with the device. A registration that is already
// granted is returned as is. A pending or denied one is reported with
// [domain.ErrRegistrationPending] or [domain.ErrRegistrationDenied]. An
// unknown or timed out one, or none at all, triggers a new authorization
// request whose result must then be confirmed on the device.
func (c *Client) Register(ctx context.Context) (domain.Registration, error) {
	current := c.Registration()
	if current.Validate() == nil {
		status, err := c.RegistrationStatus(ctx, current.TrackID)
		if err != nil {
			return current, err
		}
		switch status {
		case domain.RegistrationGranted:
			c.log.Info("app already granted on the device", "track_id", current.TrackID)
			return current, nil
		case domain.RegistrationPending, domain.RegistrationDenied:
			return current, domain.RegistrationStatusError(status)
		case domain.RegistrationUnknown, domain.RegistrationTimeout:
			c.log.Info("previous registration is no longer valid, registering again", "track_id", current.TrackID, "status", status)
		default:
			return current, domain.RegistrationStatusError(status)
		}
	}

	env, err := c.Post(ctx, "/login/authorize/", c.app, SkipAuth())
	if err != nil {
		return domain.Registration{}, registrationError(err)
	}
	var res domain.AuthorizeResult
	if err := env.DecodeResult(&res); err != nil {
		return domain.Registration{}, registrationError(err)
	}
	reg := domain.Registration{AppToken: res.AppToken, TrackID: res.TrackID}
	if err := reg.Validate(); err != nil {
		return domain.Registration{}, &domain.AuthError{Stage: domain.StageRegistration, Err: err}
	}

	c.session.mu.Lock()
	c.session.reg = reg
	c.revokeLocked()
	c.session.mu.Unlock()
	c.log.Info("authorization requested, confirm it on the device", "track_id", reg.TrackID)
	return reg, nil
}

// RegistrationStatus returns the pairing status of trackID.
func (c *Client) RegistrationStatus(ctx context.Context, trackID int) (string, error) {
	if trackID <= 0 {
		return "", &domain.ConfigurationError{Field: "track_id", Hint: domain.HintRegister, Err: domain.ErrNotRegistered}
	}
	env, err := c.Get(ctx, "/login/authorize/"+strconv.Itoa(trackID), SkipAuth())
	if err != nil {
		return "", registrationError(err)
	}
	var st domain.AuthorizeStatus
	if err := env.DecodeResult(&st); err != nil {
		return "", registrationError(err)
	}
	if st.Status == "" {
		return "", &domain.AuthError{Stage: domain.StageRegistration, Err: errors.New("device returned no status")}
	}
	return st.Status, nil
}

// WaitForGrant polls the pairing status every interval until it leaves
// "pending". It returns nil once granted and the status sentinel otherwise.
func (c *Client) WaitForGrant(ctx context.Context, trackID int, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	return retry.Do(ctx, retry.NewConstant(interval), func(ctx context.Context) error {
		status, err := c.RegistrationStatus(ctx, trackID)
		if err != nil {
			return err
		}
		if status == domain.RegistrationPending {
			c.log.Debug("waiting for grant on the device", "track_id", trackID)
			return retry.RetryableError(domain.ErrRegistrationPending)
		}
		return domain.RegistrationStatusError(status)
	})
}

func registrationError(err error) error {
	var rf *domain.RequestFailure
	if errors.As(err, &rf) {
		return &domain.AuthError{Stage: domain.StageRegistration, Msg: rf.Msg, ErrorCode: rf.ErrorCode, Err: err}
	}
	return authError(domain.StageRegistration, err)
}
