package client

import (
	"context"

	"github.com/koltyakov/fbxos/internal/domain"
)

// WifiStatus reports whether the wifi radio is enabled.
func (c *Client) WifiStatus(ctx context.Context) (bool, error) {
	env, err := c.Get(ctx, "/wifi/config/")
	if err != nil {
		return false, err
	}
	var cfg domain.WifiConfig
	if err := env.DecodeResult(&cfg); err != nil {
		return false, err
	}
	return cfg.IsEnabled(), nil
}

// SetWifi turns the wifi radio on or off and returns the resulting state.
//
// When the caller is connected over the wifi it disables, the device drops
// the connection before answering. A timeout while disabling is therefore
// reported as success with the radio off and the session is forgotten
// locally, since the device cannot be reached to close it. A timeout while
// enabling is returned unchanged.
func (c *Client) SetWifi(ctx context.Context, on bool) (bool, error) {
	body := domain.WifiConfig{APParams: &domain.WifiAPParams{Enabled: on}}
	env, err := c.Put(ctx, "/wifi/config/", body, WithTimeout(c.opts.RadioTimeout))
	if err != nil {
		if !on && IsTimeout(err) {
			c.log.Info("wifi disable request timed out, the connection was most likely carried by the radio", "err", err)
			c.session.mu.Lock()
			c.revokeLocked()
			c.session.mu.Unlock()
			return false, nil
		}
		return false, err
	}
	var cfg domain.WifiConfig
	if err := env.DecodeResult(&cfg); err != nil {
		return false, err
	}
	return cfg.IsEnabled(), nil
}

// WifiPlanning reports whether the wifi schedule is enabled.
func (c *Client) WifiPlanning(ctx context.Context) (bool, error) {
	env, err := c.Get(ctx, "/wifi/planning/")
	if err != nil {
		return false, err
	}
	var p domain.WifiPlanning
	if err := env.DecodeResult(&p); err != nil {
		return false, err
	}
	return p.UsePlanning, nil
}

// SetWifiPlanning enables or disables the wifi schedule and returns the
// resulting state.
func (c *Client) SetWifiPlanning(ctx context.Context, on bool) (bool, error) {
	env, err := c.Put(ctx, "/wifi/planning/", domain.WifiPlanning{UsePlanning: on})
	if err != nil {
		return false, err
	}
	var p domain.WifiPlanning
	if err := env.DecodeResult(&p); err != nil {
		return false, err
	}
	return p.UsePlanning, nil
}
