package client

import "context"

// Reboot asks the device to restart now.
func (c *Client) Reboot(ctx context.Context) error {
	_, err := c.Post(ctx, "/system/reboot/", nil)
	return err
}

// SystemInfo returns the raw /system/ result (firmware, uptime, sensors).
func (c *Client) SystemInfo(ctx context.Context) (map[string]any, error) {
	env, err := c.Get(ctx, "/system/")
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := env.DecodeResult(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// StorageDisks returns the raw /storage/disk/ listing.
func (c *Client) StorageDisks(ctx context.Context) ([]map[string]any, error) {
	env, err := c.Get(ctx, "/storage/disk/")
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := env.DecodeResult(&out); err != nil {
		return nil, err
	}
	return out, nil
}
