package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/koltyakov/fbxos/internal/client"
)

func runWifi(ctx context.Context, args []string, sio stdio) int {
	a, rest, code := newApp("wifi", permuteArgs(args), sio, nil)
	if code >= 0 {
		return code
	}
	planning := len(rest) > 0 && rest[0] == "planning"
	if planning {
		rest = rest[1:]
	}
	action := "status"
	if len(rest) == 1 {
		action = rest[0]
	} else if len(rest) > 1 {
		return a.fail(usageError("usage: fbxos wifi [planning] [on|off|status]"))
	}
	if action != "on" && action != "off" && action != "status" {
		return a.fail(usageError(fmt.Sprintf("unknown wifi action %q", action)))
	}

	c, err := a.client(ctx, true)
	if err != nil {
		return a.fail(err)
	}
	defer a.logout(c)

	var state bool
	switch {
	case planning && action == "status":
		state, err = c.WifiPlanning(ctx)
	case planning:
		state, err = c.SetWifiPlanning(ctx, action == "on")
	case action == "status":
		state, err = c.WifiStatus(ctx)
	default:
		state, err = c.SetWifi(ctx, action == "on")
	}
	if err != nil {
		return a.fail(err)
	}
	label := "wifi"
	if planning {
		label = "wifi planning"
	}
	fmt.Fprintf(sio.out, "%s: %s\n", label, onOff(state))
	return 0
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func runReboot(ctx context.Context, args []string, sio stdio) int {
	yes := false
	a, rest, code := newApp("reboot", permuteArgs(args, "yes"), sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&yes, "yes", yes, "Do not ask for confirmation")
	})
	if code >= 0 {
		return code
	}
	if len(rest) != 0 {
		return a.fail(usageError("usage: fbxos reboot [--yes]"))
	}
	if !yes {
		ok, err := confirm(ctx, sio.out, bufio.NewReader(sio.in), "Reboot the device")
		if err != nil {
			return a.fail(err)
		}
		if !ok {
			fmt.Fprintln(sio.out, "Reboot aborted")
			return 0
		}
	}
	c, err := a.client(ctx, true)
	if err != nil {
		return a.fail(err)
	}
	if err := c.Reboot(ctx); err != nil {
		return a.fail(err)
	}
	// The session dies with the device; no logout.
	fmt.Fprintln(sio.out, "Reboot requested")
	return 0
}

func runSystem(ctx context.Context, args []string, sio stdio) int {
	asJSON := false
	a, rest, code := newApp("system", permuteArgs(args, "json"), sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&asJSON, "json", asJSON, "Print JSON")
	})
	if code >= 0 {
		return code
	}
	if len(rest) != 0 {
		return a.fail(usageError("usage: fbxos system [--json]"))
	}
	return withClient(ctx, a, func(c *client.Client) error {
		info, err := c.SystemInfo(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return renderJSON(sio.out, info)
		}
		renderMap(sio.out, info)
		return nil
	})
}

func runStorage(ctx context.Context, args []string, sio stdio) int {
	asJSON := false
	a, rest, code := newApp("storage", permuteArgs(args, "json"), sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&asJSON, "json", asJSON, "Print JSON")
	})
	if code >= 0 {
		return code
	}
	if len(rest) != 0 {
		return a.fail(usageError("usage: fbxos storage [--json]"))
	}
	return withClient(ctx, a, func(c *client.Client) error {
		disks, err := c.StorageDisks(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			if disks == nil {
				disks = []map[string]any{}
			}
			return renderJSON(sio.out, disks)
		}
		if len(disks) == 0 {
			fmt.Fprintln(sio.out, "No disks")
			return nil
		}
		sort.SliceStable(disks, func(i, j int) bool {
			return displayValue(disks[i]["id"]) < displayValue(disks[j]["id"])
		})
		for i, d := range disks {
			if i > 0 {
				fmt.Fprintln(sio.out)
			}
			renderMap(sio.out, d)
		}
		return nil
	})
}

// withClient runs fn with an authenticated client and closes the session
// afterwards.
func withClient(ctx context.Context, a *app, fn func(*client.Client) error) int {
	c, err := a.client(ctx, true)
	if err != nil {
		return a.fail(err)
	}
	defer a.logout(c)
	if err := fn(c); err != nil {
		return a.fail(err)
	}
	return 0
}
