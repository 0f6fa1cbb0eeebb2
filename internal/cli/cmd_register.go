package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/koltyakov/fbxos/internal/domain"
)

func runRegister(ctx context.Context, args []string, sio stdio) int {
	wait := false
	interval := time.Second
	a, _, code := newApp("register", args, sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&wait, "wait", wait, "Wait until the request is confirmed on the device")
		fs.DurationVar(&interval, "interval", interval, "Polling interval while waiting")
	})
	if code >= 0 {
		return code
	}

	c, err := a.client(ctx, false)
	if err != nil {
		return a.fail(err)
	}
	prev, _ := a.settings.LoadRegistration()
	reg, err := c.Register(ctx)
	if err != nil && !errors.Is(err, domain.ErrRegistrationPending) {
		return a.fail(err)
	}
	if err == nil && reg == prev {
		fmt.Fprintf(sio.out, "Already registered (track id %d)\n", reg.TrackID)
		return 0
	}
	if reg != prev {
		if err := a.settings.SaveRegistration(reg); err != nil {
			return a.fail(err)
		}
		a.log.Debug("registration saved", "path", a.settings.RegistrationPath())
	}

	if !wait {
		fmt.Fprintf(sio.out, "Authorization pending (track id %d): confirm it on the device, then run `fbxos register --wait`\n", reg.TrackID)
		return 0
	}
	fmt.Fprintf(sio.out, "Confirm the request on the device (track id %d)...\n", reg.TrackID)
	if err := c.WaitForGrant(ctx, reg.TrackID, interval); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(sio.out, "Registered (track id %d)\n", reg.TrackID)
	return 0
}

func runStatus(ctx context.Context, args []string, sio stdio) int {
	a, _, code := newApp("status", args, sio, nil)
	if code >= 0 {
		return code
	}

	rows := [][2]string{{"settings", a.settings.Dir}, {"mirror", a.cfg.DBPath}}
	addr, addrErr := a.settings.LoadAddressing()
	if addrErr != nil {
		rows = append(rows, [2]string{"device", "unknown (" + domain.HintDiscover + ")"})
	} else {
		rows = append(rows, [2]string{"device", addr.DeviceAddress()}, [2]string{"api", addr.APIBase()})
	}
	reg, regErr := a.settings.LoadRegistration()
	if regErr != nil {
		rows = append(rows, [2]string{"registration", "none (" + domain.HintRegister + ")"})
	} else {
		rows = append(rows, [2]string{"track id", strconv.Itoa(reg.TrackID)})
	}
	if addrErr == nil && regErr == nil {
		c, err := a.client(ctx, true)
		if err != nil {
			return a.fail(err)
		}
		status, err := c.RegistrationStatus(ctx, reg.TrackID)
		if err != nil {
			return a.fail(err)
		}
		rows = append(rows, [2]string{"pairing", status})
	}
	renderPairs(sio.out, rows)
	return 0
}

func runLogin(ctx context.Context, args []string, sio stdio) int {
	a, _, code := newApp("login", args, sio, nil)
	if code >= 0 {
		return code
	}
	c, err := a.client(ctx, true)
	if err != nil {
		return a.fail(err)
	}
	if err := c.Login(ctx); err != nil {
		return a.fail(err)
	}
	defer a.logout(c)

	perms := c.Permissions()
	names := make([]string, 0, len(perms))
	for name, ok := range perms {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	renderPairs(sio.out, [][2]string{
		{"device", c.DeviceAddress()},
		{"session", c.State().String()},
		{"permissions", strings.Join(names, ", ")},
	})
	if !perms.Has("settings") {
		fmt.Fprintln(sio.err, "warning: the app lacks the settings permission; changes will be refused (grant it in the device access management)")
	}
	return 0
}

func runDiscover(ctx context.Context, args []string, sio stdio) int {
	dryRun := false
	a, _, code := newApp("discover", args, sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&dryRun, "dry-run", dryRun, "Print the result without caching it")
	})
	if code >= 0 {
		return code
	}
	res, err := a.discoverer().Discover(ctx)
	if err != nil {
		return a.fail(err)
	}
	addr := res.Addressing()
	rows := [][2]string{
		{"method", string(res.Method)},
		{"device", addr.DeviceAddress()},
		{"api", addr.APIBase()},
		{"api version", res.Info.APIVersion},
	}
	if res.Info.DeviceName != "" {
		rows = append(rows, [2]string{"name", res.Info.DeviceName})
	}
	renderPairs(sio.out, rows)
	if dryRun {
		return 0
	}
	if err := a.settings.SaveAddressing(addr); err != nil {
		return a.fail(err)
	}
	a.log.Info("addressing saved", "path", a.settings.AddressingPath())
	return 0
}
