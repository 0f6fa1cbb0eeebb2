package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fbxos/internal/fakebox"
	"github.com/koltyakov/fbxos/internal/settings"
)

const leaseMAC = "00:11:22:33:44:55"

// newBox starts a fake device and points the CLI at it through a fresh
// settings directory.
func newBox(t *testing.T, registered bool) (*fakebox.Server, string) {
	t.Helper()
	box := fakebox.New(t)
	dir := t.TempDir()
	t.Setenv("FBXOS_DIR", dir)
	t.Setenv("FBXOS_CONFIG", "")
	t.Setenv("FBXOS_DB", "")
	t.Setenv("FBXOS_RETRY_BACKOFF", "1ms")
	t.Setenv("FBXOS_LOG_LEVEL", "error")
	t.Setenv("FBXOS_MQTT_URL", "")
	t.Setenv("FBXOS_MQTT_TOPIC_PREFIX", "")

	st := settings.New(dir)
	require.NoError(t, st.SaveAddressing(box.Addressing()))
	if registered {
		require.NoError(t, st.SaveRegistration(box.Registration()))
	}
	return box, dir
}

func execute(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, stdio{in: strings.NewReader(stdin), out: &out, err: &errOut})
	return code, out.String(), errOut.String()
}

func handleLeases(box *fakebox.Server, comment string) {
	box.HandleResult(http.MethodGet, "/dhcp/static_lease/", []map[string]any{
		{"id": leaseMAC, "mac": leaseMAC, "comment": comment, "ip": "192.168.1.10", "hostname": "nas"},
	})
	box.HandleResult(http.MethodGet, "/dhcp/dynamic_lease/", []map[string]any{
		{"mac": leaseMAC, "hostname": "nas", "ip": "192.168.1.10", "is_static": true, "lease_remaining": 3600},
	})
}

func TestRunVersionAndHelp(t *testing.T) {
	code, out, _ := execute(t, "", "version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "fbxos "))

	code, out, _ = execute(t, "", "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "fbxos restore")

	code, _, errOut := execute(t, "")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage:")
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, errOut := execute(t, "", "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "frobnicate"`)
}

func TestListWithoutRegistrationIsAConfigurationError(t *testing.T) {
	box, _ := newBox(t, false)

	code, _, errOut := execute(t, "", "list", "static_lease")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "list error")
	assert.Zero(t, box.Sessions())
}

func TestRegisterSavesPendingRegistration(t *testing.T) {
	box, dir := newBox(t, false)

	code, out, errOut := execute(t, "", "register")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Authorization pending (track id 8)")

	reg, err := settings.New(dir).LoadRegistration()
	require.NoError(t, err)
	assert.Equal(t, 8, reg.TrackID)

	box.SetTrackStatus(8, "granted")
	code, out, errOut = execute(t, "", "register")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Already registered (track id 8)")

	code, out, errOut = execute(t, "", "status")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "granted")
}

func TestListUnknownKind(t *testing.T) {
	newBox(t, true)

	code, _, errOut := execute(t, "", "list", "printers")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown kind "printers"`)
}

func TestListJSON(t *testing.T) {
	box, _ := newBox(t, true)
	handleLeases(box, "nas")

	code, out, errOut := execute(t, "", "list", "static-leases", "--json")
	require.Equal(t, 0, code, errOut)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, leaseMAC, items[0]["id"])
	assert.Equal(t, "nas", items[0]["comment"])
	assert.Equal(t, 1, box.Sessions())
}

func TestListPlainWithFilter(t *testing.T) {
	box, _ := newBox(t, true)
	box.HandleResult(http.MethodGet, "/fw/redir/", []map[string]any{
		{"id": 1, "lan_ip": "192.168.1.10", "lan_port": 22, "wan_port_start": 2222, "wan_port_end": 2222, "ip_proto": "tcp", "enabled": true, "comment": "ssh"},
		{"id": 2, "lan_ip": "192.168.1.11", "lan_port": 80, "wan_port_start": 8080, "wan_port_end": 8080, "ip_proto": "tcp", "enabled": false, "comment": "web"},
	})

	code, out, errOut := execute(t, "", "list", "fw_redir", "--plain", "--where", "enabled=true")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id\t"))
	assert.Contains(t, lines[1], "ssh")
	assert.NotContains(t, out, "web")

	code, _, errOut = execute(t, "", "list", "fw_redir", "--where", "colour=red")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "no column colour")
}

func TestListSaveThenOffline(t *testing.T) {
	box, dir := newBox(t, true)
	handleLeases(box, "nas")

	code, _, errOut := execute(t, "", "list", "static_lease", "--save")
	require.Equal(t, 0, code, errOut)
	assert.FileExists(t, filepath.Join(dir, "fbxos.db"))

	box.HandleResult(http.MethodGet, "/dhcp/static_lease/", []map[string]any{})
	sessions := box.Sessions()

	code, out, errOut := execute(t, "", "list", "static_lease", "--offline", "--json")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, sessions, box.Sessions())

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "nas", items[0]["comment"])

	code, out, errOut = execute(t, "", "get", "static_lease", leaseMAC, "--offline", "--json")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"comment": "nas"`)

	code, _, _ = execute(t, "", "get", "static_lease", "aa:bb:cc:dd:ee:ff", "--offline")
	assert.Equal(t, 1, code)
}

func TestListSaveAndOfflineAreExclusive(t *testing.T) {
	newBox(t, true)

	code, _, errOut := execute(t, "", "list", "calls", "--save", "--offline")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "exclusive")
}

func TestListStaticLeaseDetailJoinsTimings(t *testing.T) {
	box, _ := newBox(t, true)
	handleLeases(box, "nas")

	code, out, errOut := execute(t, "", "list", "leases", "--json")
	require.Equal(t, 0, code, errOut)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.EqualValues(t, 3600, items[0]["lease_remaining"])
	assert.Equal(t, "nas", items[0]["comment"])
}

func TestGetDynamicLeaseFromListing(t *testing.T) {
	box, _ := newBox(t, true)
	handleLeases(box, "nas")

	code, out, errOut := execute(t, "", "get", "dynamic_lease", leaseMAC, "--json")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"hostname": "nas"`)

	code, _, _ = execute(t, "", "get", "dynamic_lease", "aa:bb:cc:dd:ee:ff")
	assert.Equal(t, 1, code)
}

func TestSetWritesOnlyChangedValues(t *testing.T) {
	box, _ := newBox(t, true)
	box.HandleResult(http.MethodGet, "/fw/redir/1", map[string]any{
		"id": 1, "lan_ip": "192.168.1.10", "lan_port": 22, "ip_proto": "tcp", "enabled": true, "comment": "ssh",
	})
	box.Handle(http.MethodPut, "/fw/redir/1", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		fakebox.WriteResult(w, map[string]any{
			"id": 1, "lan_ip": "192.168.1.10", "lan_port": 22, "ip_proto": "tcp", "enabled": true, "comment": body["comment"],
		})
	})

	code, out, errOut := execute(t, "", "set", "fw_redir", "1", "comment", "ssh")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `already "ssh"`)
	assert.Zero(t, box.Hits(http.MethodPut, "/fw/redir/1"))

	code, out, errOut = execute(t, "", "set", "fw_redir", "1", "comment", "bastion")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `comment set to "bastion"`)
	bodies := box.Bodies(http.MethodPut, "/fw/redir/1")
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"comment": "bastion"}`, string(bodies[0]))

	code, _, errOut = execute(t, "", "set", "fw_redir", "1", "hostname", "x")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "not writable")
}

func TestRestoreAppliesMirroredValues(t *testing.T) {
	box, _ := newBox(t, true)
	handleLeases(box, "old")
	box.Handle(http.MethodPut, "/dhcp/static_lease/"+leaseMAC, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		fakebox.WriteResult(w, map[string]any{"id": leaseMAC, "mac": leaseMAC, "comment": body["comment"], "ip": "192.168.1.10"})
	})

	code, _, errOut := execute(t, "", "list", "static_lease", "--save")
	require.Equal(t, 0, code, errOut)

	handleLeases(box, "new")

	code, out, errOut := execute(t, "n\n", "restore", "static_lease")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `update static_lease `+leaseMAC)
	assert.Contains(t, out, "0 applied, 1 declined")
	assert.Zero(t, box.Hits(http.MethodPut, "/dhcp/static_lease/"+leaseMAC))

	code, out, errOut = execute(t, "", "restore", "static_lease", "--yes")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "1 applied")
	bodies := box.Bodies(http.MethodPut, "/dhcp/static_lease/"+leaseMAC)
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"comment": "old"}`, string(bodies[0]))
}

func TestRestoreNeedsAMirror(t *testing.T) {
	newBox(t, true)

	code, _, errOut := execute(t, "", "restore", "fw_redir", "--yes")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "fbxos list fw_redir --save")
}

func TestWifiCommands(t *testing.T) {
	box, _ := newBox(t, true)
	box.HandleResult(http.MethodGet, "/wifi/config/", map[string]any{"enabled": true})
	box.HandleResult(http.MethodPut, "/wifi/config/", map[string]any{"enabled": false})
	box.HandleResult(http.MethodGet, "/wifi/planning/", map[string]any{"use_planning": true})

	code, out, errOut := execute(t, "", "wifi")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "wifi: on\n", out)

	code, out, errOut = execute(t, "", "wifi", "off")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "wifi: off\n", out)

	code, out, errOut = execute(t, "", "wifi", "planning", "status")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "wifi planning: on\n", out)

	code, _, _ = execute(t, "", "wifi", "toggle")
	assert.Equal(t, 2, code)
}

func TestRebootAsksFirst(t *testing.T) {
	box, _ := newBox(t, true)
	box.HandleResult(http.MethodPost, "/system/reboot/", nil)

	code, out, _ := execute(t, "no\n", "reboot")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Reboot aborted")
	assert.Zero(t, box.Hits(http.MethodPost, "/system/reboot/"))

	code, out, errOut := execute(t, "", "reboot", "--yes")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Reboot requested")
	assert.Equal(t, 1, box.Hits(http.MethodPost, "/system/reboot/"))
}

func TestSystemJSON(t *testing.T) {
	box, _ := newBox(t, true)
	box.HandleResult(http.MethodGet, "/system/", map[string]any{"firmware_version": "4.8.0", "uptime_val": 1200})

	code, out, errOut := execute(t, "", "system", "--json")
	require.Equal(t, 0, code, errOut)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "4.8.0", info["firmware_version"])
}

func TestWatchReadsBrokerFromConfigFile(t *testing.T) {
	_, dir := newBox(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("mqtt:\n  url: not-a-broker\n"), 0o600))

	code, _, errOut := execute(t, "", "watch")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `invalid MQTT broker URL "not-a-broker"`)

	t.Setenv("FBXOS_MQTT_URL", "also-not-a-broker")
	code, _, errOut = execute(t, "", "watch")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `invalid MQTT broker URL "also-not-a-broker"`)
}
