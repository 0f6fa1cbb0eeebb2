package cli

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/koltyakov/fbxos/internal/versionutil"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `fbxos - FreeboxOS command-line client

Authenticate to a Freebox on the local network, read and change its
settings, and keep an offline SQLite mirror of its tables.

Usage:
  fbxos register [--wait]               Pair this app with the device (confirm on the box)
  fbxos status                          Show addressing, pairing and session state
  fbxos login                           Open and close a session to check credentials
  fbxos discover                        Find the device (mDNS, then HTTP fallback)
  fbxos list <kind> [--save] [--offline] [--json]
                                        List a table from the device or the mirror
  fbxos get <kind> <id> [--offline] [--json]
                                        Show one object
  fbxos set <kind> <id> <field> <value> Change one writable field
  fbxos restore <kind> [--yes]          Write mirrored values back to the device
  fbxos wifi on|off|status              Toggle or show the wifi radio
  fbxos wifi planning on|off|status     Toggle or show the wifi schedule
  fbxos reboot                          Restart the device
  fbxos system                          Show system information
  fbxos storage                         Show attached disks
  fbxos watch [--mqtt URL]              Follow LAN host events, optionally to MQTT
  fbxos serve [--listen ADDR] [--pprof] Serve the mirror as read-only JSON
  fbxos version                         Print version
  fbxos help                            Show this help

Kinds:
  calls, static-leases, leases (static leases with lease times),
  dynamic-leases, fw-redirs, contacts, groups, or any table name.

Common flags:
  --dir DIR             Settings directory (default ~/.fbxos)
  --db PATH             Mirror database (default <dir>/fbxos.db)
  --config FILE         YAML config file (default <dir>/config.yml)
  --log-level LEVEL     debug|info|warn|error
  --timeout D           Per-request timeout (default 30s)
  --retry-backoff D     Wait before re-authenticating after HTTP 403 (default 15s)
  --retry-attempts N    Attempts for a request rejected with HTTP 403 (default 5)

Environment Variables:
  FBXOS_DIR, FBXOS_DB, FBXOS_CONFIG, FBXOS_LOG_LEVEL, FBXOS_APP_ID,
  FBXOS_APP_NAME, FBXOS_DEVICE_NAME, FBXOS_CA_FILE, FBXOS_FALLBACK_URL,
  FBXOS_TIMEOUT, FBXOS_RETRY_BACKOFF, FBXOS_RETRY_ATTEMPTS,
  FBXOS_MDNS_TIMEOUT, FBXOS_MQTT_URL, FBXOS_MQTT_TOPIC_PREFIX
  A .env file in the working directory is read for FBXOS_* keys.`)
}

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	if Version == "dev" {
		if desc, err := exec.Command("git", "describe", "--tags", "--always").Output(); err == nil {
			if v := strings.TrimSpace(string(desc)); v != "" {
				Version = v + "-dev"
			}
		}
	}
	if Version != "dev" {
		Version = versionutil.EnsureVPrefix(Version)
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, "fbxos", Version)
}
