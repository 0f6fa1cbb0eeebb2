// Package cli implements the fbxos command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Run is the main CLI entry point. It parses args and dispatches to the
// appropriate subcommand, returning a process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loadFbxosEnvFromDotEnv(".env")
	return run(ctx, args, stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
}

func run(ctx context.Context, args []string, sio stdio) int {
	if len(args) == 0 {
		printUsage(sio.err)
		return 2
	}

	switch args[0] {
	case "register":
		return runRegister(ctx, args[1:], sio)
	case "status":
		return runStatus(ctx, args[1:], sio)
	case "login":
		return runLogin(ctx, args[1:], sio)
	case "discover":
		return runDiscover(ctx, args[1:], sio)
	case "list", "ls":
		return runList(ctx, args[1:], sio)
	case "get":
		return runGet(ctx, args[1:], sio)
	case "set":
		return runSet(ctx, args[1:], sio)
	case "restore":
		return runRestore(ctx, args[1:], sio)
	case "wifi":
		return runWifi(ctx, args[1:], sio)
	case "reboot":
		return runReboot(ctx, args[1:], sio)
	case "system":
		return runSystem(ctx, args[1:], sio)
	case "storage":
		return runStorage(ctx, args[1:], sio)
	case "watch":
		return runWatch(ctx, args[1:], sio)
	case "serve":
		return runServe(ctx, args[1:], sio)
	case "version", "--version", "-v":
		printVersion(sio.out)
		return 0
	case "-h", "--help", "help":
		printUsage(sio.out)
		return 0
	default:
		fmt.Fprintf(sio.err, "unknown command %q\n\n", args[0])
		printUsage(sio.err)
		return 2
	}
}
