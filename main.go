// printbrowsed keeps the local print service's queue list in sync with the
// printers the network advertises: DNS-SD records, legacy CUPS browse
// packets, and polled upstream servers all feed one catalogue, and a
// reconciler drives the corresponding local queues.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/kardianos/service"

	"printbrowsed/browse"
	"printbrowsed/cups"
	"printbrowsed/logger"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// cliOptions carries the command-line overrides.
type cliOptions struct {
	debug bool

	autoShutdownSet bool
	autoShutdown    browse.AutoShutdownMode

	autoShutdownTimeoutSet bool
	autoShutdownTimeout    int
}

// parseArgs handles the daemon's small flag surface: -d/--debug/-v* for
// verbosity and the two auto-shutdown overrides, each accepting "=value"
// or a separate argument.
func parseArgs(args []string) (cliOptions, error) {
	var cli cliOptions

	takeValue := func(arg string, i *int) (string, error) {
		if j := strings.IndexByte(arg, '='); j >= 0 {
			return arg[j+1:], nil
		}
		*i++
		if *i >= len(args) {
			return "", fmt.Errorf("%s requires a value", arg)
		}
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-d" || arg == "--debug":
			cli.debug = true
		case strings.HasPrefix(arg, "-v") && strings.Trim(arg, "-v") == "":
			cli.debug = true
		case arg == "--autoshutdown" || strings.HasPrefix(arg, "--autoshutdown="):
			v, err := takeValue(arg, &i)
			if err != nil {
				return cli, err
			}
			mode, err := parseAutoShutdown(v)
			if err != nil {
				return cli, fmt.Errorf("--autoshutdown: %w", err)
			}
			cli.autoShutdownSet = true
			cli.autoShutdown = mode
		case arg == "--autoshutdown-timeout" || strings.HasPrefix(arg, "--autoshutdown-timeout="):
			v, err := takeValue(arg, &i)
			if err != nil {
				return cli, err
			}
			secs, err := strconv.Atoi(v)
			if err != nil || secs < 0 {
				return cli, fmt.Errorf("--autoshutdown-timeout: need a non-negative integer, got %q", v)
			}
			cli.autoShutdownTimeoutSet = true
			cli.autoShutdownTimeout = secs
		case arg == "--service":
			// Accepted and skipped together with the argument after it;
			// nothing else reads either of them.
			i++
		default:
			return cli, fmt.Errorf("unknown argument %q", arg)
		}
	}
	return cli, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := logger.INFO
	if cli.debug {
		level = logger.DEBUG
	}
	log := logger.New(level, logDirectory(), 1000)
	defer log.Close()
	browse.SetLogger(log)

	opts := browse.DefaultOptions()
	if path := findConfigFile(); path != "" {
		warnings, err := loadConfig(path, &opts)
		if err != nil {
			log.Error("cannot read configuration file", "path", path, "err", err)
			return 1
		}
		log.Info("configuration loaded", "path", path)
		for _, w := range warnings {
			log.Warn(w.Msg, "path", path, "line", w.Line)
		}
	}
	if cli.autoShutdownSet {
		opts.AutoShutdown = cli.autoShutdown
	}
	if cli.autoShutdownTimeoutSet {
		opts.AutoShutdownTimeout = secondsToDuration(cli.autoShutdownTimeout)
	}

	// Pin CUPS_SERVER so client-side overrides cannot redirect our RPCs.
	socket := opts.DomainSocket
	if socket == "" {
		socket = defaultDomainSocket
	}
	server := cups.PinServer(socket)
	os.Setenv("CUPS_SERVER", server)

	var local *cups.Client
	if server == "localhost" {
		local = cups.New("localhost", 631)
	} else {
		local = cups.NewSocket(server)
	}

	daemon := browse.New(opts, local)

	if service.Interactive() {
		return runDaemon(daemon, log)
	}
	return runService(daemon, log)
}

// runDaemon wires signals into the loop and blocks until shutdown.
func runDaemon(daemon *browse.Daemon, log *logger.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 4)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigc {
			switch sig {
			case syscall.SIGTERM:
				daemon.HandleSignal("term")
			case syscall.SIGINT:
				daemon.HandleSignal("int")
			case syscall.SIGUSR1:
				daemon.HandleSignal("usr1")
			case syscall.SIGUSR2:
				daemon.HandleSignal("usr2")
			}
		}
	}()
	defer signal.Stop(sigc)

	err := daemon.Run(ctx)
	if errors.Is(err, browse.ErrNothingToDo) {
		log.Info("nothing to do, exiting")
		return 0
	}
	if err != nil {
		log.Error("daemon failed", "err", err)
		return 1
	}
	return 0
}

// logDirectory picks the log location: the system directory when we can
// write there, otherwise the user's state directory.
func logDirectory() string {
	system := "/var/log/printbrowsed"
	if err := os.MkdirAll(system, 0o755); err == nil {
		return system
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.local/state/printbrowsed"
	}
	return ""
}
