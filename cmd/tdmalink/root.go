package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/tdmalink/internal/app"
	"github.com/danmuck/tdmalink/internal/config"
	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/driver/factory"
	"github.com/danmuck/tdmalink/internal/logging"
	"github.com/danmuck/tdmalink/internal/node"
	"github.com/spf13/cobra"
)

type options struct {
	role       string
	configPath string
	tick       time.Duration
	statusAddr string
	linkErrors string
	logLevel   string
	runFor     time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "tdmalink <endpoint> <driver_kind> <log_file>",
		Short: "Run one end of a TDMA-scheduled topside/vehicle acoustic link",
		Long: `tdmalink runs the topside or vehicle side of a two-party link over a fixed
TDMA schedule. endpoint is the modem's serial device (ignored by the UDP and
loopback drivers), driver_kind is one of the DRIVER_* names and log_file
receives JSON logs. DRIVER_LOOPBACK runs both roles in this process.`,
		Args:          cobra.ExactArgs(3),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := driver.ParseKind(args[1])
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Invalid driver kind %s\nValid options are:\n%s\n", args[1], validKinds())
				return err
			}
			cmd.SilenceUsage = true
			cfg, err := resolveConfig(cmd, opts, kind, args[0], args[2])
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts.runFor)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.role, "role", "topside", "participant role: topside|vehicle")
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML config overlaid on the built-in schedule")
	flags.DurationVar(&opts.tick, "tick", 0, "loop tick interval (default 100ms)")
	flags.StringVar(&opts.statusAddr, "status-addr", "", "serve /health, /status and /metrics on this address")
	flags.StringVar(&opts.linkErrors, "link-errors", "", "on transient link faults: continue|fail")
	flags.StringVar(&opts.logLevel, "log-level", "", "trace|debug|info|warn|error")
	flags.DurationVar(&opts.runFor, "run-for", 0, "stop after this long (0 runs until interrupted)")

	cmd.AddCommand(newConfigCmd())
	return cmd
}

func validKinds() string {
	kinds := factory.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return strings.Join(names, "\n")
}

// resolveConfig layers defaults, the config file, then explicit flags.
func resolveConfig(cmd *cobra.Command, opts *options, kind driver.Kind, endpoint, logFile string) (config.Config, error) {
	role, err := app.ParseRole(opts.role)
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.Default(role, kind, endpoint)
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath, cfg); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("role") {
		cfg.Role = role
		cfg.MAC.ModemID = role.ID()
		cfg.Driver.ModemID = role.ID()
	}
	cfg.Kind = kind
	if strings.TrimSpace(endpoint) != "" {
		cfg.Driver.Endpoint = endpoint
	}
	cfg.Log.File = logFile
	if flags.Changed("tick") {
		cfg.Node.TickInterval = opts.tick
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = opts.statusAddr
	}
	if flags.Changed("link-errors") {
		p, err := node.ParseLinkErrorPolicy(opts.linkErrors)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Node.LinkErrors = p
	}
	if flags.Changed("log-level") {
		lvl, ok := logging.ParseLevel(opts.logLevel)
		if !ok {
			return config.Config{}, fmt.Errorf("unknown log level %q", opts.logLevel)
		}
		cfg.Log.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
