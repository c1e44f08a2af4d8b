package main

import (
	"fmt"

	"github.com/danmuck/tdmalink/internal/app"
	"github.com/danmuck/tdmalink/internal/config"
	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/spf13/cobra"
)

type templateOptions struct {
	role     string
	kind     string
	endpoint string
}

func (o *templateOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.role, "role", "topside", "participant role: topside|vehicle")
	cmd.Flags().StringVar(&o.kind, "driver", "DRIVER_UDP", "driver kind the template targets")
	cmd.Flags().StringVar(&o.endpoint, "endpoint", "", "serial device for modem drivers")
}

func (o *templateOptions) defaults() (config.Config, error) {
	role, err := app.ParseRole(o.role)
	if err != nil {
		return config.Config{}, err
	}
	kind, err := driver.ParseKind(o.kind)
	if err != nil {
		return config.Config{}, err
	}
	return config.Default(role, kind, o.endpoint), nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print, write or validate tdmalink TOML configs",
	}
	cmd.AddCommand(newConfigPrintCmd(), newConfigWriteCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigPrintCmd() *cobra.Command {
	opts := &templateOptions{}
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the built-in configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.defaults()
			if err != nil {
				return err
			}
			b, err := config.Render(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}

func newConfigWriteCmd() *cobra.Command {
	opts := &templateOptions{}
	var force bool
	cmd := &cobra.Command{
		Use:   "write <path>",
		Short: "Write the built-in configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.defaults()
			if err != nil {
				return err
			}
			if err := config.WriteTemplate(args[0], cfg, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", cfg.Role, args[0])
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	opts := &templateOptions{}
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Load a config over the built-in defaults and check it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := opts.defaults()
			if err != nil {
				return err
			}
			cfg, err := config.Load(args[0], base)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s (%s, %d slots)\n",
				cfg.Role, args[0], cfg.Kind, len(cfg.MAC.Slots))
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}
