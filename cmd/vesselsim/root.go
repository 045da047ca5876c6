package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/got-is-bad-at-git/Kerbalism/internal/config"
)

// cli carries state shared by every subcommand.
type cli struct {
	v          *viper.Viper
	configPath string
}

func newRootCommand() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "vesselsim",
		Short:         "Vessel environment and relay network simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringP("scenario", "s", "", "path to a YAML scenario file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	c.bind(flags, "scenario", "scenario")
	c.bind(flags, "logging.level", "log-level")
	c.bind(flags, "logging.format", "log-format")

	root.AddCommand(c.newSimulateCommand(), c.newInspectCommand())
	return root
}

// bind panics on an unknown flag name; only called with literals above.
func (c *cli) bind(flags *pflag.FlagSet, key, name string) {
	if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(err)
	}
}

func (c *cli) load() (*config.Config, error) {
	return config.Load(c.v, c.configPath)
}
