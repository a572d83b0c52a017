// Package cmd provides the command-line interface for codewatch.
//
// Configuration is layered: command-line flags take precedence over
// CODEWATCH_ environment variables, which take precedence over the
// .codewatch.yml file. Three settings are read from the raw environment
// because external tooling sets them: MC_MAX_BUILDS, IN_K8, and
// PORTAL_HTTPS.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "codewatch",
	Short: "Workspace project lifecycle and build scheduling service",
	Long: `codewatch manages developer-workspace projects: it admits projects,
schedules their builds under a concurrency cap, supervises a per-project
file watcher, and reacts to file changes with automatic rebuilds.

Quick start:
  codewatch serve                 Start the lifecycle service
  codewatch watch <args>          Run a project watcher child (internal)`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .codewatch.yml)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// bindFlags wires a set of command flags into viper config keys.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if f := fs.Lookup(flag); f != nil {
			viper.BindPFlag(key, f)
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".codewatch")
	}

	viper.SetEnvPrefix("CODEWATCH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file is not fatal; defaults apply.
	_ = viper.ReadInConfig()
}
