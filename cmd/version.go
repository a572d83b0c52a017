package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Build metadata, set via -ldflags at release time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type versionInfo struct {
	Version string `yaml:"version"`
	Commit  string `yaml:"commit"`
	Built   string `yaml:"built"`
	Go       string `yaml:"go"`
	Platform string `yaml:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:  version,
			Commit:   commit,
			Built:    date,
			Go:       runtime.Version(),
			Platform: runtime.GOOS + "/" + runtime.GOARCH,
		}
		format, _ := cmd.Flags().GetString("format")
		if format == "yaml" {
			return yaml.NewEncoder(os.Stdout).Encode(info)
		}
		fmt.Printf("codewatch %s\n", info.Version)
		fmt.Printf("  commit:   %s\n", info.Commit)
		fmt.Printf("  built:    %s\n", info.Built)
		fmt.Printf("  go:       %s\n", info.Go)
		fmt.Printf("  platform: %s\n", info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().String("format", "text", "output format (text, yaml)")
	rootCmd.AddCommand(versionCmd)
}
