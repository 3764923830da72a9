package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lgn-platform/lgn-api/internal/api"
)

// Set with -ldflags "-X github.com/lgn-platform/lgn-api/cmd/server/cmd.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// buildInfo blanks the "unknown" placeholders so the HTTP version endpoint
// can fall back to the VCS stamp in the binary.
func buildInfo() api.BuildInfo {
	known := func(v string) string {
		if v == "unknown" {
			return ""
		}
		return v
	}
	return api.BuildInfo{Version: Version, GitCommit: known(GitCommit), BuildDate: known(BuildDate)}
}

func newVersionCommand() *cobra.Command {
	var short, asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(out, Version)
				return err
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"version":    Version,
					"git_commit": GitCommit,
					"build_date": BuildDate,
					"go_version": runtime.Version(),
					"platform":   runtime.GOOS + "/" + runtime.GOARCH,
				})
			}
			_, err := fmt.Fprintf(out, "LGN API Server\nVersion:    %s\nGit commit: %s\nBuild date: %s\nGo version: %s\nPlatform:   %s/%s\n",
				Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	cmd.MarkFlagsMutuallyExclusive("short", "json")
	return cmd
}
