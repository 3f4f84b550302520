package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ksmigrate version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ksmigrate "+version)
	},
}

func getVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	return formatVersion(info.Main.Version, info.Settings)
}

// formatVersion renders the module version with the VCS revision it was
// built from, e.g. "v1.2.0 (3f2a9c1 modified)".
func formatVersion(module string, settings []debug.BuildSetting) string {
	if module == "" || module == "(devel)" {
		module = "dev"
	}

	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}

	revision := vcs["vcs.revision"]
	if revision == "" {
		return module
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if vcs["vcs.modified"] == "true" {
		revision += " modified"
	}
	out := fmt.Sprintf("%s (%s)", module, revision)
	if t := vcs["vcs.time"]; t != "" {
		out += " built " + t
	}
	return out
}
