package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print version information",
	Long:    `Print the warden version, commit, Go version and platform.`,
	Example: `  warden version -o json`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return GetCmdContext(cmd).Fmt.Print(versionInfo{version.Get()})
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.GroupID = "config"
	rootCmd.AddCommand(versionCmd)
}

type versionInfo struct {
	version.Info
}

func (v versionInfo) RenderText(w io.Writer) error {
	out(w, "Version:  %s\n", v.Version)
	if v.Commit != "" {
		out(w, "Commit:   %s\n", v.Commit)
	}
	if v.BuildDate != "" {
		out(w, "Built:    %s\n", v.BuildDate)
	}
	out(w, "Go:       %s\n", v.GoVersion)
	out(w, "Platform: %s\n", v.Platform)
	return nil
}
