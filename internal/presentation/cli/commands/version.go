package commands

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// currentVersion combines the ldflags values with the VCS stamp Go embeds
// in the binary. ldflags win when set.
func currentVersion() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}

			info := currentVersion()
			switch {
			case short && f.IsJSON():
				return f.JSON(map[string]string{"version": info.Version})
			case short:
				return f.Println("%s", info.Version)
			case f.IsJSON():
				return f.JSON(info)
			}

			commit := info.GitCommit
			if info.Modified {
				commit += " (modified)"
			}
			_ = f.Header("scribesync " + info.Version)
			_ = f.Item("Commit", commit)
			_ = f.Item("Built", info.BuildDate)
			return f.Item("Go", info.GoVersion+" "+info.Platform)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	return cmd
}
