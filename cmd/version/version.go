package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/orangeshare/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of orangeshare.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("orangeshare version: %s\n", version.Version)
		},
	}
}
