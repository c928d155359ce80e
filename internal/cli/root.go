// Package cli is meetingctl, the operator-facing counterpart to cmd/server:
// a thin HTTP client wrapped in cobra commands for the interventions an
// operator needs when the automatic pipeline isn't enough — listing and
// manually requeuing meetings stuck in a transient state. Grounded on the
// teacher's internal/cli package (cobra root command, viper-backed config
// persisted to a dotfile in $HOME), retargeted from folder-watching upload
// to the meeting lifecycle surface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meetingctl",
	Short: "Operator CLI for the meeting transcription and correction pipeline",
	Long:  `meetingctl talks to a running meetcorrect server to inspect and requeue stuck meetings.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitConfig)
}
