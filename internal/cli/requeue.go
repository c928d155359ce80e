package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue [meeting-id]",
	Short: "Manually revert a meeting stuck in a transient state",
	Args:  cobra.ExactArgs(1),
	Run:   runRequeue,
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	meetingID := args[0]
	if err := RequeueMeeting(meetingID); err != nil {
		log.Fatalf("Requeue failed: %v", err)
	}
	fmt.Printf("Meeting %s requeued.\n", meetingID)
}
