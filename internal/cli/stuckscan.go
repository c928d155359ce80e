package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var stuckScanCmd = &cobra.Command{
	Use:   "stuck-scan",
	Short: "List meetings currently parked in a transient state",
	Run:   runStuckScan,
}

func init() {
	rootCmd.AddCommand(stuckScanCmd)
}

func runStuckScan(cmd *cobra.Command, args []string) {
	transcribing, correcting, err := ListStuck()
	if err != nil {
		log.Fatalf("Stuck scan failed: %v", err)
	}

	if len(transcribing) == 0 && len(correcting) == 0 {
		fmt.Println("No meetings currently stuck.")
		return
	}

	printGroup := func(label string, meetings []StuckMeeting) {
		if len(meetings) == 0 {
			return
		}
		fmt.Printf("%s:\n", label)
		for _, m := range meetings {
			fmt.Printf("  %s  %-30s since %s\n", m.ID, m.Title, m.StateChangedAt)
		}
	}

	printGroup("TRANSCRIBING", transcribing)
	printGroup("CORRECTING", correcting)
}
