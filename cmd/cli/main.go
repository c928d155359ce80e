// Command meetingctl is the operator CLI wrapping internal/cli.
package main

import "meetcorrect/internal/cli"

func main() {
	cli.Execute()
}
