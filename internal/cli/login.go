package cli

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginServerURL string
	loginUsername  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against a meetcorrect server",
	Run:   runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginServerURL, "server", "s", "http://localhost:8080", "meetcorrect server URL")
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "operator username")
}

func runLogin(cmd *cobra.Command, args []string) {
	reader := bufio.NewReader(os.Stdin)

	username := loginUsername
	if username == "" {
		fmt.Print("Username: ")
		line, _ := reader.ReadString('\n')
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatalf("Failed to read password: %v", err)
	}

	if err := Login(loginServerURL, username, string(passwordBytes)); err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	fmt.Println("Logged in. Token saved to ~/.meetingctl.yaml")
}
