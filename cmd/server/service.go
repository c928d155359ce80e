package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program wraps runServe so it can be supervised by an OS service manager
// (systemd, launchd, Windows SCM via kardianos/service), ported from the
// teacher's folder-watcher service wrapper and retargeted at the HTTP
// daemon's own bring-up/shutdown sequence.
type program struct {
	cancel context.CancelFunc
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go runServe(ctx)
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

func serviceConfig() *service.Config {
	ex, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}

	return &service.Config{
		Name:        "meetcorrect",
		DisplayName: "Meeting Transcription & Correction Pipeline",
		Description: "Runs the meeting transcription/correction pipeline daemon.",
		Executable:  ex,
		Arguments:   []string{"service-run"},
	}
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install meetcorrect as a background service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, serviceConfig())
		if err != nil {
			log.Fatal(err)
		}
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		fmt.Println("Service installed.")
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the installed meetcorrect service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, serviceConfig())
		if err != nil {
			log.Fatal(err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running meetcorrect service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, serviceConfig())
		if err != nil {
			log.Fatal(err)
		}
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the meetcorrect service",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := service.New(&program{}, serviceConfig())
		if err != nil {
			log.Fatal(err)
		}
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail the service log file",
	Run: func(cmd *cobra.Command, args []string) {
		logFile := serviceLogPath()
		fmt.Printf("Tailing logs from %s...\n", logFile)
		c := exec.Command("tail", "-f", logFile)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			fmt.Printf("Error tailing logs: %v\n", err)
		}
	},
}

// serviceRunCmd is what the OS service manager actually executes; it is
// hidden from --help since operators reach it only indirectly via `start`.
var serviceRunCmd = &cobra.Command{
	Use:    "service-run",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := redirectLogOutput(); err != nil {
			log.Printf("Failed to set up service log file: %v", err)
		}

		prg := &program{}
		s, err := service.New(prg, serviceConfig())
		if err != nil {
			log.Fatalf("Failed to create service: %v", err)
		}

		sysLogger, err := s.Logger(nil)
		if err != nil {
			log.Printf("Failed to get system logger: %v", err)
		} else {
			_ = sysLogger.Info("meetcorrect service starting...")
		}

		if err := s.Run(); err != nil {
			if sysLogger != nil {
				_ = sysLogger.Error(err)
			}
			log.Fatalf("Service failed to run: %v", err)
		}
	},
}

func serviceLogPath() string {
	return "/tmp/meetcorrect-service.log"
}

func redirectLogOutput() error {
	f, err := os.OpenFile(serviceLogPath(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(f)
	return nil
}
