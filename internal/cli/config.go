package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds meetingctl's persisted configuration.
type Config struct {
	ServerURL string `mapstructure:"server_url"`
	Token     string `mapstructure:"token"`
}

// InitConfig loads ~/.meetingctl.yaml if present.
func InitConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	viper.AddConfigPath(home)
	viper.SetConfigType("yaml")
	viper.SetConfigName(".meetingctl")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("meetingctl")

	if err := viper.ReadInConfig(); err == nil {
		// Config file found and loaded.
	}
}

// SaveConfig persists the server URL and/or token to ~/.meetingctl.yaml.
func SaveConfig(serverURL, token string) error {
	if serverURL != "" {
		viper.Set("server_url", serverURL)
	}
	if token != "" {
		viper.Set("token", token)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(home, ".meetingctl.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfig returns the currently loaded configuration.
func GetConfig() *Config {
	return &Config{
		ServerURL: viper.GetString("server_url"),
		Token:     viper.GetString("token"),
	}
}
