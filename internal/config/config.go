// Package config loads the pipeline's single typed configuration record.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DeploymentMode selects which of the three C2 execution backends drives
// transcription.
type DeploymentMode string

const (
	ModeKubernetesJob   DeploymentMode = "kubernetes_job"
	ModeRESTRemote      DeploymentMode = "rest_remote"
	ModeLocalSubprocess DeploymentMode = "local_subprocess"
)

// Config holds every pipeline tunable as a single explicit record, per
// spec.md §9's design note ("config as an explicit record").
type Config struct {
	// Server
	Host string
	Port string

	// Database
	DatabasePath string

	// Auth
	JWTSecret  string
	APIKeyFile string

	// Storage
	AudioMountPath string
	WorkspaceRoot  string

	// Transcription backend (C2)
	DeploymentMode          DeploymentMode
	Model                   string
	Language                string
	BeamSize                int
	VadFilter               bool
	WordTimestamps          bool
	ConditionOnPreviousText bool
	NoSpeechThreshold       float64
	TimeoutMultiplier       float64
	MinTimeoutSeconds       int
	PaddingSeconds          float64
	LargeRetranscribeModel  string
	LargeRetranscribeBeam   int

	// Mode A — kubernetes_job
	KubernetesNamespace string
	KubernetesJobImage  string
	ServiceLabel        string
	JobPollInterval     time.Duration

	// Mode B — rest_remote
	RestRemoteURL string

	// Mode C — local_subprocess
	SubprocessBinaryPath string

	// Correction agent (C3)
	CorrectionAgentURL    string
	CorrectionAgentAPIKey string

	// Indexing (§6.4)
	IndexQueueURL string

	// Pipeline / liveness (C7, C8)
	PollInterval       time.Duration
	HeartbeatThreshold time.Duration
	StuckThreshold     time.Duration
	StartupGracePeriod time.Duration

	// Logging
	LogLevel string

	// API surface
	AllowedOrigins []string
	SecureCookies  bool
	Production     bool
}

// IsProduction reports whether the API should enforce its production CORS
// allow-list instead of echoing back the request Origin.
func (c *Config) IsProduction() bool {
	return c.Production
}

// Load loads configuration from an optional .env file, environment
// variables and an optional config file, exactly the way the teacher's
// config.Load layers godotenv over os.Getenv — generalized here with
// viper because SPEC_FULL's record carries far more tunables than the
// teacher's handful of scalars.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	v := viper.New()
	v.SetEnvPrefix("MEETCORRECT")
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: could not read config file: %v", err)
		}
	}

	setDefaults(v)

	return &Config{
		Host:         v.GetString("host"),
		Port:         v.GetString("port"),
		DatabasePath: v.GetString("database_path"),

		JWTSecret:  getJWTSecret(v),
		APIKeyFile: v.GetString("api_key_file"),

		AudioMountPath: v.GetString("audio_mount_path"),
		WorkspaceRoot:  v.GetString("workspace_root"),

		DeploymentMode:          DeploymentMode(v.GetString("deployment_mode")),
		Model:                   v.GetString("model"),
		Language:                v.GetString("language"),
		BeamSize:                v.GetInt("beam_size"),
		VadFilter:               v.GetBool("vad_filter"),
		WordTimestamps:          v.GetBool("word_timestamps"),
		ConditionOnPreviousText: v.GetBool("condition_on_previous_text"),
		NoSpeechThreshold:       v.GetFloat64("no_speech_threshold"),
		TimeoutMultiplier:       v.GetFloat64("timeout_multiplier"),
		MinTimeoutSeconds:       v.GetInt("min_timeout_seconds"),
		PaddingSeconds:          v.GetFloat64("padding_seconds"),
		LargeRetranscribeModel:  v.GetString("large_retranscribe_model"),
		LargeRetranscribeBeam:   v.GetInt("large_retranscribe_beam"),

		KubernetesNamespace: v.GetString("kubernetes_namespace"),
		KubernetesJobImage:  v.GetString("kubernetes_job_image"),
		ServiceLabel:        v.GetString("service_label"),
		JobPollInterval:     v.GetDuration("job_poll_interval"),

		RestRemoteURL: v.GetString("rest_remote_url"),

		SubprocessBinaryPath: v.GetString("subprocess_binary_path"),

		CorrectionAgentURL:    v.GetString("correction_agent_url"),
		CorrectionAgentAPIKey: v.GetString("correction_agent_api_key"),

		IndexQueueURL: v.GetString("index_queue_url"),

		PollInterval:       v.GetDuration("poll_interval"),
		HeartbeatThreshold: v.GetDuration("heartbeat_threshold"),
		StuckThreshold:     v.GetDuration("stuck_threshold"),
		StartupGracePeriod: v.GetDuration("startup_grace_period"),

		LogLevel: v.GetString("log_level"),

		AllowedOrigins: v.GetStringSlice("allowed_origins"),
		SecureCookies:  v.GetBool("secure_cookies"),
		Production:     v.GetBool("production"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "data/meetcorrect.db")
	v.SetDefault("api_key_file", "data/api_key")
	v.SetDefault("audio_mount_path", "data/audio")
	v.SetDefault("workspace_root", "data/workspace")

	v.SetDefault("deployment_mode", string(ModeLocalSubprocess))
	v.SetDefault("model", "base")
	v.SetDefault("language", "")
	v.SetDefault("beam_size", 5)
	v.SetDefault("vad_filter", true)
	v.SetDefault("word_timestamps", false)
	v.SetDefault("condition_on_previous_text", true)
	v.SetDefault("no_speech_threshold", 0.6)
	v.SetDefault("timeout_multiplier", 1.0)
	v.SetDefault("min_timeout_seconds", 600)
	v.SetDefault("padding_seconds", 10.0)
	v.SetDefault("large_retranscribe_model", "large-v3")
	v.SetDefault("large_retranscribe_beam", 10)

	v.SetDefault("kubernetes_namespace", "default")
	v.SetDefault("kubernetes_job_image", "meetcorrect/transcriber:latest")
	v.SetDefault("service_label", "meetcorrect")
	v.SetDefault("job_poll_interval", 10*time.Second)

	v.SetDefault("rest_remote_url", "")

	v.SetDefault("subprocess_binary_path", "meetcorrect-transcribe")

	v.SetDefault("correction_agent_url", "http://localhost:9090")
	v.SetDefault("correction_agent_api_key", "")

	v.SetDefault("index_queue_url", "")

	v.SetDefault("poll_interval", 30*time.Second)
	v.SetDefault("heartbeat_threshold", 2*time.Minute)
	v.SetDefault("stuck_threshold", 10*time.Minute)
	v.SetDefault("startup_grace_period", 10*time.Minute)

	v.SetDefault("log_level", "info")

	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("secure_cookies", true)
	v.SetDefault("production", false)
}

// getJWTSecret gets the operator-API signing secret from env/config or
// generates a secure random one, persisting it across restarts — the same
// pattern as the teacher's config.getJWTSecret.
func getJWTSecret(v *viper.Viper) string {
	if secret := v.GetString("jwt_secret"); secret != "" {
		return secret
	}

	secretFile := v.GetString("jwt_secret_file")
	if secretFile == "" {
		secretFile = "data/jwt_secret"
	}
	if data, err := os.ReadFile(secretFile); err == nil && len(data) > 0 {
		return strings.TrimSpace(string(data))
	}

	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Printf("Warning: could not generate secure JWT secret, using fallback: %v", err)
		return "fallback-jwt-secret-please-set-JWT_SECRET-env-var"
	}
	secret := hex.EncodeToString(bytes)
	_ = os.MkdirAll(filepath.Dir(secretFile), 0755)
	_ = os.WriteFile(secretFile, []byte(secret), 0600)
	log.Println("Generated persistent JWT secret at", secretFile)
	return secret
}
