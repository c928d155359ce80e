package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestSetDefaults_PopulatesExpectedValues(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "0.0.0.0", v.GetString("host"))
	assert.Equal(t, string(ModeLocalSubprocess), v.GetString("deployment_mode"))
	assert.Equal(t, 5, v.GetInt("beam_size"))
	assert.True(t, v.GetBool("vad_filter"))
	assert.Equal(t, 10*time.Minute, v.GetDuration("stuck_threshold"))
	assert.Equal(t, 10*time.Minute, v.GetDuration("startup_grace_period"))
}

func TestGetJWTSecret_PrefersExplicitValue(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("jwt_secret", "configured-secret")

	assert.Equal(t, "configured-secret", getJWTSecret(v))
}

func TestGetJWTSecret_PersistsGeneratedSecretAcrossCalls(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "jwt_secret")

	v1 := viper.New()
	setDefaults(v1)
	v1.Set("jwt_secret_file", secretFile)
	first := getJWTSecret(v1)
	assert.NotEmpty(t, first)

	data, err := os.ReadFile(secretFile)
	assert.NoError(t, err)
	assert.Equal(t, first, string(data))

	v2 := viper.New()
	setDefaults(v2)
	v2.Set("jwt_secret_file", secretFile)
	second := getJWTSecret(v2)
	assert.Equal(t, first, second)
}

func TestConfig_IsProduction(t *testing.T) {
	c := &Config{Production: true}
	assert.True(t, c.IsProduction())
	c.Production = false
	assert.False(t, c.IsProduction())
}
