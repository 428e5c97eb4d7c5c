package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	apiBaseURLVar      = "ECOTRACK_API_URL"
	appNameVar         = "ECOTRACK_APP_NAME"
	credentialsFileVar = "ECOTRACK_CREDENTIALS_FILE"
	requestTimeoutVar  = "ECOTRACK_REQUEST_TIMEOUT"
	refreshTimeoutVar  = "ECOTRACK_REFRESH_TIMEOUT"
	logLevelVar        = "ECOTRACK_LOG_LEVEL"
)

type EnvVars struct{}

var _ Config = EnvVars{}

func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://localhost:8000/api")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "EcoTrack")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetCredentialsFile returns the path of the persistent credential store,
// defaulting to <user config dir>/ecotrack/credentials.json.
func (EnvVars) GetCredentialsFile() string {
	if path := os.Getenv(credentialsFileVar); path != "" {
		return path
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "ecotrack", "credentials.json")
	}
	return filepath.Join(configDir, "ecotrack", "credentials.json")
}

func (EnvVars) GetRequestTimeout() time.Duration {
	return getDuration(requestTimeoutVar, 30*time.Second)
}

func (EnvVars) GetRefreshTimeout() time.Duration {
	return getDuration(refreshTimeoutVar, 10*time.Second)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
