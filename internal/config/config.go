// Package config loads scribe's configuration from the environment with an
// optional yaml file for the guild/channel allow-list.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the scribe application configuration.
type Config struct {
	AppDir         string
	DBPath         string
	ConfigPath     string
	Token          string
	Concurrency    int
	RateInterval   time.Duration
	PageSize       int
	IncludeThreads bool
	Guilds         []string
	Channels       []string
}

// GetAppDir returns the scribe application directory for the current OS.
func GetAppDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Scribe")
	case "linux":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "scribe")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Scribe")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".scribe")
	}
}

// Load returns a Config instance with env overrides and defaults. The token
// may legitimately be empty for read-only commands; import and listen fail
// fast without it.
func Load() *Config {
	appDir := GetAppDir()

	cfg := &Config{
		AppDir:         appDir,
		DBPath:         getEnv("SCRIBE_DB_PATH", filepath.Join(appDir, "scribe.db")),
		ConfigPath:     getEnv("SCRIBE_CONFIG_PATH", filepath.Join(appDir, "scribe.yaml")),
		Token:          getEnv("DISCORD_TOKEN", ""),
		Concurrency:    getEnvInt("SCRIBE_CONCURRENCY", 2),
		RateInterval:   time.Duration(getEnvInt("SCRIBE_RATE_INTERVAL_MS", 350)) * time.Millisecond,
		PageSize:       getEnvInt("SCRIBE_PAGE_SIZE", 100),
		IncludeThreads: getEnv("SCRIBE_INCLUDE_THREADS", "true") != "false",
	}

	cfg.loadAllowList()
	return cfg
}

// allowListFile is the yaml shape of the optional config file.
type allowListFile struct {
	Guilds   []string `yaml:"guilds"`
	Channels []string `yaml:"channels"`
}

// loadAllowList reads the optional yaml allow-list; a missing or unreadable
// file just means no filtering.
func (c *Config) loadAllowList() {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return
	}
	var f allowListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return
	}
	c.Guilds = f.Guilds
	c.Channels = f.Channels
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
