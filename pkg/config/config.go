package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
)

const (
	MinExportIntervalMinutes = 1
	MaxExportIntervalMinutes = 1440
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Store    StoreConfig    `json:"store"`
	Sync     SyncConfig     `json:"sync"`
	Export   ExportConfig   `json:"export"`
	Migrate  MigrateConfig  `json:"migrate"`
	Channels ChannelsConfig `json:"channels"`
	mu       sync.RWMutex
}

// StoreConfig points at the external long-term memory store.
type StoreConfig struct {
	APIKey      string `json:"api_key" env:"DOTRECALL_STORE_API_KEY"`
	BaseURL     string `json:"base_url" env:"DOTRECALL_STORE_BASE_URL"`
	WorkspaceID string `json:"workspace_id" env:"DOTRECALL_STORE_WORKSPACE_ID"`
}

type SyncConfig struct {
	Workspace string `json:"workspace" env:"DOTRECALL_SYNC_WORKSPACE"`
}

type ExportConfig struct {
	Daily           bool   `json:"daily" env:"DOTRECALL_EXPORT_DAILY"`
	OnStart         bool   `json:"on_start" env:"DOTRECALL_EXPORT_ON_START"`
	IntervalMinutes int    `json:"interval_minutes" env:"DOTRECALL_EXPORT_INTERVAL_MINUTES"`
	KnowledgeFile   string `json:"knowledge_file" env:"DOTRECALL_EXPORT_KNOWLEDGE_FILE"`
}

type MigrateConfig struct {
	ArchiveDir string `json:"archive_dir" env:"DOTRECALL_MIGRATE_ARCHIVE_DIR"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"DOTRECALL_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"DOTRECALL_CHANNELS_DISCORD_ALLOW_FROM"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			APIKey:      "",
			BaseURL:     "http://localhost:8888/v2",
			WorkspaceID: "default",
		},
		Sync: SyncConfig{
			Workspace: "~/.dotrecall/workspace",
		},
		Export: ExportConfig{
			Daily:           true,
			OnStart:         false,
			IntervalMinutes: 1440,
			KnowledgeFile:   "memory/long-term.md",
		},
		Migrate: MigrateConfig{
			// Must live outside the legacy targets the migration retires,
			// or archiving memory/ would rename it into its own subtree.
			ArchiveDir: "archive",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if envErr := env.Parse(cfg); envErr != nil {
				return nil, envErr
			}
			cfg.normalize()
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) normalize() {
	if c.Export.IntervalMinutes < MinExportIntervalMinutes {
		c.Export.IntervalMinutes = MinExportIntervalMinutes
	}
	if c.Export.IntervalMinutes > MaxExportIntervalMinutes {
		c.Export.IntervalMinutes = MaxExportIntervalMinutes
	}
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Sync.Workspace)
}

// ResolvedAPIKey returns the store credential, following one level of
// "env:NAME" indirection so config files never need the literal secret.
// The second return reports whether a credential was actually resolved.
func (c *Config) ResolvedAPIKey() (string, bool) {
	c.mu.RLock()
	raw := strings.TrimSpace(c.Store.APIKey)
	c.mu.RUnlock()

	if strings.HasPrefix(raw, "env:") {
		name := strings.TrimSpace(strings.TrimPrefix(raw, "env:"))
		value := strings.TrimSpace(os.Getenv(name))
		return value, value != ""
	}
	return raw, raw != ""
}

func (c *Config) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.TrimRight(c.Store.BaseURL, "/")
}

// KnowledgeFilePath resolves the export target relative to the workspace
// unless an absolute path was configured.
func (c *Config) KnowledgeFilePath() string {
	c.mu.RLock()
	file := c.Export.KnowledgeFile
	c.mu.RUnlock()
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.WorkspacePath(), file)
}

// ArchiveDirPath resolves the migration archive location the same way.
func (c *Config) ArchiveDirPath() string {
	c.mu.RLock()
	dir := c.Migrate.ArchiveDir
	c.mu.RUnlock()
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.WorkspacePath(), dir)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
