// Package file loads and persists site settings from a TOML file in the
// site directory.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the on-disk configuration of one site.
type Settings struct {
	Site   SiteSettings   `toml:"site"`
	Server ServerSettings `toml:"server"`
	Ingest IngestSettings `toml:"ingest"`
}

// SiteSettings locates the site's content and extension directories.
// Relative paths resolve against the site root.
type SiteSettings struct {
	ContentDir string `toml:"content_dir"`
	PluginsDir string `toml:"plugins_dir"`
	ThemesDir  string `toml:"themes_dir"`
	Theme      string `toml:"theme"`
}

// ServerSettings carries the edge listen configuration.
type ServerSettings struct {
	CertDir   string `toml:"cert_dir"`
	HTTPPort  int    `toml:"http_port"`
	HTTPSPort int    `toml:"https_port"`
	AppPortA  int    `toml:"app_port_a"`
	AppPortB  int    `toml:"app_port_b"`
}

// IngestSettings tunes the ingestion pipeline.
type IngestSettings struct {
	DBPath          string `toml:"db_path"`
	ContentIndexDir string `toml:"content_index_dir"`
	DebounceMs      int    `toml:"debounce_ms"`
}

// defaults returns the settings a fresh site starts with.
func defaults() Settings {
	return Settings{
		Site: SiteSettings{
			ContentDir: "content",
			PluginsDir: "plugins",
			ThemesDir:  "themes",
			Theme:      "default",
		},
		Server: ServerSettings{
			CertDir:   "certs",
			HTTPPort:  80,
			HTTPSPort: 443,
			AppPortA:  8081,
			AppPortB:  8082,
		},
		Ingest: IngestSettings{
			DBPath:          "data/site.db",
			ContentIndexDir: "data/content-index",
			DebounceMs:      200,
		},
	}
}

// SettingsStore reads and writes a site's whisper.toml.
type SettingsStore struct {
	mu       sync.RWMutex
	siteRoot string
	filePath string
	settings Settings
}

// NewSettingsStore opens the settings for the site rooted at siteRoot.
// A missing whisper.toml yields defaults without creating the file.
func NewSettingsStore(siteRoot string) (*SettingsStore, error) {
	abs, err := filepath.Abs(siteRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving site root: %w", err)
	}

	s := &SettingsStore{
		siteRoot: abs,
		filePath: filepath.Join(abs, "whisper.toml"),
		settings: defaults(),
	}
	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Load reads whisper.toml, layering file values over defaults.
func (s *SettingsStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	loaded := defaults()
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	s.settings = loaded
	return nil
}

// Save persists the current settings to whisper.toml.
func (s *SettingsStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := toml.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return os.WriteFile(s.filePath, data, 0600)
}

// Settings returns a copy of the current settings.
func (s *SettingsStore) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to the settings under the write lock and persists
// the result.
func (s *SettingsStore) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(&s.settings)
	data, err := toml.Marshal(s.settings)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return os.WriteFile(s.filePath, data, 0600)
}

// SiteRoot returns the absolute site root directory.
func (s *SettingsStore) SiteRoot() string {
	return s.siteRoot
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

// ResolvePath resolves a possibly relative settings path against the
// site root.
func (s *SettingsStore) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.siteRoot, p)
}
