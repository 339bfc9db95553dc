// Package runtime hosts the plugin and theme surface: manifest
// discovery on disk and the JSON bridge that carries request context to
// script code and recommendations back.
package runtime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// ErrManifest marks discovery failures for one plugin or theme entry.
var ErrManifest = errors.New("invalid manifest")

// Plugin is one discovered plugin directory.
type Plugin struct {
	ID     string
	Name   string
	Dir    string
	Script string
	Config map[string]any
}

// Theme is one discovered theme directory.
type Theme struct {
	ID     string
	Name   string
	Mount  string
	Dir    string
	Script string
	Assets string
	Config map[string]any
}

type pluginManifest struct {
	ID     string         `toml:"id"`
	Name   string         `toml:"name"`
	Main   string         `toml:"main"`
	Config map[string]any `toml:"config"`
}

type themeManifest struct {
	ID     string         `toml:"id"`
	Name   string         `toml:"name"`
	Mount  string         `toml:"mount"`
	Main   string         `toml:"main"`
	Config map[string]any `toml:"config"`
}

// DiscoverPlugins scans root for plugin directories. Directories without
// plugin.toml are ignored; a broken manifest or missing script fails
// that entry.
func DiscoverPlugins(root string) ([]Plugin, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading plugin root: %w", err)
	}

	var plugins []Plugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(dir, "plugin.toml")
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("%w: reading %s: %v", ErrManifest, manifestPath, err)
		}

		var m pluginManifest
		if err := toml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrManifest, manifestPath, err)
		}

		p := Plugin{
			ID:     m.ID,
			Name:   m.Name,
			Dir:    dir,
			Config: m.Config,
		}
		if p.ID == "" {
			p.ID = entry.Name()
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		main := m.Main
		if main == "" {
			main = "plugin.js"
		}
		p.Script = filepath.Join(dir, main)
		if _, err := os.Stat(p.Script); err != nil {
			return nil, fmt.Errorf("%w: plugin %s: script %s: %v", ErrManifest, p.ID, p.Script, err)
		}

		logger.Debug("discovered plugin", "id", p.ID, "dir", dir)
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// DiscoverThemes scans root for theme directories. theme.toml requires
// a mount path.
func DiscoverThemes(root string) ([]Theme, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading theme root: %w", err)
	}

	var themes []Theme
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(dir, "theme.toml")
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("%w: reading %s: %v", ErrManifest, manifestPath, err)
		}

		var m themeManifest
		if err := toml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrManifest, manifestPath, err)
		}
		if m.Mount == "" {
			return nil, fmt.Errorf("%w: theme %s: mount is required", ErrManifest, entry.Name())
		}

		t := Theme{
			ID:     m.ID,
			Name:   m.Name,
			Mount:  m.Mount,
			Dir:    dir,
			Config: m.Config,
		}
		if t.ID == "" {
			t.ID = entry.Name()
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		main := m.Main
		if main == "" {
			main = "theme.js"
		}
		t.Script = filepath.Join(dir, main)
		if _, err := os.Stat(t.Script); err != nil {
			return nil, fmt.Errorf("%w: theme %s: script %s: %v", ErrManifest, t.ID, t.Script, err)
		}
		if assets := filepath.Join(dir, "assets"); dirExists(assets) {
			t.Assets = assets
		}

		logger.Debug("discovered theme", "id", t.ID, "mount", t.Mount)
		themes = append(themes, t)
	}
	return themes, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
