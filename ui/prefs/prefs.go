// Package prefs provides JSON-based window and dialog preferences.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"geo-assembler/internal/version"
)

const prefsFile = "preferences.json"

// Keys used by the user interface.
const (
	KeyRunDir      = "lastRunDir"
	KeyGeometryDir = "lastGeometryDir"
	KeyGeometry    = "lastGeometry"
	KeySessionDir  = "lastSessionDir"
	KeyExportDir   = "lastExportDir"
	KeyRecent      = "recentGeometries"
	KeyWindowW     = "windowWidth"
	KeyWindowH     = "windowHeight"
	KeyCalibrant   = "calibrant"
	KeyFrontView   = "frontView"
)

// MaxRecent is the length of the recent geometry list.
const MaxRecent = 8

// Prefs stores application preferences as a key-value map.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
}

// DefaultPath returns ~/.config/geo-assembler/preferences.json or the
// platform equivalent.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, version.AppName, prefsFile)
}

// Load reads preferences from the default location.
func Load() *Prefs {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads preferences from path. Returns empty preferences if the
// file doesn't exist or cannot be parsed.
func LoadFrom(path string) *Prefs {
	p := &Prefs{
		values: make(map[string]interface{}),
		path:   path,
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p.values); err != nil || p.values == nil {
		p.values = make(map[string]interface{})
	}
	return p
}

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}

// FloatWithFallback returns a float64 preference, or fallback if not set.
func (p *Prefs) FloatWithFallback(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key string, val string) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Bool returns a bool preference, or fallback if not set.
func (p *Prefs) Bool(key string, fallback bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// SetBool stores a bool preference.
func (p *Prefs) SetBool(key string, val bool) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Strings returns a string list preference.
func (p *Prefs) Strings(key string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	switch l := p.values[key].(type) {
	case []string:
		out = append(out, l...)
	case []interface{}:
		for _, v := range l {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// PushRecent moves val to the front of the list under key, keeping at most
// MaxRecent entries.
func (p *Prefs) PushRecent(key, val string) {
	list := []string{val}
	for _, s := range p.Strings(key) {
		if s != val && len(list) < MaxRecent {
			list = append(list, s)
		}
	}
	p.mu.Lock()
	p.values[key] = list
	p.mu.Unlock()
}
