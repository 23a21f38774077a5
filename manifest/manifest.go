// Package manifest handles m0.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file looked up by FindAndLoad.
const FileName = "m0.toml"

// Defaults applied to settings left empty in m0.toml.
const (
	DefaultListen     = "127.0.0.1:7370"
	DefaultSessionTTL = 30 * time.Minute
)

// Config represents an m0.toml configuration.
type Config struct {
	VM     VMConfig     `toml:"vm"`
	Log    LogConfig    `toml:"log"`
	Chunks ChunksConfig `toml:"chunks"`
	Debug  DebugConfig  `toml:"debug"`

	// Dir is the directory containing the m0.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig configures how a program starts.
type VMConfig struct {
	// Entry is the chunk execution starts in. Empty means the first chunk loaded.
	Entry string `toml:"entry"`
	Trace bool   `toml:"trace"`
	// Registers holds initial register values, e.g. I0 = "5" or S1 = "hello".
	Registers map[string]string `toml:"registers"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// ChunksConfig lists where chunks are loaded from.
type ChunksConfig struct {
	Images []string `toml:"images"`
	Store  string   `toml:"store"`
}

// DebugConfig configures the remote debug service.
type DebugConfig struct {
	Listen     string        `toml:"listen"`
	SessionTTL time.Duration `toml:"session-ttl"`
}

// Default returns the configuration used when no m0.toml exists.
func Default() *Config {
	c := &Config{Dir: "."}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Debug.Listen == "" {
		c.Debug.Listen = DefaultListen
	}
	if c.Debug.SessionTTL <= 0 {
		c.Debug.SessionTTL = DefaultSessionTTL
	}
}

// Load parses the m0.toml file in the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file at an explicit path. Relative paths
// inside it resolve against the file's directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find an m0.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ImagePaths returns the configured image files resolved against Dir.
func (c *Config) ImagePaths() []string {
	var paths []string
	for _, p := range c.Chunks.Images {
		paths = append(paths, c.resolve(p))
	}
	return paths
}

// StorePath returns the chunk store path resolved against Dir, or "" when
// no store is configured.
func (c *Config) StorePath() string {
	if c.Chunks.Store == "" {
		return ""
	}
	return c.resolve(c.Chunks.Store)
}

// LogPath returns the log file path resolved against Dir, or nil to log to
// stderr.
func (c *Config) LogPath() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.resolve(c.Log.File)
	return &p
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
