// Package config handles jvmcode.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/daimatz/jvmcode/pkg/classfile"
	"github.com/daimatz/jvmcode/pkg/loader"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "jvmcode.toml"

// Output formats
const (
	FormatText = "text"
	FormatCBOR = "cbor"
)

// Config represents a jvmcode.toml file.
type Config struct {
	ClassPath ClassPath `toml:"classpath"`
	Decode    Decode    `toml:"decode"`
	Output    Output    `toml:"output"`

	// Dir is the directory containing the jvmcode.toml file (set at load time).
	Dir string `toml:"-"`
}

// ClassPath lists where referenced classes are looked up.
type ClassPath struct {
	Dirs []string `toml:"dirs"`
	Jars []string `toml:"jars"`
	Jmod string   `toml:"jmod"`
}

// Decode configures decoding.
type Decode struct {
	ResolveMembers bool `toml:"resolve_members"`
	Workers        int  `toml:"workers"`
	FailFast       bool `toml:"fail_fast"`
}

// Output configures what the CLI prints.
type Output struct {
	Format    string `toml:"format"`
	Verbosity int    `toml:"verbosity"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{Dir: "."}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Output.Format == "" {
		c.Output.Format = FormatText
	}
}

// Validate checks values that toml decoding cannot.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatText, FormatCBOR:
	default:
		return fmt.Errorf("output.format: unknown format %q", c.Output.Format)
	}
	if c.Decode.Workers < 0 {
		return fmt.Errorf("decode.workers: must not be negative, got %d", c.Decode.Workers)
	}
	return nil
}

// Load parses the jvmcode.toml file in dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a jvmcode.toml file and loads
// it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// DirPaths returns absolute paths for the configured class directories.
func (c *Config) DirPaths() []string {
	var paths []string
	for _, d := range c.ClassPath.Dirs {
		paths = append(paths, c.path(d))
	}
	return paths
}

// JarPaths returns absolute paths for the configured jars.
func (c *Config) JarPaths() []string {
	var paths []string
	for _, j := range c.ClassPath.Jars {
		paths = append(paths, c.path(j))
	}
	return paths
}

// JmodPath returns the first existing java.base.jmod among the configured
// path, $JAVA_BASE_JMOD, $JAVA_HOME/jmods/java.base.jmod and the usual Linux
// JDK locations. Returns "" if none is found.
func (c *Config) JmodPath() string {
	var candidates []string
	if c.ClassPath.Jmod != "" {
		candidates = append(candidates, c.path(c.ClassPath.Jmod))
	}
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		candidates = append(candidates, env)
	}
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		candidates = append(candidates, filepath.Join(javaHome, "jmods", "java.base.jmod"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

// ClassLoader builds the class path: the JDK jmod first, then jars, then
// directories.
func (c *Config) ClassLoader() classfile.ClassLoader {
	var loaders []classfile.ClassLoader
	if jmod := c.JmodPath(); jmod != "" {
		loaders = append(loaders, loader.NewJmodClassLoader(jmod))
	}
	for _, j := range c.JarPaths() {
		loaders = append(loaders, loader.NewJarClassLoader(j))
	}
	for _, d := range c.DirPaths() {
		loaders = append(loaders, loader.NewDirClassLoader(d, nil))
	}
	return loader.Chain(loaders...)
}
