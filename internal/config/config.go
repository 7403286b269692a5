// Package config loads combiner settings from a TOML file. When the file
// does not exist a default one is written, so a first run leaves an
// editable configuration behind.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/modlet-tools/combiner/core/errors"
)

// DefaultFile is the configuration file looked for in the working
// directory when no --config flag is given.
const DefaultFile = "combiner.toml"

// Config holds all file-level settings. CLI flags override these.
type Config struct {
	// DBFile is the intermediate store path.
	DBFile string `toml:"db_file"`
	// Encoding names the at-rest codec: identity, base64 or xz.
	Encoding string `toml:"encoding"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `toml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `toml:"log_format"`
	// SkipDirectories are skipped during discovery in addition to the
	// built-in set.
	SkipDirectories []string `toml:"skip_directories"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DBFile:          "modlets.db",
		Encoding:        "base64",
		LogLevel:        "info",
		LogFormat:       "text",
		SkipDirectories: []string{},
	}
}

// Load reads the configuration at path. A missing file is created with
// defaults and those defaults returned; any other failure is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if werr := Write(path, cfg); werr != nil {
				return cfg, werr
			}
			return cfg, nil
		}
		return cfg, errors.NewIO("read config", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.NewParse("toml", path, err.Error())
	}
	return cfg, nil
}

// Write serializes cfg to path.
func Write(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIO("write config", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return errors.NewIO("encode config", path, err)
	}
	return nil
}
