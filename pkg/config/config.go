package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CONTENTAUDIT_INDEX_PATH.
const EnvPrefix = "CONTENTAUDIT"

// ProjectConfigNames are searched, in order, in the content root.
var ProjectConfigNames = []string{
	".contentaudit.yaml",
	".contentaudit.yml",
	".contentaudit.json",
	".contentaudit.toml",
}

// Config holds all configuration for contentaudit
type Config struct {
	Content   ContentConfig   `mapstructure:"content"`
	Index     IndexConfig     `mapstructure:"index"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`

	// Source is the project config file that was merged, if any.
	Source string `mapstructure:"-"`
}

// ContentConfig locates the content tree and its collection schema
type ContentConfig struct {
	Root   string `mapstructure:"root"`
	Schema string `mapstructure:"schema"`
}

// IndexConfig controls the on-disk document index
type IndexConfig struct {
	Path    string `mapstructure:"path"`
	Reindex bool   `mapstructure:"reindex"`
}

// TelemetryConfig controls usage event submission
type TelemetryConfig struct {
	Disabled bool          `mapstructure:"disabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuditConfig holds defaults for audit runs
type AuditConfig struct {
	Verbose          bool `mapstructure:"verbose"`
	UseDefaultValues bool `mapstructure:"use_default_values"`
}

var defaultConfig = Config{
	Content: ContentConfig{
		Root:   "",
		Schema: filepath.Join(".contentaudit", "schema.yaml"),
	},
	Index: IndexConfig{
		Path:    filepath.Join(".contentaudit", "index.db"),
		Reindex: true,
	},
	Telemetry: TelemetryConfig{
		Disabled: false,
		Endpoint: "",
		Timeout:  3 * time.Second,
	},
}

// LoadOptions tells Load where to look and which flags override files.
type LoadOptions struct {
	// Root is the content root used for project config discovery and for
	// resolving relative paths. Defaults to the working directory.
	Root string
	// ConfigFile, when set, replaces project config discovery.
	ConfigFile string
	// Flags maps config keys to flags; only flags the operator set win over files.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
}

// Load merges defaults, $HOME/.contentaudit.yaml, the project file, the
// environment and flags, in increasing priority.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		if _, err := mergeFile(v, filepath.Join(home, ".contentaudit.yaml"), true); err != nil {
			return nil, err
		}
	}

	root := opts.Root
	if root == "" {
		root = "."
	}

	var source string
	if opts.ConfigFile != "" {
		if _, err := mergeFile(v, opts.ConfigFile, false); err != nil {
			return nil, err
		}
		source = opts.ConfigFile
	} else {
		for _, name := range ProjectConfigNames {
			p := filepath.Join(root, name)
			found, err := mergeFile(v, p, true)
			if err != nil {
				return nil, err
			}
			if found {
				source = p
				break
			}
		}
	}

	if opts.Flags != nil {
		for key, name := range opts.FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag --%s", name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}
	cfg.Source = source
	if err := cfg.resolve(root); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("content.root", defaultConfig.Content.Root)
	v.SetDefault("content.schema", defaultConfig.Content.Schema)
	v.SetDefault("index.path", defaultConfig.Index.Path)
	v.SetDefault("index.reindex", defaultConfig.Index.Reindex)
	v.SetDefault("telemetry.disabled", defaultConfig.Telemetry.Disabled)
	v.SetDefault("telemetry.endpoint", defaultConfig.Telemetry.Endpoint)
	v.SetDefault("telemetry.timeout", defaultConfig.Telemetry.Timeout)
	v.SetDefault("audit.verbose", defaultConfig.Audit.Verbose)
	v.SetDefault("audit.use_default_values", defaultConfig.Audit.UseDefaultValues)
}

// mergeFile validates and merges one config file. Missing optional files are
// skipped; malformed files are always an error.
func mergeFile(v *viper.Viper, path string, optional bool) (bool, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- operator config path
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "read config %s", path)
	}
	if err := ValidateConfig(data, filepath.Ext(path)); err != nil {
		return false, errors.Wrapf(err, "config %s", path)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return false, errors.Wrapf(err, "merge config %s", path)
	}
	return true, nil
}

// resolve anchors relative paths: the content root against root, and the
// schema and index paths against the content root.
func (c *Config) resolve(root string) error {
	contentRoot := c.Content.Root
	if contentRoot == "" {
		contentRoot = root
	} else if !filepath.IsAbs(contentRoot) {
		contentRoot = filepath.Join(root, contentRoot)
	}
	abs, err := filepath.Abs(contentRoot)
	if err != nil {
		return errors.Wrapf(err, "resolve content root %s", contentRoot)
	}
	c.Content.Root = abs

	if !filepath.IsAbs(c.Content.Schema) {
		c.Content.Schema = filepath.Join(abs, c.Content.Schema)
	}
	if c.Index.Path != ":memory:" && !filepath.IsAbs(c.Index.Path) {
		c.Index.Path = filepath.Join(abs, c.Index.Path)
	}
	return nil
}

// TelemetryEnabled reports whether usage events should be sent.
func (c *Config) TelemetryEnabled() bool {
	return !c.Telemetry.Disabled && c.Telemetry.Endpoint != ""
}
