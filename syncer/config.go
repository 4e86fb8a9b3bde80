package syncer

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("15s", "2m") in yaml.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

type SourceConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Resource  string   `yaml:"resource"`
	Ext       string   `yaml:"ext"`
	Timeout   Duration `yaml:"timeout"`
	EpochYear int      `yaml:"epoch_year"`
	EpochWeek int      `yaml:"epoch_week"`
}

type GitHubConfig struct {
	APIBase string   `yaml:"api_base"`
	RawBase string   `yaml:"raw_base"`
	Owner   string   `yaml:"owner"`
	Repo    string   `yaml:"repo"`
	Branch  string   `yaml:"branch"`
	Path    string   `yaml:"path"`
	Timeout Duration `yaml:"timeout"`
}

// FileConfig is the on-disk configuration. The GitHub token is deliberately
// absent: it comes from the process environment only.
type FileConfig struct {
	DB        string       `yaml:"db"`
	Debug     bool         `yaml:"debug"`
	LogFormat string       `yaml:"log_format"`
	Taxonomy  string       `yaml:"taxonomy"`
	Source    SourceConfig `yaml:"source"`
	GitHub    GitHubConfig `yaml:"github"`
	Push      *bool        `yaml:"push"`
	// InitEmpty lets the very first deployment start from a fresh empty
	// store when the remote has no copy yet. Off by default: no local copy
	// and no remote copy is otherwise a fatal startup state.
	InitEmpty bool `yaml:"init_empty"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field; LoadConfig calls it, and callers
// building a FileConfig by hand should too.
func (c *FileConfig) ApplyDefaults() {
	if c.DB == "" {
		c.DB = "rasff_data.db"
	}
	if c.Source.Resource == "" {
		c.Source.Resource = "rasff"
	}
	if c.Source.Ext == "" {
		c.Source.Ext = "xlsx"
	}
	if c.Source.Timeout.Duration <= 0 {
		c.Source.Timeout.Duration = 15 * time.Second
	}
	if c.Source.EpochYear == 0 {
		c.Source.EpochYear = 2020
	}
	if c.Source.EpochWeek == 0 {
		c.Source.EpochWeek = 1
	}
	if c.GitHub.APIBase == "" {
		c.GitHub.APIBase = "https://api.github.com"
	}
	if c.GitHub.RawBase == "" {
		c.GitHub.RawBase = "https://raw.githubusercontent.com"
	}
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	if c.GitHub.Path == "" {
		c.GitHub.Path = c.DB
	}
}

func (c *FileConfig) Epoch() Period {
	return Period{Year: c.Source.EpochYear, Week: c.Source.EpochWeek}
}

// PushEnabled defaults to true when the yaml omits the key.
func (c *FileConfig) PushEnabled() bool {
	if c.Push == nil {
		return true
	}
	return *c.Push
}
