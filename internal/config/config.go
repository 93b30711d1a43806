// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/geoexport/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Export  ExportConfig  `mapstructure:"export"`
	Output  OutputConfig  `mapstructure:"output"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Region  RegionConfig  `mapstructure:"region"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Publish PublishConfig `mapstructure:"publish"`
	Server  ServerConfig  `mapstructure:"server"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ExportConfig holds the negotiation parameters.
type ExportConfig struct {
	Image         string       `mapstructure:"image"`
	Mode          string       `mapstructure:"mode"` // single, adaptive
	Prefix        string       `mapstructure:"prefix"`
	Extension     string       `mapstructure:"extension"`
	SingleBands   []string     `mapstructure:"single_bands"`
	Ladder        LadderConfig `mapstructure:"ladder"`
	BandSets      [][]string   `mapstructure:"band_sets"` // cheapest first
	Resolutions   []float64    `mapstructure:"resolutions"`
	Budget        string       `mapstructure:"budget"` // e.g. 48MiB
	Tolerance     float64      `mapstructure:"tolerance"`
	FailOnUnknown bool         `mapstructure:"fail_on_unknown"`
}

// LadderConfig holds the resolution ladder of the single-file strategy.
type LadderConfig struct {
	Target  float64   `mapstructure:"target"`
	Finer   []float64 `mapstructure:"finer"`
	Coarser []float64 `mapstructure:"coarser"`
}

// OutputConfig holds artifact materialization settings.
type OutputConfig struct {
	Dir             string        `mapstructure:"dir"`
	Force           bool          `mapstructure:"force"`
	KeepArchive     bool          `mapstructure:"keep_archive"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
}

// RemoteConfig holds the remote export service connection.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 = no deadline on issuance
}

// RegionConfig selects the area of interest. File takes precedence.
type RegionConfig struct {
	File string `mapstructure:"file"` // GeoJSON
	BBox string `mapstructure:"bbox"` // minLon,minLat,maxLon,maxLat
}

// CatalogConfig holds the SQLite artifact catalog settings.
type CatalogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// PublishConfig holds the artifact publish target.
type PublishConfig struct {
	Type         string        `mapstructure:"type"` // none, local, s3, azure
	LocalPath    string        `mapstructure:"local_path"`
	S3           S3Config      `mapstructure:"s3"`
	Azure        AzureConfig   `mapstructure:"azure"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"` // must cover a whole negotiation
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Domains  []string  `mapstructure:"domains"`
	Email    string    `mapstructure:"email"`
	CacheDir string    `mapstructure:"cache_dir"`
	Staging  bool      `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      DNSConfig `mapstructure:"dns"`
}

// DNSConfig holds the Azure DNS settings for DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"` // written after one-shot runs
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Export defaults
	viper.SetDefault("export.mode", "single")
	viper.SetDefault("export.prefix", "landsat_stack")
	viper.SetDefault("export.extension", ".tif")
	viper.SetDefault("export.single_bands", []string{"SR_B1", "SR_B2", "SR_B3", "SR_B4", "SR_B5", "SR_B6", "SR_B7", "ST_K", "ST_C", "NDVI"})
	viper.SetDefault("export.ladder.target", 120.0)
	viper.SetDefault("export.ladder.finer", []float64{90, 75, 60, 45, 30})
	viper.SetDefault("export.ladder.coarser", []float64{150, 180, 210, 240, 270, 300})
	viper.SetDefault("export.band_sets", [][]string{
		{"NDVI", "ST_C"},
		{"SR_B4", "NDVI", "ST_C"},
		{"SR_B4", "SR_B5", "NDVI", "ST_C"},
		{"SR_B4", "SR_B5", "NDVI", "ST_K", "ST_C"},
	})
	viper.SetDefault("export.resolutions", []float64{30, 45, 60, 75, 90, 120, 150, 180, 240, 300})
	viper.SetDefault("export.budget", "48MiB")
	viper.SetDefault("export.tolerance", 1.2)
	viper.SetDefault("export.fail_on_unknown", false)

	// Output defaults
	viper.SetDefault("output.dir", "./output")
	viper.SetDefault("output.force", false)
	viper.SetDefault("output.keep_archive", true)
	viper.SetDefault("output.transfer_timeout", 5*time.Minute)

	// Remote defaults
	viper.SetDefault("remote.timeout", time.Duration(0))

	// Catalog defaults
	viper.SetDefault("catalog.enabled", true)
	viper.SetDefault("catalog.path", "./output/catalog.db")

	// Publish defaults
	viper.SetDefault("publish.type", "none")
	viper.SetDefault("publish.sync_interval", time.Hour)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("GEOEXPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/geoexport")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration. It does not require an image or a
// region, which commands may supply through flags.
func (c *Config) Validate() error {
	if err := c.Export.validate(); err != nil {
		return err
	}

	if c.Output.Dir == "" {
		return &domain.ConfigError{Field: "output.dir", Message: "output directory is required"}
	}

	if c.Catalog.Enabled && c.Catalog.Path == "" {
		return &domain.ConfigError{Field: "catalog.path", Message: "catalog path is required when the catalog is enabled"}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return fmt.Errorf("TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return fmt.Errorf("TLS enabled but no email specified")
		}
	}

	switch c.Publish.Type {
	case "", "none":
	case "local":
		if c.Publish.LocalPath == "" {
			return fmt.Errorf("local publish path is required")
		}
	case "s3":
		if c.Publish.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.Publish.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Publish.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Publish.Azure.AccountName == "" && c.Publish.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	default:
		return fmt.Errorf("unknown publish type: %s", c.Publish.Type)
	}

	return nil
}

func (e *ExportConfig) validate() error {
	switch domain.ExportMode(e.Mode) {
	case domain.ModeSingle, domain.ModeAdaptive:
	default:
		return &domain.ConfigError{Field: "export.mode", Message: fmt.Sprintf("unknown mode %q", e.Mode)}
	}

	if e.Prefix == "" {
		return &domain.ConfigError{Field: "export.prefix", Message: "prefix is required"}
	}

	if err := domain.BandSet(e.SingleBands).Validate(); err != nil {
		return &domain.ConfigError{Field: "export.single_bands", Message: err.Error()}
	}

	if len(e.BandSets) == 0 {
		return &domain.ConfigError{Field: "export.band_sets", Message: "at least one band set is required"}
	}
	for i, bs := range e.BandSets {
		if err := domain.BandSet(bs).Validate(); err != nil {
			return &domain.ConfigError{Field: fmt.Sprintf("export.band_sets[%d]", i), Message: err.Error()}
		}
	}

	if len(e.Resolutions) == 0 {
		return &domain.ConfigError{Field: "export.resolutions", Message: "at least one resolution is required"}
	}
	for _, r := range append(append([]float64{e.Ladder.Target}, e.Ladder.Finer...), e.Resolutions...) {
		if r <= 0 {
			return &domain.ConfigError{Field: "export", Message: fmt.Sprintf("resolution %v must be positive", r)}
		}
	}
	for _, r := range e.Ladder.Coarser {
		if r <= 0 {
			return &domain.ConfigError{Field: "export.ladder.coarser", Message: fmt.Sprintf("resolution %v must be positive", r)}
		}
	}

	if _, err := e.SizeBudget(); err != nil {
		return err
	}

	return nil
}

// SizeBudget parses the configured budget and tolerance.
func (e *ExportConfig) SizeBudget() (domain.SizeBudget, error) {
	maxBytes, err := domain.ParseSize(e.Budget)
	if err != nil || maxBytes <= 0 {
		return domain.SizeBudget{}, &domain.ConfigError{Field: "export.budget", Message: fmt.Sprintf("invalid size %q", e.Budget)}
	}
	if e.Tolerance < 1 {
		return domain.SizeBudget{}, &domain.ConfigError{Field: "export.tolerance", Message: "tolerance must be at least 1"}
	}
	return domain.SizeBudget{MaxBytes: maxBytes, Tolerance: e.Tolerance}, nil
}

// ResolutionLadder returns the configured ladder.
func (e *ExportConfig) ResolutionLadder() domain.ResolutionLadder {
	return domain.ResolutionLadder{
		Target:  e.Ladder.Target,
		Finer:   e.Ladder.Finer,
		Coarser: e.Ladder.Coarser,
	}
}

// BandSetList returns the configured adaptive band sets.
func (e *ExportConfig) BandSetList() []domain.BandSet {
	sets := make([]domain.BandSet, len(e.BandSets))
	for i, bs := range e.BandSets {
		sets[i] = domain.BandSet(bs)
	}
	return sets
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
