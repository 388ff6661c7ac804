package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/db"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/poll"
)

const (
	defaultAPIHost          = "0.0.0.0"
	defaultAPIPort          = 9090
	defaultLogLevel         = "info"
	defaultLogOutput        = "stdout"
	defaultDatadir          = ".garage" // Will be prefixed with user's home directory
	defaultDBType           = db.TypePebble
	defaultMonitorInterval  = 5 * time.Second
	defaultArtifactsTimeout = 20 * time.Minute
	defaultMongoDB          = "garage"
	shutdownTimeout         = 10 * time.Second
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the application configuration
type Config struct {
	API       APIConfig
	Log       LogConfig
	DB        DBConfig
	Tree      TreeConfig
	Poll      PollConfig
	Cipher    CipherConfig
	Artifacts ArtifactsConfig
	Directory DirectoryConfig
	Datadir   string
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	ErrorFile string `mapstructure:"errorFile"`
}

// DBConfig selects the storage backend
type DBConfig struct {
	Type string `mapstructure:"type"`
}

// TreeConfig holds the membership tree settings of a fresh database
type TreeConfig struct {
	Depth int `mapstructure:"depth"`
}

// PollConfig holds poll lifecycle settings
type PollConfig struct {
	Implementation  string        `mapstructure:"implementation"`
	MonitorInterval time.Duration `mapstructure:"monitorInterval"`
}

// CipherConfig holds the vote cipher secret. When empty a random secret is
// generated and kept in the database.
type CipherConfig struct {
	Secret string `mapstructure:"secret"`
}

// ArtifactsConfig says where circuit keys are cached and fetched from
type ArtifactsConfig struct {
	Dir     string             `mapstructure:"dir"`
	URL     string             `mapstructure:"url"`
	Setup   bool               `mapstructure:"setup"`
	Timeout time.Duration      `mapstructure:"timeout"`
	S3      semaphore.S3Config `mapstructure:"s3"`
}

// DirectoryConfig holds the member directory settings
type DirectoryConfig struct {
	MongoURL   string `mapstructure:"mongoURL"`
	MongoDB    string `mapstructure:"mongoDB"`
	AdminToken string `mapstructure:"adminToken"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	// Get user's home directory for default datadir
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)
	v.SetDefault("db.type", defaultDBType)
	v.SetDefault("tree.depth", group.DefaultDepth)
	v.SetDefault("poll.implementation", poll.DefaultImplementation)
	v.SetDefault("poll.monitorInterval", defaultMonitorInterval)
	v.SetDefault("artifacts.timeout", defaultArtifactsTimeout)
	v.SetDefault("directory.mongoDB", defaultMongoDB)

	// Configure flags
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.String("log.errorFile", "", "file where errors and warnings are also written")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for database and artifact files")
	flag.String("db.type", defaultDBType, fmt.Sprintf("database backend (%s, %s or %s)", db.TypePebble, db.TypeLevelDB, db.TypeInMemory))
	flag.IntP("tree.depth", "t", group.DefaultDepth, "membership tree depth of new polls (only used on a fresh database)")
	flag.String("poll.implementation", poll.DefaultImplementation, fmt.Sprintf("poll implementation of new polls %v", poll.Implementations()))
	flag.Duration("poll.monitorInterval", defaultMonitorInterval, "how often poll phases are checked")
	flag.String("cipher.secret", "", "vote cipher secret (generated and stored when empty)")
	flag.String("artifacts.dir", "", "circuit artifacts cache directory (defaults to <datadir>/artifacts)")
	flag.String("artifacts.url", "", "http(s) or s3:// location of published circuit artifacts")
	flag.Bool("artifacts.setup", false, "run a local circuit setup when no artifacts are available (testing only)")
	flag.Duration("artifacts.timeout", defaultArtifactsTimeout, "timeout for preparing the circuit artifacts")
	flag.String("artifacts.s3.endpoint", "", "S3 compatible endpoint for s3:// artifact locations")
	flag.String("artifacts.s3.region", "", "S3 region")
	flag.String("artifacts.s3.accessKey", "", "S3 access key")
	flag.String("artifacts.s3.secretKey", "", "S3 secret key")
	flag.String("directory.mongoURL", "", "MongoDB URL of the member directory")
	flag.String("directory.mongoDB", defaultMongoDB, "MongoDB database of the member directory")
	flag.String("directory.adminToken", "", "bearer token of a local admin when no MongoDB directory is used")

	// Configure usage information
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "garage-node %s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: garage-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, GARAGE_API_PORT or GARAGE_DIRECTORY_MONGOURL\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start a local node with a generated circuit setup\n")
		fmt.Fprintf(os.Stderr, "  garage-node --artifacts.setup --directory.adminToken=secret\n\n")
		fmt.Fprintf(os.Stderr, "  # Start with published artifacts and a MongoDB member directory\n")
		fmt.Fprintf(os.Stderr, "  garage-node --artifacts.url=s3://garage-artifacts/semaphore --directory.mongoURL=mongodb://localhost:27017\n")
	}

	// Parse flags
	flag.CommandLine.SortFlags = false
	flag.Parse()

	// Configure Viper to use environment variables
	v.SetEnvPrefix("GARAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind flags to Viper
	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = filepath.Join(cfg.Datadir, "artifacts")
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", cfg.API.Port)
	}
	if !slices.Contains([]string{db.TypePebble, db.TypeLevelDB, db.TypeInMemory}, cfg.DB.Type) {
		return fmt.Errorf("invalid db type %q", cfg.DB.Type)
	}
	if cfg.Tree.Depth < poll.MinTreeDepth || cfg.Tree.Depth > poll.MaxTreeDepth {
		return fmt.Errorf("tree depth must be within [%d, %d], got %d",
			poll.MinTreeDepth, poll.MaxTreeDepth, cfg.Tree.Depth)
	}
	if _, err := poll.LookupImplementation(cfg.Poll.Implementation); err != nil {
		return err
	}
	if cfg.Artifacts.URL == "" && !cfg.Artifacts.Setup {
		return fmt.Errorf("either an artifacts url or --artifacts.setup is required")
	}
	if cfg.Directory.MongoURL == "" && cfg.Directory.AdminToken == "" {
		return fmt.Errorf("a member directory is required (use --directory.mongoURL or --directory.adminToken)")
	}
	return nil
}
