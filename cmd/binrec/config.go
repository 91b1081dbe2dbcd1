package main

import (
	"fmt"
	"strings"

	"github.com/kjk/binrec/log"
	"github.com/kjk/binrec/mirror"
	"github.com/kjk/binrec/recfmt"
	"github.com/kjk/binrec/recstore"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BINREC"

// Config is built from, in order of priority: flags, BINREC_* environment
// variables, the --config file and flag defaults
type Config struct {
	ConfigFile  string `mapstructure:"config"`
	Data        string `mapstructure:"data"`
	Index       string `mapstructure:"index"`
	Type        string `mapstructure:"type"`
	DataFormat  string `mapstructure:"data-format"`
	IndexFormat string `mapstructure:"index-format"`
	Verbose     bool   `mapstructure:"verbose"`
	LogDir      string `mapstructure:"logdir"`

	// write
	Count      int    `mapstructure:"count"`
	Gen        string `mapstructure:"gen"`
	Buffer     int    `mapstructure:"buffer"`
	FlushEvery int    `mapstructure:"flush-every"`
	Manifest   bool   `mapstructure:"manifest"`
	Append     bool   `mapstructure:"append"`
	Sync       bool   `mapstructure:"sync"`

	SkipSpaceCheck bool `mapstructure:"skip-space-check"`

	// sizes
	Dir string `mapstructure:"dir"`

	// push, pull, ls, rm
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Access   string `mapstructure:"access"`
	Secret   string `mapstructure:"secret"`
	Insecure bool   `mapstructure:"insecure"`
	Prefix   string `mapstructure:"prefix"`
}

func setRootFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (yaml, toml or json)")
	flags.String("data", "data.bin", "Path of the data file. Ending in .gz, .zst, .br or .s2 means compressed")
	flags.String("index", "", "Path of the index file (default: <data>.idx)")
	flags.String("type", "int64", "Record type: int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32, float64")
	flags.String("data-format", "binary", "Data format: binary (native byte order) or text")
	flags.String("index-format", "text", "Index format: text or binary")
	flags.BoolP("verbose", "v", false, "Log more")
	flags.String("logdir", "", "Directory for daily log files, no log files if empty")
}

func setMirrorFlags(flags *pflag.FlagSet) {
	flags.String("bucket", "", "Bucket name")
	flags.String("endpoint", "", "S3 endpoint, e.g. s3.amazonaws.com or localhost:9000")
	flags.String("region", "", "Bucket region")
	flags.String("access", "", "Access key (better set with BINREC_ACCESS)")
	flags.String("secret", "", "Secret key (better set with BINREC_SECRET)")
	flags.Bool("insecure", false, "Use http instead of https")
	flags.String("prefix", "", "Remote directory")
}

// loadConfig binds flags of the command being run and fills cfg
func loadConfig(vip *viper.Viper, cmd *cobra.Command, cfg *Config) error {
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	vip.SetEnvPrefix(envPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vip.AutomaticEnv()

	if path := vip.GetString("config"); path != "" {
		vip.SetConfigFile(path)
		if err := vip.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := vip.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	log.Verbose = cfg.Verbose
	if cfg.LogDir != "" {
		log.Init(&log.Config{Dir: cfg.LogDir})
	}
	log.Verbosef("config: %+v\n", redacted(cfg))
	return nil
}

func redacted(cfg *Config) Config {
	res := *cfg
	if res.Secret != "" {
		res.Secret = "***"
	}
	return res
}

func (cfg *Config) fileOptions() (*recstore.FileOptions, error) {
	idx, err := recfmt.ParseOffsetFormat(cfg.IndexFormat)
	if err != nil {
		return nil, err
	}
	return &recstore.FileOptions{
		Options: recstore.Options{
			BufferSize: cfg.Buffer,
			FlushEvery: cfg.FlushEvery,
			Index:      idx,
			SyncWrite:  cfg.Sync,
		},
		DataPath:  cfg.Data,
		IndexPath: cfg.Index,
		Append:    cfg.Append,
		Manifest:  cfg.Manifest,
	}, nil
}

func (cfg *Config) mirrorConfig() *mirror.Config {
	return &mirror.Config{
		Access:   cfg.Access,
		Secret:   cfg.Secret,
		Bucket:   cfg.Bucket,
		Endpoint: cfg.Endpoint,
		Region:   cfg.Region,
		Insecure: cfg.Insecure,
	}
}
