// Package config loads process settings from a YAML file, VOLSTREAM_* environment
// variables and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tarun-kavipurapu/volstream/pkg/protocol"
)

const EnvPrefix = "VOLSTREAM"

type Config struct {
	Listen      string          `mapstructure:"listen" validate:"required"`
	MetricsAddr string          `mapstructure:"metrics_addr"`
	Log         LogConfig       `mapstructure:"log"`
	Protocol    ProtocolConfig  `mapstructure:"protocol"`
	Sink        SinkConfig      `mapstructure:"sink"`
	Discovery   DiscoveryConfig `mapstructure:"discovery"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	File  string `mapstructure:"file"`
}

type ProtocolConfig struct {
	ByteOrder         string        `mapstructure:"byte_order" validate:"byteorder"`
	StrictTotalLength bool          `mapstructure:"strict_total_length"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	MaxPayloadBytes   int           `mapstructure:"max_payload_bytes" validate:"gte=0,lte=2147483647"`
}

type SinkConfig struct {
	// Dir is empty when received volumes are not persisted.
	Dir string `mapstructure:"dir"`
}

type DiscoveryConfig struct {
	Advertise bool   `mapstructure:"advertise"`
	Instance  string `mapstructure:"instance"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("byteorder", func(fl validator.FieldLevel) bool {
		_, err := protocol.ParseByteOrder(fl.Field().String())
		return err == nil
	})
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", fmt.Sprintf(":%d", protocol.StandardTCPPort))
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log.level", "")
	v.SetDefault("log.file", "")
	v.SetDefault("protocol.byte_order", "native")
	v.SetDefault("protocol.strict_total_length", false)
	v.SetDefault("protocol.poll_interval", protocol.DefaultPollInterval)
	v.SetDefault("protocol.read_timeout", time.Duration(0))
	v.SetDefault("protocol.max_payload_bytes", protocol.DefaultLimits().MaxPayloadBytes)
	v.SetDefault("sink.dir", "")
	v.SetDefault("discovery.advertise", false)
	v.SetDefault("discovery.instance", "")
}

// Load reads configPath (optional; a missing file is not an error when the
// path is empty) and overlays environment variables and flags.
// Flags are bound by name with '-' mapped to the key separator, e.g. --sink-dir -> sink.dir.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("volstream")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// bindFlags binds every flag whose name maps onto a known key: "sink-dir" -> sink.dir,
// "metrics-addr" -> metrics_addr, or a unique section suffix such as "byte-order" ->
// protocol.byte_order. Other flags are ignored.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	keys := v.AllKeys()
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if key := flagKey(f.Name, keys, known); key != "" {
			err = v.BindPFlag(key, f)
		}
	})
	return err
}

func flagKey(name string, keys []string, known map[string]bool) string {
	dotted := strings.ReplaceAll(name, "-", ".")
	if known[dotted] {
		return dotted
	}
	underscored := strings.ReplaceAll(name, "-", "_")
	if known[underscored] {
		return underscored
	}
	match := ""
	for _, k := range keys {
		if strings.HasSuffix(k, "."+underscored) {
			if match != "" {
				return ""
			}
			match = k
		}
	}
	return match
}

func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// ProtocolOptions converts the protocol section into codec options.
func (c *Config) ProtocolOptions() (protocol.Options, error) {
	opts := protocol.DefaultOptions()
	order, err := protocol.ParseByteOrder(c.Protocol.ByteOrder)
	if err != nil {
		return opts, err
	}
	opts.ByteOrder = order
	opts.StrictTotalLength = c.Protocol.StrictTotalLength
	if c.Protocol.PollInterval > 0 {
		opts.PollInterval = c.Protocol.PollInterval
	}
	opts.ReadTimeout = c.Protocol.ReadTimeout
	if c.Protocol.MaxPayloadBytes > 0 {
		opts.Limits.MaxPayloadBytes = c.Protocol.MaxPayloadBytes
	}
	return opts, nil
}
