// Package config loads process configuration from PERCH_-prefixed
// environment variables, with an optional .env file for local runs.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/perchdb/perch/internal/log"
)

// Prefix is the environment namespace both binaries read.
const Prefix = "PERCH_"

// Coordinator configures the coordinator binary. Duration fields
// accept Go duration strings ("90s", "2m").
type Coordinator struct {
	Listen         string        `mapstructure:"listen"`
	ServerID       string        `mapstructure:"serverid"`
	TopologyFile   string        `mapstructure:"topologyfile"`
	DeployTimeout  time.Duration `mapstructure:"deploytimeout"`
	DeployWorkers  int           `mapstructure:"deployworkers"`
	SweepInterval  time.Duration `mapstructure:"sweepinterval"`
	HealthInterval time.Duration `mapstructure:"healthinterval"`
	Log            log.Config    `mapstructure:"log"`
}

// DBServer configures a database server binary. Advertise is the
// address registered with the coordinator; it defaults to Listen.
type DBServer struct {
	Listen        string        `mapstructure:"listen"`
	ServerID      string        `mapstructure:"serverid"`
	Advertise     string        `mapstructure:"advertise"`
	Coordinator   string        `mapstructure:"coordinator"`
	SweepInterval time.Duration `mapstructure:"sweepinterval"`
	Log           log.Config    `mapstructure:"log"`
}

// Load fills target from the environment. Fields already set on
// target act as defaults; only keys present in the environment or the
// .env file overwrite them.
func Load(prefix string, target any) error {
	v := viper.New()

	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(errors.Cause(err)) {
				return errors.Wrap(err, "read .env")
			}
		}
	}

	// AutomaticEnv does not surface unknown keys to Unmarshal, so
	// matching variables are copied in explicitly, PERCH_LOG_LEVEL
	// becoming log.level.
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		propKey := strings.TrimPrefix(key, prefixUpper)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
		propKey = strings.TrimPrefix(propKey, ".")
		v.Set(propKey, value)
	}

	if err := v.Unmarshal(target); err != nil {
		return errors.Wrap(err, "unmarshal config")
	}
	return nil
}
