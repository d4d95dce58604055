package config

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "LOADGEN"

// LoadConfig reads the default config file, merges each user supplied file over it in order, applies
// LOADGEN_ prefixed environment overrides and unmarshals the result into config.
// A missing default file is not an error; a missing user file is.
func LoadConfig(v *viper.Viper, config interface{}, defaultPath string, userFiles []string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrapf(err, "reading default config from %s", defaultPath)
		}
		log.Debugf("no default config found in %s", defaultPath)
	}

	for _, f := range userFiles {
		v.SetConfigFile(f)
		if err := v.MergeInConfig(); err != nil {
			return errors.Wrapf(err, "merging config file %s", f)
		}
		log.Infof("Read config from %s", f)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, CustomHooks...); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
