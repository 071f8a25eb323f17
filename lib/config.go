/*
 * Copyright 2022 Medicines Discovery Catapult
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *     http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lib

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlag = "config"

type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

/**
	InitializeConfig standardises config initialization across the trainer and the decode api.

	Usage:

	Config is read from a yml file. By default this is located at defaultPath, but it can be overridden
	with the --config flag. For example, if defaultPath is "./config/trainer.yml" then a config map with a
	trainer.yml key can be mounted to $(pwd)/config.

	Keys which exist on defaultConfig but NOT in the config yaml are still used.

	Env vars overwrite config keys if the env var has the same name as the key (uppercased, with "."
	replaced by "_"), e.g. GAZETTEER_BACKEND overwrites gazetteer.backend.

	flags are extra command line flags registered by the caller. They are bound into viper so that
	e.g. --second_pass=true overrides the second_pass key.

	targetStruct must be a pointer to a struct which the config can be unmarshalled to. It is decoded
	once; callers should treat the result as immutable and pass it into component constructors.
**/
func InitializeConfig(defaultPath string, defaultConfig map[string]interface{}, targetStruct interface{}, flags ...func(*pflag.FlagSet)) error {
	if targetStruct == nil {
		return errors.New("config target must not be nil")
	}

	pflag.String(configFlag, defaultPath, "The config file path.")
	for _, register := range flags {
		register(pflag.CommandLine)
	}
	pflag.Parse()

	v := viper.New()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return err
	}

	configFile := v.GetString(configFlag)
	if configFile != "" && !filepath.IsAbs(configFile) {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return err
		}
		configFile = abs
	}

	for k, val := range defaultConfig {
		v.SetDefault(k, val)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigName(strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile)))
		v.AddConfigPath(filepath.Dir(configFile))
		err := v.ReadInConfig()
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warn().Err(err).Str("path", configFile).Msg("default settings applied")
		} else if err != nil {
			return err
		}
	}

	var bc BaseConfig
	if err := v.Unmarshal(&bc); err != nil {
		return err
	}
	if bc.LogLevel != "" {
		lvl, err := zerolog.ParseLevel(bc.LogLevel)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(lvl)
	}

	return v.Unmarshal(targetStruct)
}
