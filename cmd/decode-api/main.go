package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/model"
)

// config structure
type decodeAPIConfig struct {
	lib.BaseConfig `mapstructure:",squash"`
	Server         struct {
		HttpPort int `mapstructure:"http_port"`
	}
	ModelPath string `mapstructure:"model_path"`
}

var config decodeAPIConfig

func initConfig() {
	// Set default config values
	err := lib.InitializeConfig("./config/decode-api.yml", map[string]interface{}{
		"log_level":  "info",
		"model_path": "model/mention.yml",
		"server": map[string]interface{}{
			"http_port": 8080,
		},
	}, &config)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}

func main() {
	initConfig()

	cfg, err := model.LoadConfig(config.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("model", config.ModelPath).Send()
	}
	c, err := newController(cfg)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	log.Info().Str("run_id", cfg.RunID).Str("settings", cfg.Settings.String()).Msg("model settings loaded")

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(lib.JsonLogFormatter), gin.Recovery())
	server{controller: c}.RegisterRoutes(r)

	log.Info().Int("port", config.Server.HttpPort).Msg("ready to accept requests")
	if err := r.Run(fmt.Sprintf(":%d", config.Server.HttpPort)); err != nil {
		log.Fatal().Err(err).Send()
	}
}
