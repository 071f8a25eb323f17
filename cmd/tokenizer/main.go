package main

import (
	"bufio"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
)

// config structure
type tokenizerConfig struct {
	lib.BaseConfig `mapstructure:",squash"`
	Labels         []string
	In             string
	Out            string
}

var config tokenizerConfig

func initConfig() {
	err := lib.InitializeConfig("./config/trainer.yml", map[string]interface{}{
		"log_level": "info",
	}, &config, func(flags *pflag.FlagSet) {
		flags.String("in", "", "A text format corpus.")
		flags.String("out", "", "Where to write the tokens format corpus.")
	})
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}

// tokenizer rewrites a raw text corpus as the pre-tokenized corpus the trainer loads fastest.
func main() {
	initConfig()

	labels, err := corpus.NewLabels(config.Labels)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	in, err := os.Open(config.In)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	defer in.Close()
	out, err := os.Create(config.Out)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	buf := bufio.NewWriter(out)

	w := corpus.NewWriter(buf, labels)
	sentences := 0
	err = corpus.Read(in, labels, corpus.TextFormat, func(s corpus.Sentence) error {
		sentences++
		return w.Write(s)
	})
	if err != nil {
		log.Fatal().Err(err).Int("sentence", sentences).Send()
	}
	if err := buf.Flush(); err != nil {
		log.Fatal().Err(err).Send()
	}
	if err := out.Close(); err != nil {
		log.Fatal().Err(err).Send()
	}
	log.Info().Str("in", config.In).Str("out", config.Out).Int("sentences", sentences).Msg("corpus tokenized")
}
