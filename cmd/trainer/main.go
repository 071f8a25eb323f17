package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/batch"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/features"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer/local"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer/remote"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/model"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/trainer"
)

// config structure
type trainerConfig struct {
	lib.BaseConfig `mapstructure:",squash"`
	trainer.Config `mapstructure:",squash"`
	Corpus         struct {
		Train string
		Valid string
		// Test defaults to the training corpus.
		Test      string
		Auxiliary string
		Format    corpus.Format
	}
	Labels     []string
	Workers    int
	QueueSize  int    `mapstructure:"queue_size"`
	SecondPass bool   `mapstructure:"second_pass"`
	Language   string `mapstructure:"language"`
	// Features, when present, replaces feature_choice with named switches.
	Features               *features.Toggles `mapstructure:"features"`
	features.EncoderConfig `mapstructure:",squash"`
	Gazetteer              struct {
		Backend      gazetteer.Type
		Path         string
		PipelineSize int `mapstructure:"pipeline_size"`
	}
	Redis         remote.RedisConfig
	Elasticsearch remote.ElasticsearchConfig
	Metrics       struct {
		Listen string
	}
}

var config trainerConfig

func initConfig() {
	// initialise config with defaults.
	err := lib.InitializeConfig("./config/trainer.yml", map[string]interface{}{
		"log_level":       "info",
		"batch_size":      trainer.DefaultConfig.BatchSize,
		"shuffle":         trainer.DefaultConfig.Shuffle,
		"overlap_rate":    trainer.DefaultConfig.OverlapRate,
		"disjoint_rate":   trainer.DefaultConfig.DisjointRate,
		"window":          trainer.DefaultConfig.Window,
		"feature_choice":  int(trainer.DefaultConfig.FeatureChoice),
		"max_iter":        trainer.DefaultConfig.MaxIter,
		"learning_rate":   trainer.DefaultConfig.LearningRate,
		"drop_rate":       0,
		"buffer_dir":      trainer.DefaultConfig.BufferDir,
		"model_path":      "model/mention.yml",
		"seed":            1,
		"language":        "eng",
		"workers":         4,
		"queue_size":      16,
		"feature_dim":     features.DefaultEncoderConfig.Dim,
		"word_alpha":      features.DefaultEncoderConfig.WordAlpha,
		"char_alpha":      features.DefaultEncoderConfig.CharAlpha,
		"char_length":     features.DefaultEncoderConfig.CharLength,
		"grid": map[string]interface{}{
			"algorithms": []int{int(decode.HighestFirst), int(decode.LongestFirst)},
			"thresholds": []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
		},
		"corpus": map[string]interface{}{
			"format": corpus.TokensFormat,
		},
		"gazetteer": map[string]interface{}{
			"backend":       gazetteer.Local,
			"pipeline_size": 10000,
		},
		"redis": map[string]interface{}{
			"host": "localhost",
			"port": 6379,
		},
		"elasticsearch": map[string]interface{}{
			"host":  "localhost",
			"port":  9200,
			"index": "gazetteer",
		},
	}, &config, func(flags *pflag.FlagSet) {
		flags.Bool("second_pass", false, "Restrict the feature choice to the second pass preset.")
		flags.Bool("skip_test", false, "Do not evaluate the test corpus.")
	})
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	if config.Features != nil {
		config.FeatureChoice = config.Features.Choice()
	}
	config.FeatureChoice = features.ChoiceFor(config.FeatureChoice, config.SecondPass, config.Language)
	if config.Corpus.Test == "" {
		config.Corpus.Test = config.Corpus.Train
	}
}

// corpusSet is one loaded corpus with its candidates, enumerated once and shared by gazetteer
// warm-up and batch construction.
type corpusSet struct {
	sentences  []corpus.Sentence
	candidates []span.Candidate
}

func enumerate(name string, sentences []corpus.Sentence, labels *corpus.Labels) (corpusSet, error) {
	candidates, counts, err := span.EnumerateCorpus(sentences, config.Window, labels.Background())
	if err != nil {
		return corpusSet{}, err
	}
	log.Info().
		Str("set", name).
		Int("positive", counts.Positive).
		Int("overlap", counts.Overlap).
		Int("disjoint", counts.Disjoint).
		Int("unrecoverable", counts.Unrecoverable).
		Msg("candidates enumerated")
	return corpusSet{sentences: sentences, candidates: candidates}, nil
}

func loadGazetteer(ctx context.Context, sets map[string]corpusSet) (features.GazetteerLookup, error) {
	switch config.Gazetteer.Backend {
	case gazetteer.Local:
		if config.Gazetteer.Path == "" {
			return nil, errors.New("gazetteer.path is required by the local backend")
		}
		return local.Load(config.Gazetteer.Path)
	case gazetteer.Redis, gazetteer.Elasticsearch:
	default:
		return nil, errors.New("invalid gazetteer backend")
	}

	var client remote.Client
	if config.Gazetteer.Backend == gazetteer.Redis {
		client = remote.NewRedisClient(config.Redis)
	} else {
		var err error
		if client, err = remote.NewElasticsearchClient(config.Elasticsearch); err != nil {
			return nil, err
		}
	}
	if !client.Ready() {
		return nil, errors.New("gazetteer backend is not ready")
	}

	var keys []string
	for _, set := range sets {
		keys = append(keys, features.GazetteerKeys(set.sentences, set.candidates)...)
	}
	return remote.Warm(ctx, client, keys, config.Gazetteer.PipelineSize)
}

func dataset(name string, set corpusSet, extractor features.Extractor) *trainer.Dataset {
	return &trainer.Dataset{
		Name:      name,
		Sentences: set.sentences,
		Batches: batch.New(set.candidates, set.sentences, extractor, batch.Options{
			Workers:   config.Workers,
			QueueSize: config.QueueSize,
			Seed:      config.Seed,
		}),
	}
}

func main() {
	initConfig()

	ctx, cancel := lib.NotifyInterrupt(context.Background())
	defer cancel()

	if config.Metrics.Listen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("listen", config.Metrics.Listen).Msg("serving metrics")
			if err := http.ListenAndServe(config.Metrics.Listen, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	labels, err := corpus.NewLabels(config.Labels)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	paths := map[string]string{
		"train":     config.Corpus.Train,
		"valid":     config.Corpus.Valid,
		"test":      config.Corpus.Test,
		"auxiliary": config.Corpus.Auxiliary,
	}
	sets := map[string]corpusSet{}
	for name, path := range paths {
		if path == "" {
			continue
		}
		sentences, err := corpus.LoadFile(path, labels, config.Corpus.Format)
		if err != nil {
			log.Fatal().Err(err).Str("set", name).Send()
		}
		if sets[name], err = enumerate(name, sentences, labels); err != nil {
			log.Fatal().Err(err).Str("set", name).Send()
		}
	}

	var gaz features.GazetteerLookup
	if config.FeatureChoice.Has(features.Gazetteer) {
		if gaz, err = loadGazetteer(ctx, sets); err != nil {
			log.Fatal().Err(err).Send()
		}
	}
	encoder, err := features.NewHashedEncoder(config.EncoderConfig, labels, gaz)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	var data trainer.Datasets
	for name, target := range map[string]**trainer.Dataset{
		"train":     &data.Train,
		"valid":     &data.Valid,
		"test":      &data.Test,
		"auxiliary": &data.Auxiliary,
	} {
		if set, ok := sets[name]; ok {
			*target = dataset(name, set, encoder)
		}
	}

	m, err := model.NewLinear(model.Config{
		RunID:         uuid.NewString(),
		Labels:        labels.Names(),
		Window:        config.Window,
		FeatureChoice: config.FeatureChoice,
		LearningRate:  config.LearningRate,
		DropRate:      config.DropRate,
		Settings:      decode.DefaultSettings,
	}, encoder, config.Seed)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	t, err := trainer.New(config.Config, m, labels, data)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	summary, err := t.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	log.Info().
		Int("epochs", summary.Epochs).
		Str("settings", summary.Settings.String()).
		Str("model", config.ModelPath).
		Msg("training finished")
}
