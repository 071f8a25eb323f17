// Package model holds the classifier fed by the batch streams and the configuration persisted with it.
package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/batch"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/features"
)

type Evaluation struct {
	Loss          float64
	Predicted     []int
	Probabilities [][]float64
}

type Model interface {
	// Train runs one optimisation step on b and returns its mean loss.
	Train(ctx context.Context, b *batch.Batch) (float64, error)
	Eval(ctx context.Context, b *batch.Batch) (Evaluation, error)
	Config() Config
	SetLearningRate(learningRate, dropRate float64)
	SetSettings(settings decode.Settings)
	Save(path string) error
}

// Config is everything needed to rebuild and decode with a trained model.
type Config struct {
	RunID           string          `yaml:"run_id"`
	Labels          []string        `yaml:"labels"`
	Window          int             `yaml:"window"`
	FeatureChoice   features.Choice `yaml:"feature_choice"`
	LearningRate    float64         `yaml:"learning_rate"`
	DropRate        float64         `yaml:"drop_rate"`
	decode.Settings `yaml:",inline"`
}

func (c Config) Validate() error {
	if len(c.Labels) == 0 {
		return fmt.Errorf("model has no labels")
	}
	if c.Window < 1 {
		return fmt.Errorf("window must be positive, got %d", c.Window)
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return fmt.Errorf("drop rate must be within [0, 1), got %g", c.DropRate)
	}
	if err := c.FeatureChoice.Validate(); err != nil {
		return err
	}
	return c.Settings.Validate()
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, err
	}
	c := Config{Settings: decode.DefaultSettings}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("parsing model config %s: %w", path, err)
	}
	return c, c.Validate()
}

func SaveConfig(path string, c Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
