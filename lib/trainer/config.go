package trainer

import (
	"fmt"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/features"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/score"
)

// Config drives one training run. It is decoded once and never changed; the decaying learning and
// drop rates live in the model.
type Config struct {
	BatchSize     int             `mapstructure:"batch_size"`
	Shuffle       bool            `mapstructure:"shuffle"`
	OverlapRate   float64         `mapstructure:"overlap_rate"`
	DisjointRate  float64         `mapstructure:"disjoint_rate"`
	Window        int             `mapstructure:"window"`
	FeatureChoice features.Choice `mapstructure:"feature_choice"`
	MaxIter       int             `mapstructure:"max_iter"`
	LearningRate  float64         `mapstructure:"learning_rate"`
	DropRate      float64         `mapstructure:"drop_rate"`
	// EvalBatchSize overrides the evaluation batch size derived from the feature choice.
	EvalBatchSize int `mapstructure:"eval_batch_size"`
	// EvalEvery adds an evaluation every n epochs on top of the one after the last epoch.
	EvalEvery int        `mapstructure:"eval_every"`
	BufferDir string     `mapstructure:"buffer_dir"`
	ModelPath string     `mapstructure:"model_path"`
	SkipTest  bool       `mapstructure:"skip_test"`
	Seed      int64      `mapstructure:"seed"`
	Grid      score.Grid `mapstructure:"grid"`
}

var DefaultConfig = Config{
	BatchSize:     512,
	Shuffle:       true,
	OverlapRate:   0.08,
	DisjointRate:  0.016,
	Window:        7,
	FeatureChoice: features.DefaultChoice,
	MaxIter:       64,
	LearningRate:  0.1024,
	BufferDir:     "buffer",
	Grid:          score.DefaultGrid,
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxIter <= 0 {
		return fmt.Errorf("max_iter must be positive, got %d", c.MaxIter)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", c.Window)
	}
	if len(c.Grid.Algorithms) == 0 || len(c.Grid.Thresholds) == 0 {
		return fmt.Errorf("search grid is empty")
	}
	for _, a := range c.Grid.Algorithms {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return c.FeatureChoice.Validate()
}

// EvalSize is the batch size of validation and test passes. Char convolution is memory hungry.
func (c Config) EvalSize() int {
	if c.EvalBatchSize > 0 {
		return c.EvalBatchSize
	}
	if c.FeatureChoice.Has(features.CharConvolution) {
		return 256
	}
	return 1024
}

func (c Config) evaluates(epoch int) bool {
	if epoch+1 == c.MaxIter {
		return true
	}
	return c.EvalEvery > 0 && (epoch+1)%c.EvalEvery == 0
}
