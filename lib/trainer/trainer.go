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

// Package trainer runs the epoch loop: training passes, evaluation passes, the decoding settings
// search and learning rate decay.
package trainer

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/batch"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/model"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/prediction"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/score"
)

const (
	ValidPredicted = "valid.predicted"
	TestPredicted  = "test.predicted"
)

// Dataset is a corpus with the batch constructor built over its candidates.
type Dataset struct {
	Name      string
	Sentences []corpus.Sentence
	Batches   *batch.Constructor
}

func (d *Dataset) String() string {
	return fmt.Sprintf("%s: %d sentences, %s", d.Name, len(d.Sentences), d.Batches)
}

type Datasets struct {
	Train *Dataset
	Valid *Dataset
	// Test is optional.
	Test *Dataset
	// Auxiliary, when set, is trained on in place of Train, with batches of Train mixed in.
	Auxiliary *Dataset
}

type Trainer struct {
	cfg    Config
	model  model.Model
	labels *corpus.Labels
	data   Datasets
	rng    *rand.Rand
}

// Summary describes the last evaluation of a run.
type Summary struct {
	Epochs    int
	TrainCost float64
	Valid     *score.Report
	Test      *score.Report
	Settings  decode.Settings
	Searched  bool
}

func New(cfg Config, m model.Model, labels *corpus.Labels, data Datasets) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if data.Train == nil || data.Valid == nil {
		return nil, fmt.Errorf("training and validation data are required")
	}
	return &Trainer{
		cfg:    cfg,
		model:  m,
		labels: labels,
		data:   data,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (t *Trainer) trainRequest() batch.Request {
	return batch.Request{
		BatchSize:    t.cfg.BatchSize,
		Shuffle:      t.cfg.Shuffle,
		OverlapRate:  t.cfg.OverlapRate,
		DisjointRate: t.cfg.DisjointRate,
		Choice:       t.cfg.FeatureChoice,
	}
}

func (t *Trainer) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Settings: decode.DefaultSettings}
	learningRate, dropRate := t.cfg.LearningRate, t.cfg.DropRate

	log.Info().
		Str("run_id", t.model.Config().RunID).
		Str("feature_choice", t.cfg.FeatureChoice.String()).
		Str("train", t.data.Train.String()).
		Str("valid", t.data.Valid.String()).
		Msg("training started")

	var human *batch.Stream
	if t.data.Auxiliary != nil {
		var err error
		human, err = t.data.Train.Batches.InfiniteMiniBatch(ctx, t.trainRequest())
		if err != nil {
			return summary, err
		}
		defer human.Stop()
	}

	for epoch := 0; epoch < t.cfg.MaxIter; epoch++ {
		t.model.SetLearningRate(learningRate, dropRate)
		epochGauge.Set(float64(epoch + 1))
		learningRateGauge.Set(learningRate)
		log.Info().Int("epoch", epoch+1).Float64("learning_rate", learningRate).Float64("drop_rate", dropRate).Msg("epoch started")

		cost, err := t.trainEpoch(ctx, human)
		if err != nil {
			return summary, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		costGauge.WithLabelValues("train").Set(cost)
		log.Info().Int("epoch", epoch+1).Float64("cost", cost).Msg("training set iterated")
		summary.Epochs, summary.TrainCost = epoch+1, cost

		if t.cfg.evaluates(epoch) {
			if err := t.evaluateEpoch(ctx, epoch, &summary); err != nil {
				return summary, fmt.Errorf("epoch %d: %w", epoch+1, err)
			}
		}

		if dropRate > 0 {
			learningRate *= math.Pow(0.5, 4/float64(t.cfg.MaxIter))
		} else {
			learningRate *= math.Pow(0.5, 0.5)
		}
		dropRate *= math.Pow(0.5, 2/float64(t.cfg.MaxIter))
	}

	if t.cfg.ModelPath != "" {
		if err := t.model.Save(t.cfg.ModelPath); err != nil {
			return summary, err
		}
	}
	log.Info().Str("buffer_dir", t.cfg.BufferDir).Msg("predictions written")
	return summary, nil
}

// trainEpoch makes one pass and returns the cost averaged over examples. Short batches are skipped.
func (t *Trainer) trainEpoch(ctx context.Context, human *batch.Stream) (float64, error) {
	source := t.data.Train
	if t.data.Auxiliary != nil {
		source = t.data.Auxiliary
	}
	req := t.trainRequest()
	total := source.Batches.Expected(req)

	stream, err := source.Batches.MiniBatch(ctx, req)
	if err != nil {
		return 0, err
	}

	cost, seen := 0.0, 0
	step := func(b *batch.Batch) error {
		c, err := t.model.Train(ctx, b)
		if err != nil {
			return err
		}
		cost += c * float64(b.Len())
		seen += b.Len()
		examplesCounter.Add(float64(b.Len()))
		return nil
	}

	err = stream.Each(ctx, func(b *batch.Batch) error {
		if b.Len() != req.BatchSize {
			return nil
		}
		examples := []*batch.Batch{b}
		if human != nil {
			mixed := 1 + t.rng.Intn(2)
			for i := 0; i < mixed; i++ {
				h, err := human.Next(ctx)
				if err != nil {
					return err
				}
				examples = append(examples, h)
			}
		}
		for _, e := range examples {
			if err := step(e); err != nil {
				return err
			}
		}
		log.Debug().Int("examples", seen).Int("total", total).Float64("cost", cost/float64(seen)).Msg("training")
		return nil
	})
	if err != nil {
		return 0, err
	}
	if seen == 0 {
		return 0, fmt.Errorf("no full batch of %d in %s", req.BatchSize, source.Name)
	}
	return cost / float64(seen), nil
}

// evaluate writes the predictions of an unshuffled pass over d to path and returns the mean cost.
func (t *Trainer) evaluate(ctx context.Context, d *Dataset, path string) (mean float64, err error) {
	f, err := prediction.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := prediction.NewWriter(f)

	stream, err := d.Batches.MiniBatch(ctx, batch.Request{
		BatchSize:    t.cfg.EvalSize(),
		OverlapRate:  1,
		DisjointRate: 1,
		Choice:       t.cfg.FeatureChoice,
	})
	if err != nil {
		return 0, err
	}

	cost, seen := 0.0, 0
	err = stream.Each(ctx, func(b *batch.Batch) error {
		e, err := t.model.Eval(ctx, b)
		if err != nil {
			return err
		}
		for i, target := range b.Targets {
			if err := w.Write(target, e.Predicted[i], e.Probabilities[i]); err != nil {
				return err
			}
		}
		cost += e.Loss * float64(b.Len())
		seen += b.Len()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	if seen == 0 {
		return 0, nil
	}
	return cost / float64(seen), nil
}

func (t *Trainer) evaluateEpoch(ctx context.Context, epoch int, summary *Summary) error {
	validPath := filepath.Join(t.cfg.BufferDir, ValidPredicted)
	testPath := filepath.Join(t.cfg.BufferDir, TestPredicted)

	validCost, err := t.evaluate(ctx, t.data.Valid, validPath)
	if err != nil {
		return fmt.Errorf("evaluating %s: %w", t.data.Valid.Name, err)
	}
	costGauge.WithLabelValues("valid").Set(validCost)
	event := log.Info().Float64("train", summary.TrainCost).Float64("valid", validCost)
	test := t.data.Test != nil && !t.cfg.SkipTest
	if test {
		testCost, err := t.evaluate(ctx, t.data.Test, testPath)
		if err != nil {
			return fmt.Errorf("evaluating %s: %w", t.data.Test.Name, err)
		}
		costGauge.WithLabelValues("test").Set(testCost)
		event = event.Float64("test", testCost)
	}
	event.Msg("cost")

	background := t.labels.Background()
	valid, err := prediction.ParseFile(validPath, t.data.Valid.Sentences, t.cfg.Window, background)
	if err != nil {
		return err
	}

	settings := decode.DefaultSettings
	summary.Searched = false
	if score.ShouldSearch(epoch, t.cfg.MaxIter) {
		result, err := score.Search(ctx, valid, t.cfg.Grid, background)
		if err != nil {
			return err
		}
		summary.Searched = true
		if result.Improved {
			settings = result.Best.Settings
			t.model.SetSettings(settings)
			if t.cfg.ModelPath != "" {
				if err := t.model.Save(t.cfg.ModelPath); err != nil {
					return err
				}
			}
		}
	}
	summary.Settings = settings
	log.Info().Str("settings", settings.String()).Msg("decoding settings")

	report, err := t.report(t.data.Valid.Name, valid, settings)
	if err != nil {
		return err
	}
	summary.Valid = &report

	if test {
		parsed, err := prediction.ParseFile(testPath, t.data.Test.Sentences, t.cfg.Window, background)
		if err != nil {
			return err
		}
		report, err := t.report(t.data.Test.Name, parsed, settings)
		if err != nil {
			return err
		}
		summary.Test = &report
	}
	return nil
}

func (t *Trainer) report(name string, sentences []score.Sentence, settings decode.Settings) (score.Report, error) {
	r, err := score.Evaluate(sentences, settings, t.labels.Background())
	if err != nil {
		return score.Report{}, err
	}
	f1Gauge.WithLabelValues(name).Set(r.F1())
	var table bytes.Buffer
	if err := r.Write(&table, t.labels); err != nil {
		return score.Report{}, err
	}
	log.Info().
		Str("set", name).
		Float64("precision", r.Precision()).
		Float64("recall", r.Recall()).
		Float64("f1", r.F1()).
		Msg(table.String())
	return r, nil
}
