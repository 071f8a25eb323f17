package trainer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/batch"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/features"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/model"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

// oracleModel predicts every target with probability 0.65.
type oracleModel struct {
	mock.Mock
	classes int
	trained int
}

func (m *oracleModel) Train(_ context.Context, b *batch.Batch) (float64, error) {
	m.trained++
	return 0.5, nil
}

func (m *oracleModel) Eval(_ context.Context, b *batch.Batch) (model.Evaluation, error) {
	e := model.Evaluation{Loss: 0.25}
	for _, target := range b.Targets {
		p := make([]float64, m.classes)
		for k := range p {
			p[k] = 0.35 / float64(m.classes-1)
		}
		p[target] = 0.65
		e.Predicted = append(e.Predicted, target)
		e.Probabilities = append(e.Probabilities, p)
	}
	return e, nil
}

func (m *oracleModel) Config() model.Config {
	return m.Called().Get(0).(model.Config)
}

func (m *oracleModel) SetLearningRate(learningRate, dropRate float64) {
	m.Called(learningRate, dropRate)
}

func (m *oracleModel) SetSettings(settings decode.Settings) {
	m.Called(settings)
}

func (m *oracleModel) Save(path string) error {
	return m.Called(path).Error(0)
}

// stubExtractor returns a single constant family.
type stubExtractor struct{}

func (stubExtractor) Extract(span.Candidate, *corpus.Sentence, features.Choice) (features.Vector, error) {
	return features.Vector{features.CharInitial: {1}}, nil
}

func (stubExtractor) Dim(features.Family) int {
	return 1
}

func stubDataset(t *testing.T, name string, copies int) *Dataset {
	sentences := []corpus.Sentence{}
	for i := 0; i < copies; i++ {
		sentences = append(sentences,
			corpus.NewSentence([]string{"Alice", "visited", "Paris"},
				corpus.Mention{Start: 0, End: 1, Label: per}, corpus.Mention{Start: 2, End: 3, Label: loc}))
	}
	candidates, _, err := span.EnumerateCorpus(sentences, 2, 2)
	require.NoError(t, err)
	return &Dataset{
		Name:      name,
		Sentences: sentences,
		Batches:   batch.New(candidates, sentences, stubExtractor{}, batch.Options{Workers: 2, Seed: 5}),
	}
}

func stubConfig(t *testing.T) Config {
	dir, err := os.MkdirTemp("", "trainer")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := DefaultConfig
	cfg.Window = 2
	cfg.BatchSize = 2
	cfg.OverlapRate = 1
	cfg.DisjointRate = 1
	cfg.FeatureChoice = features.Choice(1 << features.CharInitial)
	cfg.MaxIter = 2
	cfg.LearningRate = 0.4
	cfg.BufferDir = filepath.Join(dir, "buffer")
	cfg.ModelPath = filepath.Join(dir, "mention.yml")
	return cfg
}

func TestTrainer_persistsSearchedSettings(t *testing.T) {
	cfg := stubConfig(t)
	labels, err := corpus.NewLabels([]string{"PER", "LOC"})
	require.NoError(t, err)

	m := &oracleModel{classes: 3}
	m.On("Config").Return(model.Config{RunID: "mock"})
	m.On("SetLearningRate", 0.4, 0.0).Once()
	m.On("SetLearningRate", 0.4*math.Pow(0.5, 0.5), 0.0).Once()
	best := decode.Settings{Thresholds: [2]float64{0.3, 0.3}, Algorithms: [2]decode.Algorithm{decode.HighestFirst, decode.HighestFirst}}
	m.On("SetSettings", best).Once()
	m.On("Save", cfg.ModelPath).Return(nil).Twice()

	tr, err := New(cfg, m, labels, Datasets{Train: stubDataset(t, "train", 3), Valid: stubDataset(t, "valid", 2)})
	require.NoError(t, err)
	summary, err := tr.Run(context.Background())
	require.NoError(t, err)

	m.AssertExpectations(t)
	assert.True(t, summary.Searched)
	assert.Equal(t, best, summary.Settings)
	assert.Equal(t, 1.0, summary.Valid.F1())
	assert.Nil(t, summary.Test)
}

func TestTrainer_mixesHumanBatchesIntoAuxiliaryTraining(t *testing.T) {
	cfg := stubConfig(t)
	cfg.MaxIter = 1
	cfg.Shuffle = false
	cfg.ModelPath = ""
	labels, err := corpus.NewLabels([]string{"PER", "LOC"})
	require.NoError(t, err)

	m := &oracleModel{classes: 3}
	m.On("Config").Return(model.Config{RunID: "mock"})
	m.On("SetLearningRate", mock.Anything, mock.Anything)
	m.On("SetSettings", mock.Anything)

	auxiliary := stubDataset(t, "distant", 2)
	tr, err := New(cfg, m, labels, Datasets{
		Train:     stubDataset(t, "human", 1),
		Valid:     stubDataset(t, "valid", 1),
		Auxiliary: auxiliary,
	})
	require.NoError(t, err)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)

	full := auxiliary.Batches.Expected(tr.trainRequest()) / cfg.BatchSize
	assert.GreaterOrEqual(t, m.trained, 2*full)
	assert.LessOrEqual(t, m.trained, 3*full)
	m.AssertNotCalled(t, "Save", mock.Anything)
}

func TestNew_requiresData(t *testing.T) {
	labels, err := corpus.NewLabels([]string{"PER"})
	require.NoError(t, err)
	_, err = New(DefaultConfig, &oracleModel{}, labels, Datasets{})
	assert.Error(t, err)
}
