package trainer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/model"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

// epochSnapshot is the model state seen when an epoch starts.
type epochSnapshot struct {
	settings  decode.Settings
	saved     bool
	predicted bool
	searched  int
}

// epochRecorder snapshots the model at the start of every epoch, which the trainer marks by
// setting the learning rate.
type epochRecorder struct {
	*model.Linear
	modelPath     string
	snapshots     []epochSnapshot
	settingsCalls int
}

func (r *epochRecorder) SetLearningRate(learningRate, dropRate float64) {
	_, err := os.Stat(r.modelPath)
	_, perr := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(r.modelPath)), "buffer", ValidPredicted))
	r.snapshots = append(r.snapshots, epochSnapshot{
		settings:  r.Config().Settings,
		saved:     err == nil,
		predicted: perr == nil,
		searched:  r.settingsCalls,
	})
	r.Linear.SetLearningRate(learningRate, dropRate)
}

func (r *epochRecorder) SetSettings(settings decode.Settings) {
	r.settingsCalls++
	r.Linear.SetSettings(settings)
}

func countLines(path string) int {
	f, err := os.Open(path)
	Expect(err).Should(BeNil())
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n
}

var _ = Describe("Trainer", func() {

	var _ = Describe("end to end with a linear model", func() {

		var (
			dir     string
			cfg     Config
			summary Summary
			linear  *model.Linear
		)

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "trainer")
			Expect(err).Should(BeNil())
			labels := testLabels()
			encoder := testEncoder(labels)

			cfg = DefaultConfig
			cfg.Window = 2
			cfg.BatchSize = 4
			cfg.OverlapRate = 1
			cfg.DisjointRate = 0.5
			cfg.FeatureChoice = testChoice
			cfg.MaxIter = 4
			cfg.LearningRate = 0.5
			cfg.BufferDir = filepath.Join(dir, "buffer")
			cfg.ModelPath = filepath.Join(dir, "model", "mention.yml")
			cfg.Seed = 1

			linear, err = model.NewLinear(model.Config{
				RunID:         "e2e",
				Labels:        labels.Names(),
				Window:        cfg.Window,
				FeatureChoice: cfg.FeatureChoice,
				LearningRate:  cfg.LearningRate,
				Settings:      decode.DefaultSettings,
			}, encoder, 1)
			Expect(err).Should(BeNil())

			train := testDataset("train", testSentences(4), cfg.Window, labels, encoder)
			valid := testDataset("valid", testSentences(1), cfg.Window, labels, encoder)
			test := testDataset("test", testSentences(2), cfg.Window, labels, encoder)

			t, err := New(cfg, linear, labels, Datasets{Train: train, Valid: valid, Test: test})
			Expect(err).Should(BeNil())
			summary, err = t.Run(context.Background())
			Expect(err).Should(BeNil())
		})

		AfterEach(func() {
			Expect(os.RemoveAll(dir)).Should(Succeed())
		})

		It("runs every epoch", func() {
			Expect(summary.Epochs).Should(Equal(4))
			Expect(summary.TrainCost).Should(BeNumerically(">", 0))
		})

		It("writes one prediction per candidate", func() {
			candidates, _, err := span.EnumerateCorpus(testSentences(1), cfg.Window, testLabels().Background())
			Expect(err).Should(BeNil())
			Expect(countLines(filepath.Join(cfg.BufferDir, ValidPredicted))).Should(Equal(len(candidates)))
			Expect(countLines(filepath.Join(cfg.BufferDir, TestPredicted))).Should(Equal(2 * len(candidates)))
		})

		It("searches the decoding settings and reports both sets with them", func() {
			Expect(summary.Searched).Should(BeTrue())
			Expect(summary.Valid).ShouldNot(BeNil())
			Expect(summary.Test).ShouldNot(BeNil())
			Expect(summary.Valid.Settings).Should(Equal(summary.Settings))
			Expect(summary.Test.Settings).Should(Equal(summary.Settings))
			Expect(summary.Valid.Gold).Should(Equal(4))
		})

		It("saves the model with the persisted settings", func() {
			saved, err := model.LoadConfig(cfg.ModelPath)
			Expect(err).Should(BeNil())
			Expect(saved.RunID).Should(Equal("e2e"))
			Expect(saved.Settings).Should(Equal(summary.Settings))
			Expect(saved.LearningRate).Should(BeNumerically("<", cfg.LearningRate))
		})
	})

	var _ = Describe("evaluating before the search starts", func() {

		var (
			dir     string
			cfg     Config
			linear  *model.Linear
			trainer *Trainer
		)

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "trainer")
			Expect(err).Should(BeNil())
			labels := testLabels()
			encoder := testEncoder(labels)

			cfg = DefaultConfig
			cfg.Window = 2
			cfg.BatchSize = 4
			cfg.FeatureChoice = testChoice
			cfg.MaxIter = 4
			cfg.EvalEvery = 1
			cfg.SkipTest = true
			cfg.BufferDir = filepath.Join(dir, "buffer")
			cfg.ModelPath = filepath.Join(dir, "model", "mention.yml")

			linear, err = model.NewLinear(model.Config{
				RunID:         "early",
				Labels:        labels.Names(),
				Window:        cfg.Window,
				FeatureChoice: cfg.FeatureChoice,
				LearningRate:  cfg.LearningRate,
				Settings:      decode.DefaultSettings,
			}, encoder, 1)
			Expect(err).Should(BeNil())
		})

		AfterEach(func() {
			Expect(os.RemoveAll(dir)).Should(Succeed())
		})

		It("keeps the default settings until half of the epochs have run", func() {
			labels := testLabels()
			encoder := testEncoder(labels)
			recorder := &epochRecorder{Linear: linear, modelPath: cfg.ModelPath}
			var err error
			trainer, err = New(cfg, recorder, labels, Datasets{
				Train: testDataset("train", testSentences(4), cfg.Window, labels, encoder),
				Valid: testDataset("valid", testSentences(1), cfg.Window, labels, encoder),
			})
			Expect(err).Should(BeNil())
			_, err = trainer.Run(context.Background())
			Expect(err).Should(BeNil())

			Expect(recorder.snapshots).Should(HaveLen(4))
			// the snapshot taken when epoch 2 starts shows the state after the epoch 1 evaluation
			afterEpochOne := recorder.snapshots[2]
			Expect(afterEpochOne.settings).Should(Equal(decode.DefaultSettings))
			Expect(afterEpochOne.saved).Should(BeFalse())
			Expect(afterEpochOne.predicted).Should(BeTrue())
			Expect(afterEpochOne.searched).Should(Equal(0))
		})

		It("writes and closes the prediction file on every evaluation", func() {
			labels := testLabels()
			encoder := testEncoder(labels)
			valid := testDataset("valid", testSentences(1), cfg.Window, labels, encoder)
			var err error
			trainer, err = New(cfg, linear, labels, Datasets{Train: valid, Valid: valid})
			Expect(err).Should(BeNil())

			candidates, _, err := span.EnumerateCorpus(testSentences(1), cfg.Window, labels.Background())
			Expect(err).Should(BeNil())
			path := filepath.Join(cfg.BufferDir, ValidPredicted)
			for i := 0; i < 2; i++ {
				cost, err := trainer.evaluate(context.Background(), valid, path)
				Expect(err).Should(BeNil())
				Expect(cost).Should(BeNumerically(">", 0))
				Expect(countLines(path)).Should(Equal(len(candidates)))
			}

			Expect(os.WriteFile(filepath.Join(dir, "blocked"), nil, 0o644)).Should(Succeed())
			_, err = trainer.evaluate(context.Background(), valid, filepath.Join(dir, "blocked", ValidPredicted))
			Expect(err).ShouldNot(BeNil())
		})
	})

	var _ = Describe("configuration", func() {

		It("rejects invalid configurations", func() {
			cfg := DefaultConfig
			cfg.BatchSize = 0
			Expect(cfg.Validate()).ShouldNot(BeNil())

			cfg = DefaultConfig
			cfg.Grid.Thresholds = nil
			Expect(cfg.Validate()).ShouldNot(BeNil())

			cfg = DefaultConfig
			cfg.FeatureChoice = 1 << 12
			Expect(cfg.Validate()).ShouldNot(BeNil())
		})

		It("derives the evaluation batch size from the feature choice", func() {
			cfg := DefaultConfig
			Expect(cfg.EvalSize()).Should(Equal(256))
			cfg.FeatureChoice = testChoice
			Expect(cfg.EvalSize()).Should(Equal(1024))
			cfg.EvalBatchSize = 10
			Expect(cfg.EvalSize()).Should(Equal(10))
		})

		It("evaluates after the last epoch and every eval_every epochs", func() {
			cfg := DefaultConfig
			cfg.MaxIter = 6
			Expect(cfg.evaluates(4)).Should(BeFalse())
			Expect(cfg.evaluates(5)).Should(BeTrue())
			cfg.EvalEvery = 2
			Expect(cfg.evaluates(1)).Should(BeTrue())
			Expect(cfg.evaluates(2)).Should(BeFalse())
		})
	})
})
