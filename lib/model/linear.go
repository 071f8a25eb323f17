package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/batch"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/features"
)

// WeightsSuffix is appended to the config path to name the weights file.
const WeightsSuffix = ".weights.json"

// Dimensions reports the width of a feature family.
type Dimensions interface {
	Dim(f features.Family) int
}

// Linear is a softmax regression over the concatenated vectors of the enabled families, trained by
// SGD with input dropout.
type Linear struct {
	mut sync.Mutex
	cfg Config

	families []features.Family
	dims     []int
	inputs   int
	classes  int
	// weights[k] holds the input weights of class k followed by its bias.
	weights [][]float64
	rng     *rand.Rand
}

type weightsFile struct {
	Families []string    `json:"families"`
	Dims     []int       `json:"dims"`
	Weights  [][]float64 `json:"weights"`
}

func NewLinear(cfg Config, dims Dimensions, seed int64) (*Linear, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Linear{
		cfg:      cfg,
		families: cfg.FeatureChoice.Families(),
		classes:  len(cfg.Labels) + 1,
		rng:      rand.New(rand.NewSource(seed)),
	}
	for _, f := range m.families {
		d := dims.Dim(f)
		if d <= 0 {
			return nil, fmt.Errorf("family %s has no dimension", f)
		}
		m.dims = append(m.dims, d)
		m.inputs += d
	}
	m.weights = make([][]float64, m.classes)
	for k := range m.weights {
		m.weights[k] = make([]float64, m.inputs+1)
	}
	return m, nil
}

// Load restores a model saved at path.
func Load(path string, dims Dimensions) (*Linear, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	m, err := NewLinear(cfg, dims, 0)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Clean(path + WeightsSuffix))
	if err != nil {
		return nil, err
	}
	var w weightsFile
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parsing weights of %s: %w", path, err)
	}
	if len(w.Weights) != m.classes || len(w.Dims) != len(m.dims) {
		return nil, fmt.Errorf("weights of %s do not match its config", path)
	}
	for i, d := range w.Dims {
		if d != m.dims[i] {
			return nil, fmt.Errorf("weights of %s were trained with %s of width %d, not %d", path, m.families[i], d, m.dims[i])
		}
	}
	for k, row := range w.Weights {
		if len(row) != m.inputs+1 {
			return nil, fmt.Errorf("weights of %s do not match its config", path)
		}
		m.weights[k] = row
	}
	return m, nil
}

func (m *Linear) Config() Config {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.cfg
}

func (m *Linear) SetLearningRate(learningRate, dropRate float64) {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.cfg.LearningRate = learningRate
	m.cfg.DropRate = dropRate
}

func (m *Linear) SetSettings(settings decode.Settings) {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.cfg.Settings = settings
}

// Save writes the yaml config to path and the weights next to it.
func (m *Linear) Save(path string) error {
	m.mut.Lock()
	defer m.mut.Unlock()
	if err := SaveConfig(path, m.cfg); err != nil {
		return err
	}
	w := weightsFile{Dims: m.dims, Weights: m.weights}
	for _, f := range m.families {
		w.Families = append(w.Families, f.String())
	}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return os.WriteFile(path+WeightsSuffix, b, 0o644)
}

// row concatenates the family vectors of example i.
func (m *Linear) row(b *batch.Batch, i int) ([]float64, error) {
	x := make([]float64, 0, m.inputs)
	for j, f := range m.families {
		rows, ok := b.Features[f]
		if !ok || len(rows) != b.Len() {
			return nil, fmt.Errorf("batch lacks family %s", f)
		}
		if len(rows[i]) != m.dims[j] {
			return nil, fmt.Errorf("family %s has width %d, want %d", f, len(rows[i]), m.dims[j])
		}
		for _, v := range rows[i] {
			x = append(x, float64(v))
		}
	}
	return x, nil
}

func (m *Linear) probabilities(x []float64) []float64 {
	p := make([]float64, m.classes)
	top := math.Inf(-1)
	for k, w := range m.weights {
		z := w[m.inputs]
		for j, v := range x {
			z += w[j] * v
		}
		p[k] = z
		if z > top {
			top = z
		}
	}
	sum := 0.0
	for k := range p {
		p[k] = math.Exp(p[k] - top)
		sum += p[k]
	}
	for k := range p {
		p[k] /= sum
	}
	return p
}

func (m *Linear) check(b *batch.Batch) error {
	if b.Len() == 0 {
		return fmt.Errorf("empty batch")
	}
	for _, t := range b.Targets {
		if t < 0 || t >= m.classes {
			return fmt.Errorf("target %d outside %d classes", t, m.classes)
		}
	}
	return nil
}

func crossEntropy(p []float64, target int) float64 {
	return -math.Log(math.Max(p[target], 1e-12))
}

func (m *Linear) Train(ctx context.Context, b *batch.Batch) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mut.Lock()
	defer m.mut.Unlock()
	if err := m.check(b); err != nil {
		return 0, err
	}

	grad := make([][]float64, m.classes)
	for k := range grad {
		grad[k] = make([]float64, m.inputs+1)
	}
	keep := 1 - m.cfg.DropRate
	loss := 0.0
	for i := 0; i < b.Len(); i++ {
		x, err := m.row(b, i)
		if err != nil {
			return 0, err
		}
		if m.cfg.DropRate > 0 {
			for j := range x {
				if m.rng.Float64() < m.cfg.DropRate {
					x[j] = 0
				} else {
					x[j] /= keep
				}
			}
		}
		p := m.probabilities(x)
		loss += crossEntropy(p, b.Targets[i])
		for k := range p {
			d := p[k]
			if k == b.Targets[i] {
				d--
			}
			for j, v := range x {
				grad[k][j] += d * v
			}
			grad[k][m.inputs] += d
		}
	}

	step := m.cfg.LearningRate / float64(b.Len())
	for k, g := range grad {
		for j := range g {
			m.weights[k][j] -= step * g[j]
		}
	}
	return loss / float64(b.Len()), nil
}

func (m *Linear) Eval(ctx context.Context, b *batch.Batch) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	m.mut.Lock()
	defer m.mut.Unlock()
	if err := m.check(b); err != nil {
		return Evaluation{}, err
	}

	e := Evaluation{
		Predicted:     make([]int, b.Len()),
		Probabilities: make([][]float64, b.Len()),
	}
	for i := 0; i < b.Len(); i++ {
		x, err := m.row(b, i)
		if err != nil {
			return Evaluation{}, err
		}
		p := m.probabilities(x)
		best := 0
		for k := range p {
			if p[k] > p[best] {
				best = k
			}
		}
		e.Loss += crossEntropy(p, b.Targets[i])
		e.Predicted[i] = best
		e.Probabilities[i] = p
	}
	e.Loss /= float64(b.Len())
	return e, nil
}
