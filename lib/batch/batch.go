package batch

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/features"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

// Batch is a mini-batch: one row per candidate in every enabled family, plus the target labels.
type Batch struct {
	Candidates []span.Candidate
	Features   map[features.Family][][]float32
	Targets    []int
}

func (b *Batch) Len() int {
	return len(b.Targets)
}

type ExtractionError struct {
	Candidate span.Candidate
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting features of candidate %d (sentence %d [%d, %d)): %v",
		e.Candidate.Index, e.Candidate.Sentence, e.Candidate.Start, e.Candidate.End, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Workers is the number of goroutines extracting features per stream.
	Workers int `mapstructure:"workers"`
	// QueueSize bounds the number of batches in flight ahead of the consumer.
	QueueSize int `mapstructure:"queue_size"`
	// Seed seeds the shuffling; zero picks a random seed.
	Seed int64 `mapstructure:"seed"`
}

// Request selects how one pass samples the pools.
type Request struct {
	BatchSize    int
	Shuffle      bool
	OverlapRate  float64
	DisjointRate float64
	Choice       features.Choice
}

func (r Request) Validate() error {
	if r.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", r.BatchSize)
	}
	if r.OverlapRate < 0 || r.OverlapRate > 1 || r.DisjointRate < 0 || r.DisjointRate > 1 {
		return fmt.Errorf("sampling rates must be within [0, 1], got %g and %g", r.OverlapRate, r.DisjointRate)
	}
	return r.Choice.Validate()
}

// Constructor owns the positive, overlap and disjoint pools of one corpus.
type Constructor struct {
	positive  Pool
	overlap   Pool
	disjoint  Pool
	sentences []corpus.Sentence
	extractor features.Extractor
	opts      Options

	// rng is the shuffle cursor shared by every stream of this constructor.
	mut sync.Mutex
	rng *rand.Rand
}

var errNoCandidates = errors.New("request samples no candidates")

func New(candidates []span.Candidate, sentences []corpus.Sentence, extractor features.Extractor, opts Options) *Constructor {
	var positive, overlap, disjoint []span.Candidate
	for _, c := range candidates {
		switch c.Category {
		case span.Positive:
			positive = append(positive, c)
		case span.Overlap:
			overlap = append(overlap, c)
		default:
			disjoint = append(disjoint, c)
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 2 * opts.Workers
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Constructor{
		positive:  newPool(positive),
		overlap:   newPool(overlap),
		disjoint:  newPool(disjoint),
		sentences: sentences,
		extractor: extractor,
		opts:      opts,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (c *Constructor) Positive() Pool { return c.positive }
func (c *Constructor) Overlap() Pool  { return c.overlap }
func (c *Constructor) Disjoint() Pool { return c.disjoint }

func (c *Constructor) String() string {
	return fmt.Sprintf("%d positive, %d overlap, %d disjoint", c.positive.Len(), c.overlap.Len(), c.disjoint.Len())
}

// Expected is the number of candidates one pass of req emits.
func (c *Constructor) Expected(req Request) int {
	return c.positive.Len() +
		int(float64(c.overlap.Len())*req.OverlapRate) +
		int(float64(c.disjoint.Len())*req.DisjointRate)
}

/**
	plan draws the candidates of one pass. Every positive is used once; overlap and disjoint are
	freshly sampled down to their rates on every call. Shuffled passes interleave the three pools at
	random, unshuffled passes come back in corpus order.
**/
func (c *Constructor) plan(req Request) []span.Candidate {
	c.mut.Lock()
	defer c.mut.Unlock()

	// Negatives are re-sampled on every pass; shuffle only decides the order.
	var order *rand.Rand
	if req.Shuffle {
		order = c.rng
	}
	candidates := c.positive.all(order)
	candidates = append(candidates, c.overlap.sample(req.OverlapRate, c.rng)...)
	candidates = append(candidates, c.disjoint.sample(req.DisjointRate, c.rng)...)

	if req.Shuffle {
		c.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	} else {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Index < candidates[j].Index
		})
	}
	return candidates
}

// build extracts every candidate. Any failure discards the whole batch.
func (c *Constructor) build(candidates []span.Candidate, choice features.Choice) (*Batch, error) {
	families := choice.Families()
	b := &Batch{
		Candidates: candidates,
		Features:   make(map[features.Family][][]float32, len(families)),
		Targets:    make([]int, len(candidates)),
	}
	for _, f := range families {
		b.Features[f] = make([][]float32, len(candidates))
	}

	for i, cand := range candidates {
		if cand.Sentence < 0 || cand.Sentence >= len(c.sentences) {
			return nil, c.fail(cand, fmt.Errorf("unknown sentence %d", cand.Sentence))
		}
		vec, err := c.extractor.Extract(cand, &c.sentences[cand.Sentence], choice)
		if err != nil {
			return nil, c.fail(cand, err)
		}
		if len(vec) != len(families) {
			return nil, c.fail(cand, fmt.Errorf("extractor returned %d families for choice %s", len(vec), choice))
		}
		for _, f := range families {
			row, ok := vec[f]
			if !ok {
				return nil, c.fail(cand, fmt.Errorf("extractor omitted enabled family %s", f))
			}
			b.Features[f][i] = row
		}
		b.Targets[i] = cand.Label
	}

	candidatesExtracted.Add(float64(len(candidates)))
	batchesBuilt.Inc()
	return b, nil
}

func (c *Constructor) fail(cand span.Candidate, err error) error {
	extractionFailures.Inc()
	return &ExtractionError{Candidate: cand, Err: err}
}
