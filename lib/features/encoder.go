package features

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

// GazetteerLookup is the read side of a gazetteer store.
type GazetteerLookup interface {
	Get(key string) *gazetteer.Lookup
}

type EncoderConfig struct {
	// Dim is the number of hash buckets per encoded sequence.
	Dim        int     `mapstructure:"feature_dim"`
	WordAlpha  float64 `mapstructure:"word_alpha"`
	CharAlpha  float64 `mapstructure:"char_alpha"`
	CharLength int     `mapstructure:"char_length"`
}

var DefaultEncoderConfig = EncoderConfig{
	Dim:        128,
	WordAlpha:  0.5,
	CharAlpha:  0.8,
	CharLength: 32,
}

/**
	HashedEncoder is a compact stand-in for the fofe feature extractor. Words and characters are
	hashed into Dim buckets; context families sum the buckets weighted by alpha^distance from the
	candidate, so nearer words weigh more.

	Context families are [left | right], 2*Dim long. Gazetteer is one flag per label type.
	CharConvolution is the candidate's first CharLength character codes scaled into [0, 1].
**/
type HashedEncoder struct {
	cfg       EncoderConfig
	labels    *corpus.Labels
	gazetteer GazetteerLookup
}

func NewHashedEncoder(cfg EncoderConfig, labels *corpus.Labels, gaz GazetteerLookup) (*HashedEncoder, error) {
	if cfg.Dim <= 0 || cfg.CharLength <= 0 {
		return nil, fmt.Errorf("encoder dimensions must be positive: %+v", cfg)
	}
	if cfg.WordAlpha <= 0 || cfg.WordAlpha >= 1 || cfg.CharAlpha <= 0 || cfg.CharAlpha >= 1 {
		return nil, fmt.Errorf("forgetting factors must be in (0, 1): %+v", cfg)
	}
	return &HashedEncoder{cfg: cfg, labels: labels, gazetteer: gaz}, nil
}

func (e *HashedEncoder) Dim(f Family) int {
	switch f {
	case CaseInsensitiveContextWithCandidate, CaseInsensitiveContextWithoutCandidate,
		CaseSensitiveContextWithCandidate, CaseSensitiveContextWithoutCandidate:
		return 2 * e.cfg.Dim
	case CaseInsensitiveBagOfWords, CaseSensitiveBagOfWords, CharCandidate, CharInitial:
		return e.cfg.Dim
	case Gazetteer:
		return e.labels.Len()
	case CharConvolution:
		return e.cfg.CharLength
	default:
		return 0
	}
}

func (e *HashedEncoder) Extract(c span.Candidate, s *corpus.Sentence, choice Choice) (Vector, error) {
	if c.Start < 0 || c.End > s.Len() || c.Start >= c.End {
		return nil, fmt.Errorf("candidate [%d, %d) outside sentence %d of %d tokens", c.Start, c.End, c.Sentence, s.Len())
	}
	if choice.Has(Gazetteer) && e.gazetteer == nil {
		return nil, fmt.Errorf("gazetteer feature requested without a gazetteer")
	}

	vec := make(Vector, NumFamilies)
	for _, f := range choice.Families() {
		switch f {
		case CaseInsensitiveContextWithCandidate:
			vec[f] = e.context(s, c.End, c.Start, false)
		case CaseInsensitiveContextWithoutCandidate:
			vec[f] = e.context(s, c.Start, c.End, false)
		case CaseInsensitiveBagOfWords:
			vec[f] = e.bagOfWords(s.Words(c.Start, c.End, false))
		case CaseSensitiveContextWithCandidate:
			vec[f] = e.context(s, c.End, c.Start, true)
		case CaseSensitiveContextWithoutCandidate:
			vec[f] = e.context(s, c.Start, c.End, true)
		case CaseSensitiveBagOfWords:
			vec[f] = e.bagOfWords(s.Words(c.Start, c.End, true))
		case CharCandidate:
			vec[f] = e.chars(s, c, false)
		case CharInitial:
			vec[f] = e.chars(s, c, true)
		case Gazetteer:
			vec[f] = e.gazetteerFlags(s, c)
		case CharConvolution:
			vec[f] = e.charCodes(s, c)
		}
	}
	return vec, nil
}

func (e *HashedEncoder) bucket(s string) int {
	return int(xxhash.Sum64String(s) % uint64(e.cfg.Dim))
}

// context encodes tokens [0, leftEnd) right to left and [rightStart, n) left to right.
func (e *HashedEncoder) context(s *corpus.Sentence, leftEnd, rightStart int, caseSensitive bool) []float32 {
	out := make([]float32, 2*e.cfg.Dim)
	weight := 1.0
	for t := leftEnd - 1; t >= 0; t-- {
		out[e.bucket(word(s, t, caseSensitive))] += float32(weight)
		weight *= e.cfg.WordAlpha
	}
	weight = 1.0
	for t := rightStart; t < s.Len(); t++ {
		out[e.cfg.Dim+e.bucket(word(s, t, caseSensitive))] += float32(weight)
		weight *= e.cfg.WordAlpha
	}
	return out
}

func word(s *corpus.Sentence, t int, caseSensitive bool) string {
	if caseSensitive {
		return s.Tokens[t].Text
	}
	return s.Tokens[t].Lower
}

func (e *HashedEncoder) bagOfWords(words []string) []float32 {
	out := make([]float32, e.cfg.Dim)
	for _, w := range words {
		out[e.bucket(w)]++
	}
	return out
}

// chars encodes the candidate's characters (or the initial of each word) left to right.
func (e *HashedEncoder) chars(s *corpus.Sentence, c span.Candidate, initials bool) []float32 {
	out := make([]float32, e.cfg.Dim)
	var sequence []rune
	for _, tok := range s.Tokens[c.Start:c.End] {
		if len(tok.Chars) == 0 {
			continue
		}
		if initials {
			sequence = append(sequence, tok.Chars[0])
		} else {
			sequence = append(sequence, tok.Chars...)
		}
	}
	weight := 1.0
	for i := len(sequence) - 1; i >= 0; i-- {
		out[e.bucket(string(sequence[i]))] += float32(weight)
		weight *= e.cfg.CharAlpha
	}
	return out
}

func (e *HashedEncoder) gazetteerFlags(s *corpus.Sentence, c span.Candidate) []float32 {
	out := make([]float32, e.labels.Len())
	lookup := e.gazetteer.Get(gazetteer.Key(s.Words(c.Start, c.End, true)))
	if lookup == nil {
		return out
	}
	for _, name := range lookup.Labels {
		if i, ok := e.labels.Index(name); ok {
			out[i] = 1
		}
	}
	return out
}

func (e *HashedEncoder) charCodes(s *corpus.Sentence, c span.Candidate) []float32 {
	out := make([]float32, e.cfg.CharLength)
	i := 0
	for t := c.Start; t < c.End && i < len(out); t++ {
		if t > c.Start {
			out[i] = float32(' ') / 127
			i++
		}
		for _, r := range s.Tokens[t].Chars {
			if i >= len(out) {
				break
			}
			out[i] = float32(math.Min(float64(r), 127)) / 127
			i++
		}
	}
	return out
}

// GazetteerKeys lists the lookup keys the Gazetteer family will ask for, one per candidate.
func GazetteerKeys(sentences []corpus.Sentence, candidates []span.Candidate) []string {
	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		keys = append(keys, gazetteer.Key(sentences[c.Sentence].Words(c.Start, c.End, true)))
	}
	return keys
}
