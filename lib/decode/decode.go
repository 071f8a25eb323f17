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

// Package decode turns scored candidate spans of one sentence into a non-overlapping annotation.
package decode

import (
	"errors"
	"fmt"
	"sort"
)

var ErrBadProbabilities = errors.New("probability vector does not match the label set")

type PredictedSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
	// Label is the most probable entity label, never the background.
	Label         int       `json:"label"`
	Probabilities []float64 `json:"probabilities"`
}

func (p PredictedSpan) Len() int {
	return p.End - p.Start
}

func (p PredictedSpan) overlaps(o PredictedSpan) bool {
	return p.Start < o.End && o.Start < p.End
}

// Settings is the persisted decoding configuration. Thresholds[i] gates the input of Algorithms[i].
type Settings struct {
	Thresholds [2]float64   `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	Algorithms [2]Algorithm `json:"algorithm" yaml:"algorithm" mapstructure:"algorithm"`
}

var DefaultSettings = Settings{
	Thresholds: [2]float64{0.5, 0.5},
	Algorithms: [2]Algorithm{HighestFirst, HighestFirst},
}

func (s Settings) Validate() error {
	for _, a := range s.Algorithms {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Settings) String() string {
	return fmt.Sprintf("threshold=%.1f/%.1f algorithm=%s/%s", s.Thresholds[0], s.Thresholds[1], s.Algorithms[0], s.Algorithms[1])
}

type scored struct {
	PredictedSpan
	confidence float64
}

// Confidence returns the highest non-background probability and its label. background is the index of
// the background label in probabilities.
func Confidence(probabilities []float64, background int) (float64, int, error) {
	if len(probabilities) != background+1 || background < 1 {
		return 0, 0, fmt.Errorf("%w: %d probabilities for background %d", ErrBadProbabilities, len(probabilities), background)
	}
	best, label := probabilities[0], 0
	for i := 1; i < background; i++ {
		if probabilities[i] > best {
			best, label = probabilities[i], i
		}
	}
	return best, label, nil
}

/**
	Decode resolves the spans of one sentence:
	spans below Thresholds[0] are dropped, Algorithms[0] removes overlaps, the survivors below
	Thresholds[1] are dropped, and Algorithms[1] resolves again. The result is ordered by start and
	pairwise non-overlapping whatever the input order.
**/
func Decode(spans []PredictedSpan, settings Settings, background int) ([]PredictedSpan, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	current := make([]scored, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End <= s.Start {
			return nil, fmt.Errorf("invalid span [%d, %d)", s.Start, s.End)
		}
		confidence, label, err := Confidence(s.Probabilities, background)
		if err != nil {
			return nil, err
		}
		s.Label = label
		current = append(current, scored{PredictedSpan: s, confidence: confidence})
	}

	for stage, algorithm := range settings.Algorithms {
		current = filter(current, settings.Thresholds[stage])
		current = resolve(current, algorithm)
	}

	sort.Slice(current, func(i, j int) bool {
		return current[i].Start < current[j].Start
	})
	out := make([]PredictedSpan, len(current))
	for i, s := range current {
		out[i] = s.PredictedSpan
	}
	return out, nil
}

func filter(spans []scored, threshold float64) []scored {
	out := spans[:0:0]
	for _, s := range spans {
		if s.confidence >= threshold {
			out = append(out, s)
		}
	}
	return out
}

func resolve(spans []scored, algorithm Algorithm) []scored {
	switch algorithm {
	case LongestFirst:
		sort.Slice(spans, func(i, j int) bool {
			a, b := spans[i], spans[j]
			if a.Len() != b.Len() {
				return a.Len() > b.Len()
			}
			if a.confidence != b.confidence {
				return a.confidence > b.confidence
			}
			return a.Start < b.Start
		})
		return greedy(spans)
	case SubsumptionRemoval:
		return greedy(byConfidence(removeSubsumed(spans)))
	default:
		return greedy(byConfidence(spans))
	}
}

func byConfidence(spans []scored) []scored {
	sort.Slice(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
	return spans
}

// greedy keeps a span iff none of its tokens is taken by a span kept before it.
func greedy(ordered []scored) []scored {
	end := 0
	for _, s := range ordered {
		if s.End > end {
			end = s.End
		}
	}
	taken := make([]bool, end)
	out := make([]scored, 0, len(ordered))
next:
	for _, s := range ordered {
		for t := s.Start; t < s.End; t++ {
			if taken[t] {
				continue next
			}
		}
		for t := s.Start; t < s.End; t++ {
			taken[t] = true
		}
		out = append(out, s)
	}
	return out
}

// removeSubsumed drops every span strictly inside another span of equal or higher confidence.
func removeSubsumed(spans []scored) []scored {
	sorted := make([]scored, len(spans))
	copy(sorted, spans)
	// by start, longest first, so containers precede the spans they contain
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	limit := 0
	for _, s := range sorted {
		if s.End > limit {
			limit = s.End
		}
	}
	// Everything already in the frontier starts earlier, or at the same start and ends later, so
	// any of it ending at or after inner.End strictly contains inner.
	frontier := newSuffixMax(limit)
	out := make([]scored, 0, len(sorted))
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].Start == sorted[i].Start && sorted[j].End == sorted[i].End {
			j++
		}
		for _, inner := range sorted[i:j] {
			if frontier.query(inner.End) < inner.confidence {
				out = append(out, inner)
			}
		}
		for _, s := range sorted[i:j] {
			frontier.insert(s.End, s.confidence)
		}
		i = j
	}
	return out
}

// suffixMax is a Fenwick tree answering the highest confidence among spans ending at or after a
// token offset.
type suffixMax struct {
	tree []float64
}

func newSuffixMax(limit int) *suffixMax {
	t := &suffixMax{tree: make([]float64, limit+1)}
	for i := range t.tree {
		t.tree[i] = -1
	}
	return t
}

// pos maps end offsets 1..limit onto tree slots so that later ends come first.
func (t *suffixMax) pos(end int) int {
	return len(t.tree) - end
}

func (t *suffixMax) insert(end int, confidence float64) {
	for i := t.pos(end); i < len(t.tree); i += i & -i {
		if confidence > t.tree[i] {
			t.tree[i] = confidence
		}
	}
}

func (t *suffixMax) query(end int) float64 {
	best := -1.0
	for i := t.pos(end); i > 0; i -= i & -i {
		if t.tree[i] > best {
			best = t.tree[i]
		}
	}
	return best
}
