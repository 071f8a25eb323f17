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

// Package span enumerates the candidate mention spans of a sentence and classifies them against
// the gold mentions.
package span

import (
	"fmt"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
)

type Category int

const (
	// Positive spans match a gold mention exactly and inherit its label.
	Positive Category = iota
	// Overlap spans share at least one token with a gold mention without matching it.
	Overlap
	// Disjoint spans share no token with any gold mention.
	Disjoint
)

func (c Category) String() string {
	switch c {
	case Positive:
		return "positive"
	case Overlap:
		return "overlap"
	case Disjoint:
		return "disjoint"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Candidate is a span [Start, End) of sentence Sentence. Index is its position in corpus order.
type Candidate struct {
	Sentence int
	Start    int
	End      int
	Category Category
	Label    int
	Index    int
}

func (c Candidate) Len() int {
	return c.End - c.Start
}

// Counts tallies candidates per category. Unrecoverable counts gold mentions longer than the window.
type Counts struct {
	Positive      int
	Overlap       int
	Disjoint      int
	Unrecoverable int
}

func (c Counts) Total() int {
	return c.Positive + c.Overlap + c.Disjoint
}

/**
	Enumerate emits every span of length 1..window of sentence s, ordered by start then length.

	Overlap and disjoint candidates are labelled background; the model learns them as "not an entity".
	A gold mention whose indices fall outside the sentence fails the whole sentence.
**/
func Enumerate(id int, s corpus.Sentence, window, background int) ([]Candidate, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	if err := s.Validate(id); err != nil {
		return nil, err
	}

	n := s.Len()

	// covered[i+1]-covered[j] counts gold tokens in [j, i]
	covered := make([]int, n+1)
	inMention := make([]bool, n)
	exact := make(map[[2]int]int, len(s.Mentions))
	for _, m := range s.Mentions {
		exact[[2]int{m.Start, m.End}] = m.Label
		for t := m.Start; t < m.End; t++ {
			inMention[t] = true
		}
	}
	for t := 0; t < n; t++ {
		covered[t+1] = covered[t]
		if inMention[t] {
			covered[t+1]++
		}
	}

	candidates := make([]Candidate, 0, n*window)
	for start := 0; start < n; start++ {
		for length := 1; length <= window && start+length <= n; length++ {
			end := start + length
			c := Candidate{
				Sentence: id,
				Start:    start,
				End:      end,
				Category: Disjoint,
				Label:    background,
			}
			if label, ok := exact[[2]int{start, end}]; ok {
				c.Category = Positive
				c.Label = label
			} else if covered[end]-covered[start] > 0 {
				c.Category = Overlap
			}
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// EnumerateCorpus enumerates every sentence and numbers the candidates in corpus order.
func EnumerateCorpus(sentences []corpus.Sentence, window, background int) ([]Candidate, Counts, error) {
	var all []Candidate
	var counts Counts
	for id, s := range sentences {
		candidates, err := Enumerate(id, s, window, background)
		if err != nil {
			return nil, Counts{}, err
		}
		for _, c := range candidates {
			c.Index = len(all)
			all = append(all, c)
			switch c.Category {
			case Positive:
				counts.Positive++
			case Overlap:
				counts.Overlap++
			default:
				counts.Disjoint++
			}
		}
		for _, m := range s.Mentions {
			if m.Len() > window {
				counts.Unrecoverable++
			}
		}
	}
	return all, counts, nil
}
