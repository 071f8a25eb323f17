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

package batch

import (
	"math/rand"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

// Pool is an ordered candidate sequence. It is never modified after construction; sampling works
// on index permutations.
type Pool struct {
	items []span.Candidate
}

func newPool(items []span.Candidate) Pool {
	return Pool{items: items}
}

func (p Pool) Len() int {
	return len(p.items)
}

func (p Pool) At(i int) span.Candidate {
	return p.items[i]
}

// all returns every item, permuted when rng is not nil.
func (p Pool) all(rng *rand.Rand) []span.Candidate {
	out := make([]span.Candidate, len(p.items))
	if rng == nil {
		copy(out, p.items)
		return out
	}
	for i, j := range rng.Perm(len(p.items)) {
		out[i] = p.items[j]
	}
	return out
}

// sample draws a fresh random subset of int(len*rate) items on every call. At rate 1 or more it
// is the whole pool in its original order.
func (p Pool) sample(rate float64, rng *rand.Rand) []span.Candidate {
	n := int(float64(len(p.items)) * rate)
	if n >= len(p.items) {
		return p.all(nil)
	}
	out := make([]span.Candidate, n)
	for i, j := range rng.Perm(len(p.items))[:n] {
		out[i] = p.items[j]
	}
	return out
}
