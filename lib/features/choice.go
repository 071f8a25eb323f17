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

package features

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Family identifies one feature family. Family i is enabled by bit i of a Choice.
type Family int

const (
	CaseInsensitiveContextWithCandidate Family = iota
	CaseInsensitiveContextWithoutCandidate
	CaseInsensitiveBagOfWords
	CaseSensitiveContextWithCandidate
	CaseSensitiveContextWithoutCandidate
	CaseSensitiveBagOfWords
	CharCandidate
	CharInitial
	Gazetteer
	CharConvolution

	NumFamilies = 10
)

var familyNames = [NumFamilies]string{
	"case_insensitive_context_with_candidate",
	"case_insensitive_context_without_candidate",
	"case_insensitive_bag_of_words",
	"case_sensitive_context_with_candidate",
	"case_sensitive_context_without_candidate",
	"case_sensitive_bag_of_words",
	"char_candidate",
	"char_initial",
	"gazetteer",
	"char_convolution",
}

func (f Family) String() string {
	if f < 0 || f >= NumFamilies {
		return fmt.Sprintf("family(%d)", int(f))
	}
	return familyNames[f]
}

// Choice is the 10-bit feature selection mask.
type Choice uint16

const (
	DefaultChoice Choice = 767
	// SecondPassMask drops the two "with candidate" context families.
	SecondPassMask Choice = 2038
	// ChineseMask drops the char-level initial family.
	ChineseMask Choice = 895

	AllFamilies Choice = 1<<NumFamilies - 1
)

func (c Choice) Has(f Family) bool {
	return f >= 0 && f < NumFamilies && c&(1<<uint(f)) != 0
}

// Restrict ANDs an additional mask into the choice.
func (c Choice) Restrict(mask Choice) Choice {
	return c & mask
}

// Families lists the enabled families in bit order.
func (c Choice) Families() []Family {
	var families []Family
	for f := Family(0); f < NumFamilies; f++ {
		if c.Has(f) {
			families = append(families, f)
		}
	}
	return families
}

func (c Choice) Validate() error {
	if c&^AllFamilies != 0 {
		return fmt.Errorf("feature choice %d sets bits above %d", c, NumFamilies-1)
	}
	if c == 0 {
		return fmt.Errorf("feature choice selects no feature family")
	}
	return nil
}

func (c Choice) String() string {
	names := make([]string, 0, NumFamilies)
	for _, f := range c.Families() {
		names = append(names, f.String())
	}
	return fmt.Sprintf("%d[%s]", uint16(c), strings.Join(names, ","))
}

// ChoiceFor applies the second pass and language presets to a user supplied choice.
func ChoiceFor(base Choice, secondPass bool, language string) Choice {
	choice := base
	if secondPass {
		log.Info().Uint16("was", uint16(choice)).Uint16("now", uint16(choice.Restrict(SecondPassMask))).Msg("second pass feature choice")
		choice = choice.Restrict(SecondPassMask)
	}
	if language == "cmn" {
		log.Info().Uint16("was", uint16(choice)).Uint16("now", uint16(choice.Restrict(ChineseMask))).Msg("chinese feature choice")
		choice = choice.Restrict(ChineseMask)
	}
	return choice
}
