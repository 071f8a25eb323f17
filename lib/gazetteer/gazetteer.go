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

package gazetteer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/text"
)

// Lookup is the value stored against a normalised surface form.
type Lookup struct {
	Labels []string `json:"labels"`
}

// Has reports whether label is one of the lookup's labels.
func (l *Lookup) Has(label string) bool {
	if l == nil {
		return false
	}
	for _, have := range l.Labels {
		if have == label {
			return true
		}
	}
	return false
}

type Type string

const (
	Local         Type = "local"
	Redis         Type = "redis"
	Elasticsearch Type = "elasticsearch"
)

// Key is the exact-match key of a token sequence.
func Key(words []string) string {
	return text.NormalizeKey(words)
}

/**
	Read parses a gazetteer in "label<TAB>surface form" format and calls onEntry for each entry.
	Surface forms are tokenized the same way raw-text corpora are, so keys built from corpus
	tokens match. Empty lines and lines starting with '#' are skipped.
**/
func Read(r io.Reader, onEntry func(key, label string) error) error {
	scn := bufio.NewScanner(r)
	line := 0
	for scn.Scan() {
		line++
		row := scn.Text()
		if len(row) == 0 || row[0] == '#' {
			continue
		}

		fields := strings.SplitN(row, "\t", 2)
		if len(fields) != 2 || fields[0] == "" || strings.TrimSpace(fields[1]) == "" {
			return fmt.Errorf("gazetteer line %d: expected label<TAB>surface form", line)
		}

		words, err := text.Tokens(fields[1])
		if err != nil {
			return fmt.Errorf("gazetteer line %d: %w", line, err)
		}
		if err := onEntry(Key(words), fields[0]); err != nil {
			return err
		}
	}
	return scn.Err()
}
