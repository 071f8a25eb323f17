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

package corpus

import (
	"errors"
	"fmt"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/text"
)

// ErrMentionOutOfRange is wrapped by every MentionError.
var ErrMentionOutOfRange = errors.New("gold mention outside sentence")

// Token carries both the case-sensitive and case-insensitive text of a word plus its characters.
type Token struct {
	Text  string
	Lower string
	Chars []rune
}

func NewToken(word string) Token {
	return Token{
		Text:  word,
		Lower: text.Normalize(word),
		Chars: []rune(word),
	}
}

// Mention is a gold annotation over token indices, End is exclusive.
type Mention struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Label int `json:"label"`
}

func (m Mention) Len() int {
	return m.End - m.Start
}

type Sentence struct {
	Tokens   []Token
	Mentions []Mention
}

func NewSentence(words []string, mentions ...Mention) Sentence {
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = NewToken(w)
	}
	return Sentence{Tokens: tokens, Mentions: mentions}
}

func (s Sentence) Len() int {
	return len(s.Tokens)
}

// Words returns the token texts of [start, end).
func (s Sentence) Words(start, end int, caseSensitive bool) []string {
	words := make([]string, 0, end-start)
	for _, tok := range s.Tokens[start:end] {
		if caseSensitive {
			words = append(words, tok.Text)
		} else {
			words = append(words, tok.Lower)
		}
	}
	return words
}

// Validate fails if any gold mention falls outside the sentence's token range or is empty.
func (s Sentence) Validate(id int) error {
	for _, m := range s.Mentions {
		if m.Start < 0 || m.End > len(s.Tokens) || m.Start >= m.End {
			return &MentionError{Sentence: id, Mention: m, Tokens: len(s.Tokens)}
		}
	}
	return nil
}

type MentionError struct {
	Sentence int
	Mention  Mention
	Tokens   int
}

func (e *MentionError) Error() string {
	return fmt.Sprintf("sentence %d: mention [%d, %d) label %d does not fit %d tokens",
		e.Sentence, e.Mention.Start, e.Mention.End, e.Mention.Label, e.Tokens)
}

func (e *MentionError) Unwrap() error {
	return ErrMentionOutOfRange
}
