package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/text"
)

type Format string

const (
	// TokensFormat lines carry pre-tokenized sentences.
	TokensFormat Format = "tokens"
	// TextFormat lines carry raw text which is tokenized on load.
	TextFormat Format = "text"
)

const maxLineSize = 16 * 1024 * 1024

type jsonMention struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

type jsonSentence struct {
	Tokens   []string      `json:"tokens"`
	Text     string        `json:"text,omitempty"`
	Mentions []jsonMention `json:"mentions"`
}

// Load reads one json sentence per line. Mention indices are not range checked here; that happens
// at span enumeration so malformed entries fail with the enumeration error.
func Load(r io.Reader, labels *Labels, format Format) ([]Sentence, error) {
	var sentences []Sentence
	err := Read(r, labels, format, func(s Sentence) error {
		sentences = append(sentences, s)
		return nil
	})
	return sentences, err
}

// Read calls onSentence for every sentence in r, in order.
func Read(r io.Reader, labels *Labels, format Format, onSentence func(Sentence) error) error {
	if format != TokensFormat && format != TextFormat {
		return fmt.Errorf("unsupported corpus format %q", format)
	}

	scn := bufio.NewScanner(r)
	scn.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scn.Scan() {
		line++
		if len(scn.Bytes()) == 0 {
			continue
		}
		var js jsonSentence
		if err := json.Unmarshal(scn.Bytes(), &js); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		words := js.Tokens
		if format == TextFormat {
			var err error
			if words, err = text.Tokens(js.Text); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
		}

		mentions := make([]Mention, 0, len(js.Mentions))
		for _, m := range js.Mentions {
			label, ok := labels.Index(m.Label)
			if !ok {
				return fmt.Errorf("line %d: unknown label %q", line, m.Label)
			}
			mentions = append(mentions, Mention{Start: m.Start, End: m.End, Label: label})
		}

		if err := onSentence(NewSentence(words, mentions...)); err != nil {
			return err
		}
	}
	return scn.Err()
}

func LoadFile(path string, labels *Labels, format Format) ([]Sentence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sentences, err := Load(f, labels, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("path", path).Int("sentences", len(sentences)).Msg("corpus loaded")
	return sentences, nil
}

// Writer writes sentences as tokens format lines.
type Writer struct {
	labels *Labels
	enc    *json.Encoder
}

func NewWriter(w io.Writer, labels *Labels) *Writer {
	return &Writer{labels: labels, enc: json.NewEncoder(w)}
}

func (w *Writer) Write(s Sentence) error {
	js := jsonSentence{
		Tokens:   s.Words(0, s.Len(), true),
		Mentions: make([]jsonMention, 0, len(s.Mentions)),
	}
	for _, m := range s.Mentions {
		js.Mentions = append(js.Mentions, jsonMention{Start: m.Start, End: m.End, Label: w.labels.Name(m.Label)})
	}
	return w.enc.Encode(js)
}
