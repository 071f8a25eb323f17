// Package prediction reads and writes the per-candidate evaluation output of a model.
//
// Each line holds the expected label, the predicted label and the probability of every label
// (background last), in the order the candidates were evaluated:
//
//	2  0  0.812300  0.041200  0.146500
package prediction

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/score"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

var ErrMisaligned = errors.New("predictions do not line up with the corpus candidates")

const separator = "  "

type Writer struct {
	w     *bufio.Writer
	lines int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(expected, predicted int, probabilities []float64) error {
	var b strings.Builder
	b.WriteString(strconv.Itoa(expected))
	b.WriteString(separator)
	b.WriteString(strconv.Itoa(predicted))
	for _, p := range probabilities {
		b.WriteString(separator)
		b.WriteString(strconv.FormatFloat(p, 'f', 6, 64))
	}
	b.WriteByte('\n')
	if _, err := w.w.WriteString(b.String()); err != nil {
		return err
	}
	w.lines++
	return nil
}

func (w *Writer) Lines() int {
	return w.lines
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

type Line struct {
	Expected      int
	Predicted     int
	Probabilities []float64
}

func parseLine(text string, labels int) (Line, error) {
	fields := strings.Fields(text)
	if len(fields) != labels+2 {
		return Line{}, fmt.Errorf("expected %d fields, got %d", labels+2, len(fields))
	}
	var (
		l   Line
		err error
	)
	if l.Expected, err = strconv.Atoi(fields[0]); err != nil {
		return Line{}, err
	}
	if l.Predicted, err = strconv.Atoi(fields[1]); err != nil {
		return Line{}, err
	}
	l.Probabilities = make([]float64, labels)
	for i, f := range fields[2:] {
		if l.Probabilities[i], err = strconv.ParseFloat(f, 64); err != nil {
			return Line{}, err
		}
	}
	return l, nil
}

/**
	Parse rebuilds the per-sentence predictions of a file written for an unshuffled pass over
	sentences. The candidates are enumerated again with window, and line i is attributed to
	candidate i. A line whose expected label disagrees with its candidate, or a file with too few
	or too many lines, fails with ErrMisaligned.
**/
func Parse(r io.Reader, sentences []corpus.Sentence, window, background int) ([]score.Sentence, error) {
	candidates, _, err := span.EnumerateCorpus(sentences, window, background)
	if err != nil {
		return nil, err
	}
	out := make([]score.Sentence, len(sentences))
	for i, s := range sentences {
		out[i].Gold = s.Mentions
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if n >= len(candidates) {
			return nil, fmt.Errorf("%w: more than %d lines", ErrMisaligned, len(candidates))
		}
		line, err := parseLine(text, background+1)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		c := candidates[n]
		if line.Expected != c.Label {
			return nil, fmt.Errorf("%w: line %d expects label %d, candidate %d of sentence %d has %d",
				ErrMisaligned, n+1, line.Expected, c.Index, c.Sentence, c.Label)
		}
		out[c.Sentence].Predicted = append(out[c.Sentence].Predicted, decode.PredictedSpan{
			Start:         c.Start,
			End:           c.End,
			Label:         line.Predicted,
			Probabilities: line.Probabilities,
		})
		n++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n != len(candidates) {
		return nil, fmt.Errorf("%w: %d lines for %d candidates", ErrMisaligned, n, len(candidates))
	}
	return out, nil
}

// ParseFile is Parse on a file path.
func ParseFile(path string, sentences []corpus.Sentence, window, background int) ([]score.Sentence, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, sentences, window, background)
}

// Create opens path for writing, creating its directory.
func Create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Clean(path))
}
