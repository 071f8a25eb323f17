// Package score measures decoded annotations against gold mentions and searches decoding settings.
package score

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
)

// Sentence pairs the gold mentions of a sentence with the undecoded predictions of its candidates.
type Sentence struct {
	Gold      []corpus.Mention
	Predicted []decode.PredictedSpan
}

type Counts struct {
	Matches   int `json:"matches"`
	Predicted int `json:"predicted"`
	Gold      int `json:"gold"`
}

func (c *Counts) Add(o Counts) {
	c.Matches += o.Matches
	c.Predicted += o.Predicted
	c.Gold += o.Gold
}

func (c Counts) Precision() float64 {
	if c.Predicted == 0 {
		return 0
	}
	return float64(c.Matches) / float64(c.Predicted)
}

func (c Counts) Recall() float64 {
	if c.Gold == 0 {
		return 0
	}
	return float64(c.Matches) / float64(c.Gold)
}

func (c Counts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c Counts) String() string {
	return fmt.Sprintf("precision=%.4f recall=%.4f f1=%.4f (%d/%d/%d)", c.Precision(), c.Recall(), c.F1(), c.Matches, c.Predicted, c.Gold)
}

type key struct {
	start, end, label int
}

// Score counts exact matches: same boundaries and same label.
func Score(gold []corpus.Mention, predicted []decode.PredictedSpan) Counts {
	golden := make(map[key]bool, len(gold))
	for _, m := range gold {
		golden[key{m.Start, m.End, m.Label}] = true
	}
	c := Counts{Predicted: len(predicted), Gold: len(gold)}
	for _, p := range predicted {
		if golden[key{p.Start, p.End, p.Label}] {
			c.Matches++
		}
	}
	return c
}

// Report is the micro-averaged result of one decoding pass, with a breakdown per label.
type Report struct {
	Settings decode.Settings
	Counts
	PerLabel map[int]Counts
}

// Evaluate decodes every sentence with settings and scores the result.
func Evaluate(sentences []Sentence, settings decode.Settings, background int) (Report, error) {
	r := Report{Settings: settings, PerLabel: map[int]Counts{}}
	for i, s := range sentences {
		resolved, err := decode.Decode(s.Predicted, settings, background)
		if err != nil {
			return Report{}, fmt.Errorf("decoding sentence %d: %w", i, err)
		}
		r.Counts.Add(Score(s.Gold, resolved))
		for label := 0; label < background; label++ {
			c := r.PerLabel[label]
			c.Add(Score(goldOf(s.Gold, label), predictedOf(resolved, label)))
			r.PerLabel[label] = c
		}
	}
	return r, nil
}

func goldOf(gold []corpus.Mention, label int) []corpus.Mention {
	var out []corpus.Mention
	for _, m := range gold {
		if m.Label == label {
			out = append(out, m)
		}
	}
	return out
}

func predictedOf(predicted []decode.PredictedSpan, label int) []decode.PredictedSpan {
	var out []decode.PredictedSpan
	for _, p := range predicted {
		if p.Label == label {
			out = append(out, p)
		}
	}
	return out
}

// Write prints the report as a table, one row per label then the micro average.
func (r Report) Write(w io.Writer, labels *corpus.Labels) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "label\tprecision\trecall\tf1\tmatches\tpredicted\tgold\n")
	ids := make([]int, 0, len(r.PerLabel))
	for id := range r.PerLabel {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	row := func(name string, c Counts) {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%d\t%d\t%d\n", name, c.Precision(), c.Recall(), c.F1(), c.Matches, c.Predicted, c.Gold)
	}
	for _, id := range ids {
		row(labels.Name(id), r.PerLabel[id])
	}
	row("all", r.Counts)
	fmt.Fprintf(tw, "settings\t%s\n", r.Settings)
	return tw.Flush()
}
