package score

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
)

const (
	per = iota
	loc
	org
	misc
	background
)

func predicted(start, end, label int, conf float64) decode.PredictedSpan {
	p := make([]float64, background+1)
	p[label] = conf
	p[background] = 1 - conf
	return decode.PredictedSpan{Start: start, End: end, Label: label, Probabilities: p}
}

func TestScore(t *testing.T) {
	gold := []corpus.Mention{{Start: 0, End: 2, Label: per}, {Start: 5, End: 7, Label: loc}, {Start: 8, End: 10, Label: org}}
	got := []decode.PredictedSpan{
		predicted(0, 2, per, 0.9), predicted(5, 7, loc, 0.9), predicted(3, 4, misc, 0.9), predicted(8, 10, loc, 0.9),
	}
	c := Score(gold, got)
	assert.Equal(t, Counts{Matches: 2, Predicted: 4, Gold: 3}, c)
	assert.InDelta(t, 0.5, c.Precision(), 1e-9)
	assert.InDelta(t, 2.0/3, c.Recall(), 1e-9)
	assert.InDelta(t, 0.571428, c.F1(), 1e-6)
}

func TestCounts_empty(t *testing.T) {
	tests := []struct {
		name string
		c    Counts
	}{
		{name: "nothing", c: Counts{}},
		{name: "no predictions", c: Score([]corpus.Mention{{Start: 0, End: 1}}, nil)},
		{name: "no gold", c: Score(nil, []decode.PredictedSpan{predicted(0, 1, per, 1)})},
	}
	for _, tt := range tests {
		assert.Zero(t, tt.c.Precision(), tt.name)
		assert.Zero(t, tt.c.Recall(), tt.name)
		assert.Zero(t, tt.c.F1(), tt.name)
	}
}

func TestEvaluate(t *testing.T) {
	sentences := []Sentence{
		{
			Gold:      []corpus.Mention{{Start: 0, End: 2, Label: per}},
			Predicted: []decode.PredictedSpan{predicted(0, 2, per, 0.8), predicted(1, 3, loc, 0.6)},
		},
		{
			Gold:      []corpus.Mention{{Start: 1, End: 2, Label: loc}},
			Predicted: []decode.PredictedSpan{predicted(0, 3, org, 0.7), predicted(1, 2, loc, 0.4)},
		},
	}
	r, err := Evaluate(sentences, decode.DefaultSettings, background)
	require.NoError(t, err)
	assert.Equal(t, Counts{Matches: 1, Predicted: 2, Gold: 2}, r.Counts)
	assert.Equal(t, Counts{Matches: 1, Predicted: 1, Gold: 1}, r.PerLabel[per])
	assert.Equal(t, Counts{Matches: 0, Predicted: 0, Gold: 1}, r.PerLabel[loc])
	assert.Equal(t, Counts{Matches: 0, Predicted: 1, Gold: 0}, r.PerLabel[org])

	lower := decode.Settings{Thresholds: [2]float64{0.3, 0.3}, Algorithms: [2]decode.Algorithm{decode.LongestFirst, decode.HighestFirst}}
	r, err = Evaluate(sentences, lower, background)
	require.NoError(t, err)
	assert.Equal(t, Counts{Matches: 1, Predicted: 2, Gold: 2}, r.Counts)

	labels, err := corpus.NewLabels([]string{"PER", "LOC", "ORG", "MISC"})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, labels))
	assert.Contains(t, buf.String(), "PER")
	assert.Contains(t, buf.String(), "all")
	assert.Contains(t, buf.String(), "longest-first/highest-first")
}

func TestGrid_Settings(t *testing.T) {
	settings := DefaultGrid.Settings()
	assert.Len(t, settings, 196)
	assert.Equal(t, decode.Settings{
		Thresholds: [2]float64{0.3, 0.3},
		Algorithms: [2]decode.Algorithm{decode.HighestFirst, decode.HighestFirst},
	}, settings[0])
	assert.Equal(t, decode.Settings{
		Thresholds: [2]float64{0.3, 0.4},
		Algorithms: [2]decode.Algorithm{decode.HighestFirst, decode.HighestFirst},
	}, settings[1])
	assert.Equal(t, decode.Settings{
		Thresholds: [2]float64{0.9, 0.9},
		Algorithms: [2]decode.Algorithm{decode.LongestFirst, decode.LongestFirst},
	}, settings[195])
}

func TestSearchFunc_prescored(t *testing.T) {
	grid := Grid{
		Algorithms: []decode.Algorithm{decode.HighestFirst, decode.LongestFirst},
		Thresholds: []float64{0.3, 0.7},
	}
	candidates := grid.Settings()
	// only the first algorithm pair plus one point of the second pair matter
	candidates = append(candidates[:4], candidates[4])

	tests := []struct {
		name string
		f1   []Counts
		want int
	}{
		{
			name: "maximum wins",
			f1:   []Counts{{1, 4, 4}, {3, 4, 4}, {2, 4, 4}, {1, 4, 4}, {2, 4, 4}},
			want: 1,
		},
		{
			name: "first of a tie wins",
			f1:   []Counts{{1, 4, 4}, {3, 4, 4}, {2, 4, 4}, {3, 4, 4}, {3, 4, 4}},
			want: 1,
		},
		{
			name: "later strictly better wins",
			f1:   []Counts{{1, 4, 4}, {1, 4, 4}, {2, 4, 4}, {3, 4, 4}, {4, 4, 4}},
			want: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := map[decode.Settings]Counts{}
			for i, s := range candidates {
				scores[s] = tt.f1[i]
			}
			result, err := SearchFunc(context.Background(), candidates, func(s decode.Settings) (Report, error) {
				return Report{Settings: s, Counts: scores[s]}, nil
			})
			require.NoError(t, err)
			assert.True(t, result.Improved)
			assert.Equal(t, candidates[tt.want], result.Best.Settings)
			assert.Equal(t, len(candidates), result.Evaluated)
		})
	}
}

func TestSearchFunc_keepsDefaults(t *testing.T) {
	result, err := SearchFunc(context.Background(), DefaultGrid.Settings(), func(s decode.Settings) (Report, error) {
		return Report{Settings: s}, nil
	})
	require.NoError(t, err)
	assert.False(t, result.Improved)
	assert.Equal(t, decode.DefaultSettings, result.Best.Settings)
}

func TestSearchFunc_error(t *testing.T) {
	boom := errors.New("boom")
	_, err := SearchFunc(context.Background(), DefaultGrid.Settings(), func(s decode.Settings) (Report, error) {
		if s.Thresholds[0] == 0.5 {
			return Report{}, boom
		}
		return Report{Settings: s}, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestSearch(t *testing.T) {
	sentences := []Sentence{
		{
			Gold:      []corpus.Mention{{Start: 0, End: 4, Label: per}},
			Predicted: []decode.PredictedSpan{predicted(0, 4, per, 0.45), predicted(1, 3, loc, 0.95)},
		},
	}
	result, err := Search(context.Background(), sentences, DefaultGrid, background)
	require.NoError(t, err)
	require.True(t, result.Improved)
	assert.Equal(t, decode.Settings{
		Thresholds: [2]float64{0.3, 0.3},
		Algorithms: [2]decode.Algorithm{decode.LongestFirst, decode.HighestFirst},
	}, result.Best.Settings)
	assert.Equal(t, 1.0, result.Best.F1())
}

func TestShouldSearch(t *testing.T) {
	assert.False(t, ShouldSearch(0, 4))
	assert.False(t, ShouldSearch(1, 4))
	assert.True(t, ShouldSearch(2, 4))
	assert.True(t, ShouldSearch(0, 1))
}
