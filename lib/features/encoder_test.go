package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer/local"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

func newEncoder(t *testing.T) (*HashedEncoder, *corpus.Labels) {
	labels, err := corpus.NewLabels([]string{"PER", "LOC"})
	require.NoError(t, err)
	gaz := local.New()
	gaz.Set("new york", &gazetteer.Lookup{Labels: []string{"LOC", "UNKNOWN"}})
	enc, err := NewHashedEncoder(DefaultEncoderConfig, labels, gaz)
	require.NoError(t, err)
	return enc, labels
}

func TestExtractOnlyEnabledFamilies(t *testing.T) {
	enc, _ := newEncoder(t)
	s := corpus.NewSentence([]string{"I", "love", "New", "York", "."})
	c := span.Candidate{Start: 2, End: 4}

	for _, choice := range []Choice{DefaultChoice, SecondPassMask, ChineseMask, 1 << 8, AllFamilies} {
		vec, err := enc.Extract(c, &s, choice)
		require.NoError(t, err)
		assert.Len(t, vec, len(choice.Families()))
		for f := Family(0); f < NumFamilies; f++ {
			got, ok := vec[f]
			assert.Equal(t, choice.Has(f), ok, "%s in %s", f, choice)
			if ok {
				assert.Len(t, got, enc.Dim(f))
			}
		}
	}
}

func TestExtractGazetteer(t *testing.T) {
	enc, _ := newEncoder(t)
	s := corpus.NewSentence([]string{"I", "love", "NEW", "York"})

	vec, err := enc.Extract(span.Candidate{Start: 2, End: 4}, &s, 1<<uint(Gazetteer))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec[Gazetteer])

	vec, err = enc.Extract(span.Candidate{Start: 1, End: 3}, &s, 1<<uint(Gazetteer))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, vec[Gazetteer])
}

func TestExtractContextWeights(t *testing.T) {
	enc, _ := newEncoder(t)
	s := corpus.NewSentence([]string{"a", "b", "c"})

	vec, err := enc.Extract(span.Candidate{Start: 1, End: 2}, &s, 1<<uint(CaseInsensitiveContextWithoutCandidate))
	require.NoError(t, err)
	ctx := vec[CaseInsensitiveContextWithoutCandidate]

	var left, right float32
	for i, v := range ctx {
		if i < DefaultEncoderConfig.Dim {
			left += v
		} else {
			right += v
		}
	}
	// one word on each side, both adjacent to the candidate
	assert.InDelta(t, 1.0, left, 1e-6)
	assert.InDelta(t, 1.0, right, 1e-6)

	vec, err = enc.Extract(span.Candidate{Start: 1, End: 2}, &s, 1<<uint(CaseInsensitiveContextWithCandidate))
	require.NoError(t, err)
	left = 0
	for _, v := range vec[CaseInsensitiveContextWithCandidate][:DefaultEncoderConfig.Dim] {
		left += v
	}
	assert.InDelta(t, 1.0+DefaultEncoderConfig.WordAlpha, left, 1e-6)
}

func TestExtractErrors(t *testing.T) {
	enc, labels := newEncoder(t)
	s := corpus.NewSentence([]string{"a", "b"})

	_, err := enc.Extract(span.Candidate{Start: 1, End: 3}, &s, DefaultChoice)
	assert.Error(t, err)

	noGaz, err := NewHashedEncoder(DefaultEncoderConfig, labels, nil)
	require.NoError(t, err)
	_, err = noGaz.Extract(span.Candidate{Start: 0, End: 1}, &s, AllFamilies)
	assert.Error(t, err)

	_, err = NewHashedEncoder(EncoderConfig{Dim: 8, CharLength: 8, WordAlpha: 1, CharAlpha: 0.5}, labels, nil)
	assert.Error(t, err)
}

func TestGazetteerKeys(t *testing.T) {
	sentences := []corpus.Sentence{corpus.NewSentence([]string{"New", "YORK"})}
	candidates, _, err := span.EnumerateCorpus(sentences, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "new york", "york"}, GazetteerKeys(sentences, candidates))
}
