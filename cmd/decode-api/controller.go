package main

import (
	"fmt"
	"net/http"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/model"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/score"
)

type decodeRequest struct {
	// Settings overrides the model's persisted settings.
	Settings  *decode.Settings         `json:"settings"`
	Sentences [][]decode.PredictedSpan `json:"sentences"`
}

type resolvedSpan struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type decodeResponse struct {
	Settings  decode.Settings  `json:"settings"`
	Sentences [][]resolvedSpan `json:"sentences"`
}

type goldMention struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

type scoreRequest struct {
	Settings  *decode.Settings `json:"settings"`
	Sentences []struct {
		Gold      []goldMention           `json:"gold"`
		Predicted []decode.PredictedSpan `json:"predicted"`
	} `json:"sentences"`
}

type scoreResponse struct {
	Settings  decode.Settings         `json:"settings"`
	Precision float64                 `json:"precision"`
	Recall    float64                 `json:"recall"`
	F1        float64                 `json:"f1"`
	Counts    score.Counts            `json:"counts"`
	PerLabel  map[string]score.Counts `json:"per_label"`
}

type controller struct {
	labels   *corpus.Labels
	settings decode.Settings
}

func newController(cfg model.Config) (controller, error) {
	labels, err := corpus.NewLabels(cfg.Labels)
	if err != nil {
		return controller{}, err
	}
	return controller{labels: labels, settings: cfg.Settings}, nil
}

func (c controller) Settings() decode.Settings {
	return c.settings
}

func (c controller) resolve(override *decode.Settings) (decode.Settings, error) {
	if override == nil {
		return c.settings, nil
	}
	if err := override.Validate(); err != nil {
		return decode.Settings{}, NewHttpError(http.StatusBadRequest, err)
	}
	return *override, nil
}

func (c controller) Decode(req decodeRequest) (decodeResponse, error) {
	settings, err := c.resolve(req.Settings)
	if err != nil {
		return decodeResponse{}, err
	}
	res := decodeResponse{Settings: settings, Sentences: make([][]resolvedSpan, len(req.Sentences))}
	for i, spans := range req.Sentences {
		resolved, err := decode.Decode(spans, settings, c.labels.Background())
		if err != nil {
			return decodeResponse{}, NewHttpError(http.StatusBadRequest, fmt.Errorf("sentence %d: %w", i, err))
		}
		res.Sentences[i] = make([]resolvedSpan, 0, len(resolved))
		for _, s := range resolved {
			res.Sentences[i] = append(res.Sentences[i], resolvedSpan{
				Start:      s.Start,
				End:        s.End,
				Label:      c.labels.Name(s.Label),
				Confidence: s.Probabilities[s.Label],
			})
		}
	}
	return res, nil
}

func (c controller) Score(req scoreRequest) (scoreResponse, error) {
	settings, err := c.resolve(req.Settings)
	if err != nil {
		return scoreResponse{}, err
	}
	sentences := make([]score.Sentence, len(req.Sentences))
	for i, s := range req.Sentences {
		for _, g := range s.Gold {
			label, ok := c.labels.Index(g.Label)
			if !ok {
				return scoreResponse{}, NewHttpError(http.StatusBadRequest, fmt.Errorf("sentence %d: unknown label %q", i, g.Label))
			}
			sentences[i].Gold = append(sentences[i].Gold, corpus.Mention{Start: g.Start, End: g.End, Label: label})
		}
		sentences[i].Predicted = s.Predicted
	}

	report, err := score.Evaluate(sentences, settings, c.labels.Background())
	if err != nil {
		return scoreResponse{}, NewHttpError(http.StatusBadRequest, err)
	}
	res := scoreResponse{
		Settings:  settings,
		Precision: report.Precision(),
		Recall:    report.Recall(),
		F1:        report.F1(),
		Counts:    report.Counts,
		PerLabel:  make(map[string]score.Counts, len(report.PerLabel)),
	}
	for id, counts := range report.PerLabel {
		res.PerLabel[c.labels.Name(id)] = counts
	}
	return res, nil
}
