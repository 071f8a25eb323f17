package score

import (
	"context"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/decode"
)

// Grid is the set of decoding settings tried by Search: every ordered pair of Algorithms crossed with
// every ordered pair of Thresholds.
type Grid struct {
	Algorithms []decode.Algorithm `mapstructure:"algorithms"`
	Thresholds []float64          `mapstructure:"thresholds"`
}

var DefaultGrid = Grid{
	Algorithms: []decode.Algorithm{decode.HighestFirst, decode.LongestFirst},
	Thresholds: []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
}

// Settings enumerates the grid, algorithm pairs outermost.
func (g Grid) Settings() []decode.Settings {
	out := make([]decode.Settings, 0, len(g.Algorithms)*len(g.Algorithms)*len(g.Thresholds)*len(g.Thresholds))
	for _, a1 := range g.Algorithms {
		for _, a2 := range g.Algorithms {
			for _, t1 := range g.Thresholds {
				for _, t2 := range g.Thresholds {
					out = append(out, decode.Settings{
						Thresholds: [2]float64{t1, t2},
						Algorithms: [2]decode.Algorithm{a1, a2},
					})
				}
			}
		}
	}
	return out
}

type Result struct {
	Best Report
	// Improved is false when no grid point beat an F1 of zero and the defaults were kept.
	Improved  bool
	Evaluated int
}

// ShouldSearch reports whether epoch (zero based) is late enough in training to tune decoding.
func ShouldSearch(epoch, maxIter int) bool {
	return epoch >= maxIter/2
}

// Search evaluates the whole grid on sentences and returns the best settings.
func Search(ctx context.Context, sentences []Sentence, grid Grid, background int) (Result, error) {
	return SearchFunc(ctx, grid.Settings(), func(s decode.Settings) (Report, error) {
		return Evaluate(sentences, s, background)
	})
}

/**
	SearchFunc evaluates candidates in parallel and keeps the first one, in candidate order, with the
	strictly highest F1. Nothing beats the defaults unless its F1 is above zero.
**/
func SearchFunc(ctx context.Context, candidates []decode.Settings, eval func(decode.Settings) (Report, error)) (Result, error) {
	reports := make([]Report, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, s := range candidates {
		if gctx.Err() != nil {
			break
		}
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := eval(s)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result := Result{Best: Report{Settings: decode.DefaultSettings}, Evaluated: len(candidates)}
	best := 0.0
	for _, r := range reports {
		if f1 := r.F1(); f1 > best {
			best = f1
			result.Best = r
			result.Improved = true
		}
	}
	log.Info().
		Str("settings", result.Best.Settings.String()).
		Float64("f1", best).
		Bool("improved", result.Improved).
		Int("evaluated", result.Evaluated).
		Msg("decoding settings search finished")
	return result, nil
}
