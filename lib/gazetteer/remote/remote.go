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

package remote

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer/local"
)

type Client interface {
	NewGetPipeline(size int) GetPipeline
	Ready() bool
}

type Pipeline interface {
	Size() int
}

type GetPipeline interface {
	Get(key string)
	ExecGet(onResult func(key string, lookup *gazetteer.Lookup) error) error
	Pipeline
}

/**
	Warm resolves every key against a remote gazetteer and returns the hits as a local store.

	Feature extraction runs on many workers at once; resolving the corpus's candidate keys up
	front in pipelines of pipelineSize means the workers only ever read memory. Cancelling ctx stops
	the warm-up between pipelines.
**/
func Warm(ctx context.Context, client Client, keys []string, pipelineSize int) (local.Client, error) {
	if pipelineSize <= 0 {
		return nil, errors.New("pipeline size must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store := local.New()
	onResult := func(key string, lookup *gazetteer.Lookup) error {
		if lookup != nil && len(lookup.Labels) > 0 {
			store.Set(key, lookup)
		}
		return nil
	}

	seen := make(map[string]struct{}, len(keys))
	pipe := client.NewGetPipeline(pipelineSize)
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		pipe.Get(key)
		if pipe.Size() >= pipelineSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := pipe.ExecGet(onResult); err != nil {
				return nil, err
			}
			pipe = client.NewGetPipeline(pipelineSize)
		}
	}
	if pipe.Size() > 0 {
		if err := pipe.ExecGet(onResult); err != nil {
			return nil, err
		}
	}

	log.Info().Int("keys", len(seen)).Int("hits", store.Len()).Msg("gazetteer warmed")
	return store, nil
}
