package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAlgorithm = errors.New("unknown resolution algorithm")

// Algorithm resolves overlapping spans. The numeric values are the ones persisted in model settings.
type Algorithm int

const (
	HighestFirst       Algorithm = 1
	LongestFirst       Algorithm = 2
	SubsumptionRemoval Algorithm = 3
)

var algorithmNames = map[Algorithm]string{
	HighestFirst:       "highest-first",
	LongestFirst:       "longest-first",
	SubsumptionRemoval: "subsumption-removal",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

func (a Algorithm) Validate() error {
	if _, ok := algorithmNames[a]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(a))
	}
	return nil
}

// ParseAlgorithm accepts either the name or the numeric id.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for a, name := range algorithmNames {
		if s == name || s == fmt.Sprint(int(a)) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

func (a Algorithm) MarshalText() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return []byte(a.String()), nil
}

func (a *Algorithm) UnmarshalText(b []byte) error {
	parsed, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UnmarshalJSON accepts the numeric id as well as the name. Unknown ids are left for Validate.
func (a *Algorithm) UnmarshalJSON(b []byte) error {
	var id int
	if err := json.Unmarshal(b, &id); err == nil {
		*a = Algorithm(id)
		return nil
	}
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	return a.UnmarshalText([]byte(name))
}
