package corpus

import (
	"errors"
	"fmt"
)

// BackgroundName is the name reported for the "not an entity" label.
const BackgroundName = "O"

// Labels maps entity type names to indices. Index Len() is the background label.
type Labels struct {
	names []string
	index map[string]int
}

func NewLabels(names []string) (*Labels, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one label type is required")
	}
	l := &Labels{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" || name == BackgroundName {
			return nil, fmt.Errorf("invalid label name %q", name)
		}
		if _, ok := l.index[name]; ok {
			return nil, fmt.Errorf("duplicate label %q", name)
		}
		l.names[i] = name
		l.index[name] = i
	}
	return l, nil
}

// Len is the number of entity label types, excluding background.
func (l *Labels) Len() int {
	return len(l.names)
}

func (l *Labels) Background() int {
	return len(l.names)
}

func (l *Labels) Index(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

func (l *Labels) Name(i int) string {
	if i >= 0 && i < len(l.names) {
		return l.names[i]
	}
	return BackgroundName
}

func (l *Labels) Names() []string {
	return append([]string(nil), l.names...)
}
