package local

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/gazetteer"
)

func New() Client {
	return &local{
		store: make(map[string]*gazetteer.Lookup),
		mut:   &sync.RWMutex{},
	}
}

type Client interface {
	Get(key string) *gazetteer.Lookup
	Set(key string, lookup *gazetteer.Lookup)
	// Add appends label to the lookup stored at key, creating it if needed.
	Add(key, label string)
	Delete(key string)
	Len() int
}

type local struct {
	store map[string]*gazetteer.Lookup
	mut   *sync.RWMutex
}

func (l *local) Get(key string) *gazetteer.Lookup {
	l.mut.RLock()
	defer l.mut.RUnlock()

	lookup, ok := l.store[key]
	if !ok {
		return nil
	}

	return lookup
}

func (l *local) Set(key string, lookup *gazetteer.Lookup) {
	l.mut.Lock()
	defer l.mut.Unlock()

	l.store[key] = lookup
}

func (l *local) Add(key, label string) {
	l.mut.Lock()
	defer l.mut.Unlock()

	lookup, ok := l.store[key]
	if !ok {
		l.store[key] = &gazetteer.Lookup{Labels: []string{label}}
		return
	}
	if !lookup.Has(label) {
		lookup.Labels = append(lookup.Labels, label)
	}
}

func (l *local) Delete(key string) {
	l.mut.Lock()
	defer l.mut.Unlock()

	delete(l.store, key)
}

func (l *local) Len() int {
	l.mut.RLock()
	defer l.mut.RUnlock()

	return len(l.store)
}

// Load reads a "label<TAB>surface form" gazetteer file into memory.
func Load(path string) (Client, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	client := New()
	err = gazetteer.Read(f, func(key, label string) error {
		client.Add(key, label)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Int("entries", client.Len()).Msg("gazetteer loaded")
	return client, nil
}
