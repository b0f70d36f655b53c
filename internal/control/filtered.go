package control

import (
	"sort"
	"sync"
)

// FilteredSet holds prompt texts the generator refused. It only grows
// until Reset.
type FilteredSet struct {
	mu    sync.Mutex
	texts map[string]struct{}
}

func NewFilteredSet() *FilteredSet {
	return &FilteredSet{texts: make(map[string]struct{})}
}

// Add records text and reports whether it was new.
func (f *FilteredSet) Add(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.texts[text]; ok {
		return false
	}
	f.texts[text] = struct{}{}
	return true
}

func (f *FilteredSet) Contains(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.texts[text]
	return ok
}

// List returns the texts sorted.
func (f *FilteredSet) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.texts))
	for t := range f.texts {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (f *FilteredSet) Reset() {
	f.mu.Lock()
	f.texts = make(map[string]struct{})
	f.mu.Unlock()
}
