// Package similarity flags generated jokes that are too close to the prompt
// examples or to recently saved jokes.
package similarity

import (
	"strings"

	"roast-machine/internal/models"
	"roast-machine/pkg/logger"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	DefaultThreshold = 0.6
	DefaultWindow    = 50
)

// RecentLister yields the newest persisted jokes, newest first.
type RecentLister interface {
	Recent(n int) ([]models.Joke, error)
}

type Filter struct {
	examples  []string
	recent    RecentLister
	threshold float64
	window    int
}

type Option func(*Filter)

func WithThreshold(threshold float64) Option {
	return func(f *Filter) {
		if threshold > 0 {
			f.threshold = threshold
		}
	}
}

func WithWindow(n int) Option {
	return func(f *Filter) {
		if n >= 0 {
			f.window = n
		}
	}
}

// New builds a filter over the given example jokes. recent may be nil.
func New(examples []string, recent RecentLister, opts ...Option) *Filter {
	lowered := make([]string, len(examples))
	for i, ex := range examples {
		lowered[i] = strings.ToLower(ex)
	}

	f := &Filter{
		examples:  lowered,
		recent:    recent,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// IsDuplicate reports whether candidate is more similar than the threshold to
// any example or any of the most recent jokes.
func (f *Filter) IsDuplicate(candidate string) bool {
	c := strings.ToLower(candidate)

	for _, ex := range f.examples {
		if Ratio(c, ex) > f.threshold {
			return true
		}
	}

	if f.recent == nil || f.window == 0 {
		return false
	}

	recent, err := f.recent.Recent(f.window)
	if err != nil {
		logger.Warn("Failed to load recent jokes for dedup", logger.Err(err))
		return false
	}

	for _, j := range recent {
		if Ratio(c, strings.ToLower(j.Text)) > f.threshold {
			return true
		}
	}

	return false
}

// Ratio is the SequenceMatcher similarity of a and b compared rune by rune:
// 2*M/T where M is the number of matched runes and T the total rune count.
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
