// Package store persists jokes as markdown flat files and serves listings
// from an in-memory index that is rebuilt when the file count changes.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"roast-machine/internal/models"
	"roast-machine/pkg/logger"
)

const (
	fileExt       = ".md"
	slugRunes     = 40
	parseErrorMsg = "(parse error)"
)

var (
	ErrNotFound  = errors.New("joke not found")
	ErrEmptyJoke = errors.New("joke text is empty")
)

var (
	slugStrip   = regexp.MustCompile(`[^a-z0-9]+`)
	validID     = regexp.MustCompile(`^\d{8}-\d{6}-[a-z0-9-]*$`)
	jokeLine    = regexp.MustCompile(`(?m)^> (.+)$`)
	styleLine   = regexp.MustCompile(`\*\*Style:\*\* (.+)`)
	factoidLine = regexp.MustCompile(`\*\*Factoid:\*\* (.+)`)
	idTimestamp = regexp.MustCompile(`^(\d{8})-(\d{6})`)
)

type Store struct {
	dir    string
	now    func() time.Time
	styles []string

	mu          sync.Mutex
	cache       []models.Joke
	cachedCount int
}

type Option func(*Store)

// WithClock overrides the time source used for new ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithStyles sets the recognised style filter values. A filter outside this
// set is ignored. Without it every filter is applied as given.
func WithStyles(styles []string) Option {
	return func(s *Store) {
		s.styles = slices.Clone(styles)
	}
}

// New opens (creating if needed) the joke directory.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create joke dir %s: %w", dir, err)
	}

	s := &Store{
		dir:         dir,
		now:         time.Now,
		cachedCount: -1,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes a new record and returns it. The id is the UTC timestamp plus
// a slug of the joke; a same-second collision gets a numeric suffix.
func (s *Store) Save(text, factoid, technique string) (models.Joke, error) {
	if strings.TrimSpace(text) == "" {
		return models.Joke{}, ErrEmptyJoke
	}

	created := s.now().UTC()
	base := created.Format(models.TimeLayout) + "-" + Slug(text)
	body := Render(text, factoid, technique)

	for n := 1; ; n++ {
		id := base
		if n > 1 {
			id = fmt.Sprintf("%s-%d", base, n)
		}

		f, err := os.OpenFile(filepath.Join(s.dir, id+fileExt), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return models.Joke{}, fmt.Errorf("failed to create joke file: %w", err)
		}

		if _, err := f.WriteString(body); err != nil {
			f.Close()
			return models.Joke{}, fmt.Errorf("failed to write joke file: %w", err)
		}
		if err := f.Close(); err != nil {
			return models.Joke{}, fmt.Errorf("failed to close joke file: %w", err)
		}

		logger.Debug("Joke saved", logger.String("id", id), logger.String("style", technique))

		return models.Joke{
			ID:        id,
			Text:      text,
			Style:     technique,
			Factoid:   factoid,
			CreatedAt: created.Truncate(time.Second),
			Markdown:  body,
		}, nil
	}
}

// Slug lower-cases the first 40 runes of text and collapses every run of
// characters outside [a-z0-9] into a single hyphen.
func Slug(text string) string {
	r := []rune(text)
	if len(r) > slugRunes {
		r = r[:slugRunes]
	}
	return strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(string(r)), "-"), "-")
}

// Render produces the markdown body of a record.
func Render(text, factoid, technique string) string {
	return "# Roast\n\n" +
		"> " + text + "\n\n" +
		"**Style:** " + technique + "  \n" +
		"**Factoid:** " + factoid + "\n"
}

// ParseRecord extracts a joke from a record body. A body without a quote
// line yields the "(parse error)" placeholder rather than an error.
func ParseRecord(id, body string) models.Joke {
	j := models.Joke{
		ID:       id,
		Text:     parseErrorMsg,
		Markdown: body,
	}

	if m := jokeLine.FindStringSubmatch(body); m != nil {
		j.Text = strings.TrimSpace(m[1])
	}
	if m := styleLine.FindStringSubmatch(body); m != nil {
		j.Style = strings.TrimSpace(m[1])
	}
	if m := factoidLine.FindStringSubmatch(body); m != nil {
		j.Factoid = strings.TrimSpace(m[1])
	}
	if m := idTimestamp.FindStringSubmatch(id); m != nil {
		if t, err := time.Parse(models.TimeLayout, m[1]+"-"+m[2]); err == nil {
			j.CreatedAt = t
		}
	}

	return j
}

type ListOptions struct {
	Limit int
	Style string
}

// List returns records newest first, optionally filtered by style and capped
// at Limit (0 means no cap).
func (s *Store) List(opts ListOptions) ([]models.Joke, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}

	out := s.filter(all, opts.Style)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	return out, nil
}

// Recent returns the newest n records.
func (s *Store) Recent(n int) ([]models.Joke, error) {
	return s.List(ListOptions{Limit: n})
}

// Get finds a record whose file name starts with id.
func (s *Store) Get(id string) (models.Joke, error) {
	name, body, err := s.File(id)
	if err != nil {
		return models.Joke{}, err
	}
	return ParseRecord(strings.TrimSuffix(name, fileExt), string(body)), nil
}

// File returns the file name and raw body of the record matching id. An
// exact match wins over a prefix match.
func (s *Store) File(id string) (string, []byte, error) {
	if !ValidID(id) {
		return "", nil, ErrNotFound
	}

	names, err := s.names()
	if err != nil {
		return "", nil, err
	}

	match := ""
	for _, name := range names {
		if name == id+fileExt {
			match = name
			break
		}
		if match == "" && strings.HasPrefix(name, id) {
			match = name
		}
	}
	if match == "" {
		return "", nil, ErrNotFound
	}

	body, err := os.ReadFile(filepath.Join(s.dir, match))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("failed to read joke %s: %w", match, err)
	}

	return match, body, nil
}

// ValidID reports whether id has the shape of a joke id.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

type Stats struct {
	Total   int            `json:"total"`
	ByStyle map[string]int `json:"by_style"`
}

func (s *Store) Stats() (Stats, error) {
	all, err := s.all()
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Total: len(all), ByStyle: make(map[string]int)}
	for _, j := range all {
		st.ByStyle[j.Style]++
	}
	return st, nil
}

func (s *Store) knownStyle(style string) bool {
	if style == "" {
		return false
	}
	if s.styles == nil {
		return true
	}
	return slices.Contains(s.styles, style)
}

func (s *Store) filter(all []models.Joke, style string) []models.Joke {
	if !s.knownStyle(style) {
		return slices.Clone(all)
	}

	out := make([]models.Joke, 0, len(all))
	for _, j := range all {
		if j.Style == style {
			out = append(out, j)
		}
	}
	return out
}

// names lists record file names, newest first.
func (s *Store) names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read joke dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	return names, nil
}

// all returns every record newest first. The index is rebuilt only when the
// number of files differs from the last scan, so a delete paired with an add
// between two calls goes unnoticed.
func (s *Store) all() ([]models.Joke, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(names) == s.cachedCount {
		return s.cache, nil
	}

	jokes := make([]models.Joke, 0, len(names))
	for _, name := range names {
		body, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			logger.Warn("Skipping unreadable joke file", logger.String("file", name), logger.Err(err))
			continue
		}
		jokes = append(jokes, ParseRecord(strings.TrimSuffix(name, fileExt), string(body)))
	}

	s.cache = jokes
	s.cachedCount = len(names)

	logger.Debug("Joke index rebuilt", logger.Int("count", len(jokes)))

	return s.cache, nil
}
