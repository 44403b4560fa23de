package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"roast-machine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// tickingClock advances one second per call so ids sort by creation order.
func tickingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fresh joke text", "fresh-joke-text"},
		{"  TAO went to ZERO!!  ", "tao-went-to-zero"},
		{"Bittensor finally solved the Byzantine generals problem.", "bittensor-finally-solved-the-byzantine-g"},
		{"Ünïcode & stuff", "n-code-stuff"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveWritesRecord(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 500, time.UTC)
	s := newStore(t, WithClock(fixedClock(now)))

	j, err := s.Save("Test joke about TAO", "TAO went to zero", "Misdirection")
	require.NoError(t, err)

	assert.Equal(t, "20250314-150926-test-joke-about-tao", j.ID)
	assert.Equal(t, now.Truncate(time.Second), j.CreatedAt)

	body, err := os.ReadFile(filepath.Join(s.Dir(), j.Filename()))
	require.NoError(t, err)
	assert.Equal(t,
		"# Roast\n\n> Test joke about TAO\n\n**Style:** Misdirection  \n**Factoid:** TAO went to zero\n",
		string(body))

	parsed := ParseRecord(j.ID, string(body))
	assert.Equal(t, "Test joke about TAO", parsed.Text)
	assert.Equal(t, "Misdirection", parsed.Style)
	assert.Equal(t, "TAO went to zero", parsed.Factoid)
	assert.Equal(t, "2025-03-14 15:09 UTC", parsed.DisplayTime())
}

func TestSaveUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	s := newStore(t, WithClock(fixedClock(time.Date(2025, 1, 1, 3, 0, 0, 0, loc))))

	j, err := s.Save("A joke long enough to keep", "f", "Irony")
	require.NoError(t, err)
	assert.Regexp(t, `^20241231-220000-`, j.ID)
}

func TestSaveCollisionGetsSuffix(t *testing.T) {
	s := newStore(t, WithClock(fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))

	first, err := s.Save("Same joke", "f", "Irony")
	require.NoError(t, err)
	second, err := s.Save("Same joke", "f", "Irony")
	require.NoError(t, err)

	assert.Equal(t, "20250101-000000-same-joke", first.ID)
	assert.Equal(t, "20250101-000000-same-joke-2", second.ID)
}

func TestSaveRejectsEmpty(t *testing.T) {
	s := newStore(t)
	_, err := s.Save("   ", "f", "Irony")
	assert.ErrorIs(t, err, ErrEmptyJoke)
}

func TestParseRecordWithoutJokeLine(t *testing.T) {
	j := ParseRecord("20250101-000000-x", "# Roast\n\nno quote here\n")
	assert.Equal(t, "(parse error)", j.Text)
	assert.Empty(t, j.Style)
	assert.Equal(t, "2025-01-01 00:00 UTC", j.DisplayTime())
}

func TestListNewestFirstAndFiltered(t *testing.T) {
	s := newStore(t,
		WithClock(tickingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))),
		WithStyles([]string{"Irony", "Analogy"}),
	)

	styles := []string{"Irony", "Analogy", "Irony", "Analogy", "Irony"}
	for i, style := range styles {
		_, err := s.Save(fmt.Sprintf("joke number %d", i), "f", style)
		require.NoError(t, err)
	}

	all, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "joke number 4", all[0].Text)
	assert.Equal(t, "joke number 0", all[4].Text)

	irony, err := s.List(ListOptions{Style: "Irony"})
	require.NoError(t, err)
	require.Len(t, irony, 3)
	for i := 1; i < len(irony); i++ {
		assert.Greater(t, irony[i-1].ID, irony[i].ID)
	}
	for _, j := range irony {
		assert.Equal(t, "Irony", j.Style)
	}

	unknown, err := s.List(ListOptions{Style: "Puns"})
	require.NoError(t, err)
	assert.Len(t, unknown, 5)

	limited, err := s.List(ListOptions{Limit: 2, Style: "Analogy"})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "joke number 3", limited[0].Text)
}

func TestListCacheKeyedOnFileCount(t *testing.T) {
	s := newStore(t, WithClock(tickingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))

	j, err := s.Save("original text here", "f", "Irony")
	require.NoError(t, err)

	first, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same count: the rewrite is not observed.
	path := filepath.Join(s.Dir(), j.Filename())
	require.NoError(t, os.WriteFile(path, []byte(Render("edited text", "f", "Irony")), 0o644))

	cached, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "original text here", cached[0].Text)

	_, err = s.Save("another joke entirely", "f", "Irony")
	require.NoError(t, err)

	fresh, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, "edited text", fresh[1].Text)
}

func TestListIgnoresOtherFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub.md"), 0o755))

	all, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGet(t *testing.T) {
	s := newStore(t, WithClock(fixedClock(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC))))

	saved, err := s.Save("Validators judge miners like a sleepy jury", "f", "Analogy")
	require.NoError(t, err)

	got, err := s.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Text, got.Text)
	assert.Equal(t, "Analogy", got.Style)

	prefix, err := s.Get("20250601-123000-validators")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, prefix.ID)

	for _, id := range []string{"20250101-000000-missing", "../etc/passwd", "*", ""} {
		_, err := s.Get(id)
		assert.True(t, errors.Is(err, ErrNotFound), "Get(%q) error = %v", id, err)
	}
}

func TestStats(t *testing.T) {
	s := newStore(t, WithClock(tickingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))
	for _, style := range []string{"Irony", "Irony", "Analogy"} {
		_, err := s.Save("some joke "+style, "f", style)
		require.NoError(t, err)
	}

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, map[string]int{"Irony": 2, "Analogy": 1}, st.ByStyle)
}

func TestPaginate(t *testing.T) {
	jokes := make([]models.Joke, 45)
	for i := range jokes {
		jokes[i] = models.Joke{ID: fmt.Sprintf("%02d", i)}
	}

	tests := []struct {
		name      string
		jokes     []models.Joke
		page      int
		wantPage  int
		wantTotal int
		wantLen   int
		wantFirst string
	}{
		{"first page", jokes, 1, 1, 3, 20, "00"},
		{"last partial page", jokes, 3, 3, 3, 5, "40"},
		{"below range clamps up", jokes, -4, 1, 3, 20, "00"},
		{"above range clamps down", jokes, 99, 3, 3, 5, "40"},
		{"empty still one page", nil, 5, 1, 1, 0, ""},
		{"exact multiple", jokes[:40], 2, 2, 2, 20, "20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.jokes, len(jokes), "", tt.page, 20)
			assert.Equal(t, tt.wantPage, p.Number)
			assert.Equal(t, tt.wantTotal, p.TotalPages)
			assert.Len(t, p.Jokes, tt.wantLen)
			assert.Equal(t, len(tt.jokes), p.Count)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, p.Jokes[0].ID)
			}
		})
	}
}

func TestPageWithStyleFallback(t *testing.T) {
	s := newStore(t,
		WithClock(tickingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))),
		WithStyles([]string{"Irony", "Analogy"}),
	)
	for i := 0; i < 25; i++ {
		style := "Irony"
		if i%5 == 0 {
			style = "Analogy"
		}
		_, err := s.Save(fmt.Sprintf("joke %d", i), "f", style)
		require.NoError(t, err)
	}

	p, err := s.Page(PageQuery{Style: "Analogy", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, "Analogy", p.Style)
	assert.Equal(t, 5, p.Count)
	assert.Equal(t, 25, p.TotalAll)
	assert.Equal(t, 1, p.TotalPages)
	assert.False(t, p.HasNext())

	p, err = s.Page(PageQuery{Style: "Nonsense", Page: 2})
	require.NoError(t, err)
	assert.Empty(t, p.Style)
	assert.Equal(t, 25, p.Count)
	assert.Equal(t, 2, p.Number)
	assert.Len(t, p.Jokes, 5)
	assert.True(t, p.HasPrev())
}
