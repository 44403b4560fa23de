package store

import "roast-machine/internal/models"

const DefaultPerPage = 20

type PageQuery struct {
	Style   string
	Page    int
	PerPage int
}

type Page struct {
	Jokes      []models.Joke `json:"jokes"`
	Style      string        `json:"style,omitempty"`
	Number     int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	Count      int           `json:"count"`
	TotalAll   int           `json:"total_all"`
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.TotalPages }

// Page returns one page of the (optionally style filtered) listing.
func (s *Store) Page(q PageQuery) (Page, error) {
	all, err := s.all()
	if err != nil {
		return Page{}, err
	}

	style := ""
	if s.knownStyle(q.Style) {
		style = q.Style
	}

	return Paginate(s.filter(all, style), len(all), style, q.Page, q.PerPage), nil
}

// Paginate slices jokes into pages. Out of range page numbers are clamped to
// [1, TotalPages] and an empty set still has one page.
func Paginate(jokes []models.Joke, totalAll int, style string, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	count := len(jokes)
	totalPages := max(1, (count+perPage-1)/perPage)
	page = min(max(page, 1), totalPages)

	start := (page - 1) * perPage
	end := min(start+perPage, count)

	return Page{
		Jokes:      jokes[start:end],
		Style:      style,
		Number:     page,
		TotalPages: totalPages,
		Count:      count,
		TotalAll:   totalAll,
	}
}
