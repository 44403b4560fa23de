package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"roast-machine/internal/github"
	"roast-machine/internal/models"
	"roast-machine/internal/store"
	"roast-machine/pkg/logger"
	"roast-machine/pkg/markdown"

	"github.com/gorilla/mux"
)

type jokeResponse struct {
	Joke    string `json:"joke"`
	ID      string `json:"id"`
	Style   string `json:"style"`
	Outcome string `json:"outcome"`
}

type shareResponse struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", logger.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", map[string]any{
		"Model":   s.deps.ModelName,
		"SiteURL": s.siteURL(),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	res, err := s.deps.Generator.Generate(r.Context())
	if err != nil {
		logger.Error("Joke generation failed",
			logger.String("request_id", RequestID(r.Context())),
			logger.Err(err),
		)
		writeError(w, http.StatusBadGateway, "joke generation failed")
		return
	}

	writeJSON(w, http.StatusOK, jokeResponse{
		Joke:    res.Joke.Text,
		ID:      res.Joke.ID,
		Style:   res.Joke.Style,
		Outcome: string(res.Outcome),
	})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	link, err := s.deps.Sharer.Share(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, shareResponse{OK: true, URL: link})
		return
	}

	var se *github.StatusError
	switch {
	case errors.Is(err, github.ErrMissingToken):
		writeJSON(w, http.StatusInternalServerError, shareResponse{Error: github.ErrMissingToken.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, shareResponse{Error: "Joke not found"})
	case errors.As(err, &se):
		logger.Warn("Share rejected upstream", logger.String("id", id), logger.Int("status", se.StatusCode))
		writeJSON(w, http.StatusBadGateway, shareResponse{Error: fmt.Sprintf("GitHub API error %d", se.StatusCode)})
	default:
		logger.Error("Share failed", logger.String("id", id), logger.Err(err))
		writeJSON(w, http.StatusBadGateway, shareResponse{Error: "GitHub API error"})
	}
}

func (s *Server) pageQuery(r *http.Request) store.PageQuery {
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		page = 1
	}

	return store.PageQuery{
		Style:   strings.TrimSpace(q.Get("style")),
		Page:    page,
		PerPage: s.deps.PerPage,
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Catalog.Page(s.pageQuery(r))
	if err != nil {
		logger.Error("Failed to list jokes", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list jokes")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Catalog.Stats()
	if err != nil {
		logger.Error("Failed to compute stats", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// lookup resolves the {id} route variable, writing the error response itself
// when the joke cannot be served.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (models.Joke, bool) {
	id := mux.Vars(r)["id"]

	j, err := s.deps.Sharer.Lookup(r.Context(), id)
	if err == nil {
		return j, true
	}

	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return models.Joke{}, false
	}

	logger.Error("Joke lookup failed", logger.String("id", id), logger.Err(err))
	http.Error(w, "joke temporarily unavailable", http.StatusBadGateway)
	return models.Joke{}, false
}

type permalinkPage struct {
	Joke      models.Joke
	Body      template.HTML
	Permalink string
	ImageURL  string
	SiteURL   string
}

func (s *Server) handlePermalink(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}

	body := j.Markdown
	if body == "" {
		body = store.Render(j.Text, j.Factoid, j.Style)
	}

	s.render(w, http.StatusOK, "joke.html", permalinkPage{
		Joke:      j,
		Body:      markdown.ToHTML([]byte(body)),
		Permalink: s.deps.Sharer.Permalink(j.ID),
		ImageURL:  s.deps.Sharer.ImageURL(j.ID),
		SiteURL:   s.siteURL(),
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}

	png, err := s.deps.Images.Render(j.Text)
	if err != nil {
		logger.Error("Failed to render preview", logger.String("id", j.ID), logger.Err(err))
		http.Error(w, "failed to render image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(png)
}

type listingPage struct {
	Page    store.Page
	Styles  []string
	PrevURL string
	NextURL string
	SiteURL string
}

func (s *Server) handleAllJokes(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Catalog.Page(s.pageQuery(r))
	if err != nil {
		logger.Error("Failed to list jokes", logger.Err(err))
		http.Error(w, "failed to list jokes", http.StatusInternalServerError)
		return
	}

	data := listingPage{
		Page:    page,
		Styles:  s.deps.Styles,
		SiteURL: s.siteURL(),
	}
	if page.HasPrev() {
		data.PrevURL = listingURL(page.Number-1, page.Style)
	}
	if page.HasNext() {
		data.NextURL = listingURL(page.Number+1, page.Style)
	}

	s.render(w, http.StatusOK, "all_jokes.html", data)
}

func listingURL(page int, style string) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	if style != "" {
		v.Set("style", style)
	}
	return "/all-jokes?" + v.Encode()
}

func (s *Server) siteURL() string {
	return strings.TrimRight(s.cfg.SiteURL, "/")
}
