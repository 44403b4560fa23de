package models

import "time"

// TimeLayout is the UTC timestamp prefix of every joke id.
const TimeLayout = "20060102-150405"

type Joke struct {
	ID        string    `json:"id"`
	Text      string    `json:"joke"`
	Style     string    `json:"style"`
	Factoid   string    `json:"factoid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Markdown  string    `json:"-"`
}

// DisplayTime renders CreatedAt the way listing pages show it.
func (j Joke) DisplayTime() string {
	if j.CreatedAt.IsZero() {
		return ""
	}
	return j.CreatedAt.UTC().Format("2006-01-02 15:04") + " UTC"
}

// Filename is the markdown file the joke is persisted as.
func (j Joke) Filename() string {
	return j.ID + ".md"
}

type User struct {
	ID              int64     `json:"id"`
	TelegramID      int64     `json:"telegram_id"`
	Username        string    `json:"username"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	CreatedAt       time.Time `json:"created_at"`
	LastInteraction time.Time `json:"last_interaction"`
}
