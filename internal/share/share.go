// Package share publishes saved jokes to the public repository and resolves
// permalinks, falling back to the repository for jokes not on local disk.
package share

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roast-machine/internal/github"
	"roast-machine/internal/models"
	"roast-machine/internal/store"
	"roast-machine/pkg/logger"
)

type LocalStore interface {
	Get(id string) (models.Joke, error)
	File(id string) (string, []byte, error)
}

type Remote interface {
	Configured() bool
	GetFile(ctx context.Context, name string) ([]byte, error)
	PutFile(ctx context.Context, name string, content []byte, message string) error
}

type Service struct {
	local   LocalStore
	remote  Remote
	siteURL string
}

func New(local LocalStore, remote Remote, siteURL string) *Service {
	return &Service{
		local:   local,
		remote:  remote,
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

// Permalink is the public page of a joke.
func (s *Service) Permalink(id string) string {
	return s.siteURL + "/joke/" + id
}

// ImageURL is the preview image of a joke.
func (s *Service) ImageURL(id string) string {
	return s.Permalink(id) + "/image"
}

func (s *Service) remoteReady() bool {
	return s.remote != nil && s.remote.Configured()
}

// Share commits the joke file to the repository and returns its permalink.
func (s *Service) Share(ctx context.Context, id string) (string, error) {
	if !s.remoteReady() {
		return "", github.ErrMissingToken
	}

	name, body, err := s.local.File(id)
	if err != nil {
		return "", err
	}

	if err := s.remote.PutFile(ctx, name, body, "Add joke "+name); err != nil {
		return "", fmt.Errorf("failed to share joke %s: %w", id, err)
	}

	return s.Permalink(id), nil
}

// Lookup finds a joke locally, then in the repository.
func (s *Service) Lookup(ctx context.Context, id string) (models.Joke, error) {
	j, err := s.local.Get(id)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, store.ErrNotFound) || !store.ValidID(id) || !s.remoteReady() {
		return models.Joke{}, err
	}

	body, err := s.remote.GetFile(ctx, id+".md")
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return models.Joke{}, store.ErrNotFound
		}
		logger.Warn("Remote joke lookup failed", logger.String("id", id), logger.Err(err))
		return models.Joke{}, fmt.Errorf("remote lookup %s: %w", id, err)
	}

	return store.ParseRecord(id, string(body)), nil
}
