// Package corpus loads the read-only prompt material: the factoid list and the
// technique corpus of example jokes grouped by comedy style.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	ErrNoFactoids   = errors.New("factoid list is empty")
	ErrNoTechniques = errors.New("technique corpus is empty")
)

var factoidLine = regexp.MustCompile(`^\d+\.\s+(.+)`)

type Technique struct {
	Name     string
	Examples []string
}

type Corpus struct {
	Factoids   []string
	Techniques []Technique
}

// Load reads both corpus files and fails if either yields nothing usable.
func Load(factoidsPath, examplesPath string) (*Corpus, error) {
	factoids, err := LoadFactoids(factoidsPath)
	if err != nil {
		return nil, err
	}

	techniques, err := LoadExamples(examplesPath)
	if err != nil {
		return nil, err
	}

	return New(factoids, techniques)
}

func New(factoids []string, techniques []Technique) (*Corpus, error) {
	if len(factoids) == 0 {
		return nil, ErrNoFactoids
	}
	if len(techniques) == 0 {
		return nil, ErrNoTechniques
	}
	return &Corpus{Factoids: factoids, Techniques: techniques}, nil
}

func LoadFactoids(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open factoids: %w", err)
	}
	defer f.Close()

	return ParseFactoids(f)
}

// ParseFactoids keeps the text of every numbered list item ("1. text").
func ParseFactoids(r io.Reader) ([]string, error) {
	var items []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := factoidLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		items = append(items, strings.TrimSpace(m[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read factoids: %w", err)
	}

	return items, nil
}

func LoadExamples(path string) ([]Technique, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open examples: %w", err)
	}
	defer f.Close()

	return ParseExamples(f)
}

// ParseExamples groups "- joke" bullets under the preceding "## Name" heading.
// Sections without bullets are dropped; file order is preserved.
func ParseExamples(r io.Reader) ([]Technique, error) {
	var (
		order    []string
		sections = make(map[string][]string)
		current  string
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "## "):
			current = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			if _, seen := sections[current]; !seen {
				order = append(order, current)
			}
			sections[current] = nil
		case current != "" && strings.HasPrefix(line, "- "):
			sections[current] = append(sections[current], strings.TrimSpace(strings.TrimPrefix(line, "- ")))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read examples: %w", err)
	}

	techniques := make([]Technique, 0, len(order))
	for _, name := range order {
		if len(sections[name]) == 0 {
			continue
		}
		techniques = append(techniques, Technique{Name: name, Examples: sections[name]})
	}

	return techniques, nil
}

// Names returns technique names in file order.
func (c *Corpus) Names() []string {
	names := make([]string, len(c.Techniques))
	for i, t := range c.Techniques {
		names[i] = t.Name
	}
	return names
}

func (c *Corpus) Technique(name string) (Technique, bool) {
	for _, t := range c.Techniques {
		if t.Name == name {
			return t, true
		}
	}
	return Technique{}, false
}

// AllExamples is the distinct set of example jokes across every technique.
func (c *Corpus) AllExamples() []string {
	seen := make(map[string]struct{})
	var all []string
	for _, t := range c.Techniques {
		for _, ex := range t.Examples {
			if _, ok := seen[ex]; ok {
				continue
			}
			seen[ex] = struct{}{}
			all = append(all, ex)
		}
	}
	return all
}
