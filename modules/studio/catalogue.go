package studio

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// projectIDPattern - ids end up in URLs and storage object paths
var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidProjectID - non-empty, letters, digits, '_' and '-' only
func ValidProjectID(id string) bool {
	return projectIDPattern.MatchString(id)
}

// Project - one portfolio entry the studio can edit
type Project struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Catalogue - known projects; an open catalogue accepts any valid id
type Catalogue struct {
	projects map[string]Project
	open     bool
}

// NewCatalogue - closed catalogue over the given projects
func NewCatalogue(projects []Project) *Catalogue {
	c := &Catalogue{projects: make(map[string]Project, len(projects))}
	for _, p := range projects {
		if p.ID = strings.TrimSpace(p.ID); ValidProjectID(p.ID) {
			c.projects[p.ID] = p
		}
	}
	return c
}

// OpenCatalogue - accepts every project id
func OpenCatalogue() *Catalogue {
	return &Catalogue{projects: map[string]Project{}, open: true}
}

// LoadCatalogue - JSON array of projects from path; empty path gives an open catalogue
func LoadCatalogue(path string) (*Catalogue, error) {
	if path == "" {
		return OpenCatalogue(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects file: %w", err)
	}
	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("failed to parse projects file: %w", err)
	}
	return NewCatalogue(projects), nil
}

// Lookup - project by id
func (c *Catalogue) Lookup(id string) (Project, bool) {
	id = strings.TrimSpace(id)
	if !ValidProjectID(id) {
		return Project{}, false
	}
	if p, ok := c.projects[id]; ok {
		return p, true
	}
	if c.open {
		return Project{ID: id}, true
	}
	return Project{}, false
}

// Projects - known projects sorted by id
func (c *Catalogue) Projects() []Project {
	out := make([]Project, 0, len(c.projects))
	for _, p := range c.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
