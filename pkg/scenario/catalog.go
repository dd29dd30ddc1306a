package scenario

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
)

// Summary is the list view of a scenario.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rating      string `json:"rating"`
}

// Catalog is the read-only set of scenarios available to players.
// It is loaded once at startup and safe for concurrent use.
type Catalog struct {
	scenarios map[string]*Scenario
}

// NewCatalog builds a catalog from already-decoded scenarios.
// Scenarios without an ID are skipped.
func NewCatalog(scenarios ...*Scenario) *Catalog {
	c := &Catalog{scenarios: make(map[string]*Scenario, len(scenarios))}
	for _, s := range scenarios {
		if s == nil || s.ID == "" {
			continue
		}
		c.scenarios[s.ID] = s
	}
	return c
}

// LoadCatalog reads every *.json file in dir.
func LoadCatalog(dir string, logger *slog.Logger) (*Catalog, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("scenario directory %s: %w", dir, err)
	}
	return LoadCatalogFS(os.DirFS(dir), logger)
}

// LoadCatalogFS reads every *.json file in fsys. Files that fail to decode or
// validate are logged and skipped. The scenario ID defaults to the file name
// without its extension.
func LoadCatalogFS(fsys fs.FS, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{scenarios: make(map[string]*Scenario)}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			logger.Warn("Failed to read scenario file", "path", p, "error", err)
			return nil
		}

		var s Scenario
		if err := json.Unmarshal(data, &s); err != nil {
			logger.Warn("Failed to unmarshal scenario file", "path", p, "error", err)
			return nil
		}
		if s.ID == "" {
			s.ID = strings.TrimSuffix(path.Base(p), ".json")
		}
		if errs := s.Validate(); len(errs) > 0 {
			logger.Warn("Skipping invalid scenario", "path", p, "errors", errs)
			return nil
		}
		if _, dup := c.scenarios[s.ID]; dup {
			logger.Warn("Duplicate scenario id, keeping first", "id", s.ID, "path", p)
			return nil
		}

		c.scenarios[s.ID] = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}

	logger.Info("Scenario catalog loaded", "count", len(c.scenarios))
	return c, nil
}

// Get returns a scenario by ID.
func (c *Catalog) Get(id string) (*Scenario, bool) {
	s, ok := c.scenarios[id]
	return s, ok
}

// List returns a summary of every scenario ordered by name.
func (c *Catalog) List() []Summary {
	list := make([]Summary, 0, len(c.scenarios))
	for _, s := range c.scenarios {
		list = append(list, Summary{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Rating:      s.GetRating(),
		})
	}
	slices.SortFunc(list, func(a, b Summary) int {
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// Len returns the number of scenarios in the catalog.
func (c *Catalog) Len() int {
	return len(c.scenarios)
}
