package sessions

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// Catalog owns the use cases referenced by sessions and models.
// It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	byID  map[string]*model.UseCase
	order []*model.UseCase
	fixed map[string]bool // entries loaded from a catalog file
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byID:  make(map[string]*model.UseCase),
		fixed: make(map[string]bool),
	}
}

// Intern returns the use case registered for id, creating it if needed.
// A missing name is filled in by the first record that carries one, except
// for entries loaded from a catalog file, which are never modified.
func (c *Catalog) Intern(id, name string) *model.UseCase {
	c.mu.Lock()
	defer c.mu.Unlock()

	if uc, ok := c.byID[id]; ok {
		if uc.Name == "" && name != "" && !c.fixed[id] {
			uc.Name = name
		}
		return uc
	}

	uc := &model.UseCase{ID: id, Name: name}
	c.byID[id] = uc
	c.order = append(c.order, uc)
	return uc
}

// Lookup returns the use case for id, or nil.
func (c *Catalog) Lookup(id string) *model.UseCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// UseCases returns all use cases in registration order.
func (c *Catalog) UseCases() []*model.UseCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.UseCase, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of registered use cases.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

type catalogFile struct {
	UseCases []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"use_cases"`
}

// LoadCatalog reads default use cases from a YAML file of the form
//
//	use_cases:
//	  - id: login
//	    name: Login
//
// The returned catalog lists them in file order and can be handed to a
// Reader so that recorded executions share the same use case instances.
// Loaded entries are read-only: records never rename them, so the
// catalog's use cases can be captured as defaults before sessions are read.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(path)
		}
		return nil, errors.Wrap(err, errors.CodeFilePermission, "read catalog").
			WithContext("path", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML. IDs must be present and unique.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidCatalog, "parse catalog")
	}

	c := NewCatalog()
	for i, entry := range file.UseCases {
		if entry.ID == "" {
			return nil, errors.New(errors.CodeInvalidCatalog, "use case has no identifier").
				WithContext("entry", i)
		}
		if c.Lookup(entry.ID) != nil {
			return nil, errors.New(errors.CodeInvalidCatalog, fmt.Sprintf("duplicate use case %q", entry.ID)).
				WithContext("entry", i)
		}
		c.Intern(entry.ID, entry.Name)
		c.fixed[entry.ID] = true
	}
	return c, nil
}
