package pricing

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry keeps every catalog version that may still be referenced by an
// open checkout, plus the one new quotes are priced with.
type Registry struct {
	current  string
	catalogs map[string]*Catalog
}

// NewRegistry validates cats and makes current the active version.
func NewRegistry(current string, cats ...*Catalog) (*Registry, error) {
	r := &Registry{current: current, catalogs: make(map[string]*Catalog, len(cats))}
	for _, c := range cats {
		if c == nil {
			return nil, errors.New("nil catalog")
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.catalogs[c.Version]; dup {
			return nil, fmt.Errorf("catalog %s defined twice", c.Version)
		}
		r.catalogs[c.Version] = c
	}
	if _, ok := r.catalogs[current]; !ok {
		return nil, fmt.Errorf("current catalog %q not defined", current)
	}
	return r, nil
}

// DefaultRegistry holds only the built-in catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultVersion, DefaultCatalog())
	if err != nil {
		panic(err)
	}
	return r
}

type catalogFile struct {
	Current  string     `yaml:"current"`
	Catalogs []*Catalog `yaml:"catalogs"`
}

// LoadRegistry reads catalogs from a YAML file. The built-in catalog stays
// available unless the file redefines its version. An empty path yields
// DefaultRegistry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseRegistry(b)
}

// ParseRegistry decodes the YAML catalog file format.
func ParseRegistry(b []byte) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	cats := f.Catalogs
	builtin := true
	for i, c := range cats {
		if c == nil {
			return nil, fmt.Errorf("catalog entry %d is empty", i)
		}
		if c.Version == DefaultVersion {
			builtin = false
		}
	}
	if builtin {
		cats = append(cats, DefaultCatalog())
	}

	current := f.Current
	if current == "" {
		current = DefaultVersion
	}
	return NewRegistry(current, cats...)
}

func (r *Registry) Current() *Catalog { return r.catalogs[r.current] }

// Get returns the catalog for version, or false when it is unknown.
func (r *Registry) Get(version string) (*Catalog, bool) {
	c, ok := r.catalogs[version]
	return c, ok
}

// Versions lists known versions in lexical order.
func (r *Registry) Versions() []string {
	out := make([]string, 0, len(r.catalogs))
	for v := range r.catalogs {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
