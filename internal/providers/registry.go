package providers

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelSeparator joins a provider name and a model name in a qualified model id.
const ModelSeparator = "|"

// CatalogEntry lists the models served by one provider, in catalog order.
type CatalogEntry struct {
	Provider string
	Models   []string
}

// Catalog is the static provider → models table loaded at startup.
// Provider and model order is preserved as written in the source file.
type Catalog struct {
	entries []CatalogEntry
}

// NewCatalog builds a catalog from entries in the given order.
func NewCatalog(entries ...CatalogEntry) *Catalog {
	c := &Catalog{}
	for _, e := range entries {
		c.entries = append(c.entries, CatalogEntry{
			Provider: e.Provider,
			Models:   append([]string(nil), e.Models...),
		})
	}
	return c
}

// LoadCatalog reads a models file of the form {"providers": {"openai": ["gpt-4o", ...]}}.
// JSON and YAML are both accepted.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog parses catalog data. Map order is taken from the document
// node tree since Go maps do not keep it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty models document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("models document must be a mapping")
	}

	var provs *yaml.Node
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "providers" {
			provs = doc.Content[i+1]
			break
		}
	}
	if provs == nil {
		return nil, fmt.Errorf("missing \"providers\" key")
	}
	if provs.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("\"providers\" must be a mapping")
	}

	c := &Catalog{}
	for i := 0; i+1 < len(provs.Content); i += 2 {
		name := provs.Content[i].Value
		var models []string
		if err := provs.Content[i+1].Decode(&models); err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		c.entries = append(c.entries, CatalogEntry{Provider: name, Models: models})
	}
	return c, nil
}

// Providers returns provider names in catalog order.
func (c *Catalog) Providers() []string {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.Provider)
	}
	return names
}

func (c *Catalog) models(provider string) ([]string, bool) {
	for _, e := range c.entries {
		if e.Provider == provider {
			return e.Models, true
		}
	}
	return nil, false
}

// Resolve splits a model id into (provider, model). A qualified id
// ("provider|model") must name a model listed under that provider; a bare
// model name resolves to the first provider that lists it.
func (c *Catalog) Resolve(id string) (string, string, error) {
	if provider, model, ok := strings.Cut(id, ModelSeparator); ok {
		models, found := c.models(provider)
		if !found || !contains(models, model) {
			return "", "", fmt.Errorf("%w: %s", ErrUnknownModel, id)
		}
		return provider, model, nil
	}

	for _, e := range c.entries {
		if contains(e.Models, id) {
			return e.Provider, id, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnknownModel, id)
}

// List returns every "provider|model" in catalog order, or only the bare
// model names of filterProvider when it is set.
func (c *Catalog) List(filterProvider string) []string {
	if filterProvider != "" {
		models, _ := c.models(filterProvider)
		return append([]string(nil), models...)
	}
	var out []string
	for _, e := range c.entries {
		for _, m := range e.Models {
			out = append(out, e.Provider+ModelSeparator+m)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Registry pairs the static catalog with the adapters registered at startup.
type Registry struct {
	catalog *Catalog

	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(catalog *Catalog) *Registry {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Registry{
		catalog:   catalog,
		providers: make(map[string]Provider),
	}
}

// Register adds an adapter under its Name(). A later registration with the
// same name replaces the earlier one.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Provider returns the adapter registered under name.
func (r *Registry) Provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, name)
	}
	return p, nil
}

// Registered returns the names of all registered adapters.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

func (r *Registry) Catalog() *Catalog { return r.catalog }

// ResolveModel resolves a model id against the catalog. See Catalog.Resolve.
func (r *Registry) ResolveModel(id string) (provider, model string, err error) {
	return r.catalog.Resolve(id)
}

// ListModels lists catalog models. See Catalog.List.
func (r *Registry) ListModels(filterProvider string) []string {
	return r.catalog.List(filterProvider)
}
