package core

// ToolCatalog answers validation lookups about tool availability.
type ToolCatalog interface {
	// IsToolActive reports whether the named tool exists and has not
	// been retired.
	IsToolActive(name string) bool
}

// ModelEntry describes one model in the catalog.
type ModelEntry struct {
	Name              string  `json:"name"`
	Provider          string  `json:"provider"`
	Active            bool    `json:"active"`
	InputCostPerMTok  float64 `json:"inputCostPerMTok"`
	OutputCostPerMTok float64 `json:"outputCostPerMTok"`
}

// ModelCatalog resolves model names for validation and cost accounting.
type ModelCatalog interface {
	// GetModelEntry returns the entry for the model, or nil when the
	// name does not resolve.
	GetModelEntry(modelName string) *ModelEntry
}

// StaticModelCatalog is a map-backed ModelCatalog.
type StaticModelCatalog struct {
	entries map[string]*ModelEntry
}

// NewStaticModelCatalog builds a catalog from a list of entries.
func NewStaticModelCatalog(entries []*ModelEntry) *StaticModelCatalog {
	m := make(map[string]*ModelEntry, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return &StaticModelCatalog{entries: m}
}

func (c *StaticModelCatalog) GetModelEntry(modelName string) *ModelEntry {
	return c.entries[modelName]
}

// DefaultModelCatalog returns the built-in model table. Pricing is in
// USD per million tokens.
func DefaultModelCatalog() *StaticModelCatalog {
	return NewStaticModelCatalog([]*ModelEntry{
		{Name: "claude-3-5-haiku-latest", Provider: "anthropic", Active: true, InputCostPerMTok: 0.80, OutputCostPerMTok: 4.00},
		{Name: "claude-sonnet-4-5", Provider: "anthropic", Active: true, InputCostPerMTok: 3.00, OutputCostPerMTok: 15.00},
		{Name: "claude-opus-4-1", Provider: "anthropic", Active: true, InputCostPerMTok: 15.00, OutputCostPerMTok: 75.00},
		{Name: "gpt-4o-mini", Provider: "openai", Active: true, InputCostPerMTok: 0.15, OutputCostPerMTok: 0.60},
		{Name: "gpt-4o", Provider: "openai", Active: true, InputCostPerMTok: 2.50, OutputCostPerMTok: 10.00},
		// Retired models stay listed so old graphs fail validation with
		// a catalog hit instead of an unknown-model error.
		{Name: "claude-instant-1.2", Provider: "anthropic", Active: false},
		{Name: "gpt-3.5-turbo", Provider: "openai", Active: false},
	})
}

// StaticToolCatalog is a map-backed ToolCatalog for tests and embedders
// that do not run a live tool registry.
type StaticToolCatalog struct {
	active map[string]bool
}

// NewStaticToolCatalog builds a catalog where the listed names are
// active and everything else is unknown.
func NewStaticToolCatalog(names ...string) *StaticToolCatalog {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return &StaticToolCatalog{active: m}
}

func (c *StaticToolCatalog) IsToolActive(name string) bool {
	return c.active[name]
}
