package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Parameter describes one configurable knob of a built-in strategy.
type Parameter struct {
	Name        string
	Type        string // "decimal", "float", "int"
	Description string
	Default     any
	Required    bool
	Min         *float64
	Max         *float64
}

// Definition is one entry in the strategy catalog. For DSL strategies
// the factory compiles YAML source; otherwise it builds from params.
type Definition struct {
	ID          string
	Name        string
	Description string
	Parameters  []Parameter
	IsDSL       bool
	Factory     func(source string, params map[string]any) (Strategy, error)
}

// Registry is the catalog of available strategies.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewRegistry creates a registry pre-loaded with the built-in
// strategies.
func NewRegistry() *Registry {
	r := &Registry{definitions: make(map[string]*Definition)}
	registerBuiltins(r)
	return r
}

// Register adds a definition; duplicate IDs are a programming error.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.ID]; exists {
		panic(fmt.Sprintf("strategy %q registered twice", def.ID))
	}
	r.definitions[def.ID] = def
}

// Get returns a definition by ID.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[id]
	return def, ok
}

// List returns all definitions ordered by ID.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Build constructs a Strategy from a definition plus agent config.
func (r *Registry) Build(strategyType, source string, params map[string]any) (Strategy, error) {
	def, ok := r.Get(strategyType)
	if !ok {
		return nil, fmt.Errorf("unknown strategy type: %s", strategyType)
	}
	if def.IsDSL && source == "" {
		return nil, fmt.Errorf("strategy %s requires YAML source", strategyType)
	}
	return def.Factory(source, params)
}

func floatPtr(f float64) *float64 { return &f }

// registerBuiltins loads the shipped strategy catalog.
func registerBuiltins(r *Registry) {
	r.Register(&Definition{
		ID:          "random",
		Name:        "Random Strategy",
		Description: "Makes random buy/sell decisions. Good for testing the system.",
		Parameters: []Parameter{
			{
				Name:        "max_order_value",
				Type:        "decimal",
				Description: "Maximum value per order in dollars",
				Default:     1000.0,
				Min:         floatPtr(10),
				Max:         floatPtr(100000),
			},
			{
				Name:        "price_offset_pct",
				Type:        "float",
				Description: "How far from market price to place limit orders (0.02 = 2%)",
				Default:     0.02,
				Min:         floatPtr(0.001),
				Max:         floatPtr(0.5),
			},
			{
				Name:        "cancel_probability",
				Type:        "float",
				Description: "Chance to cancel an old order each tick (0.0-1.0)",
				Default:     0.1,
				Min:         floatPtr(0),
				Max:         floatPtr(1),
			},
			{
				Name:        "market_order_probability",
				Type:        "float",
				Description: "Chance an order is placed as a market order (0.0-1.0)",
				Default:     0.3,
				Min:         floatPtr(0),
				Max:         floatPtr(1),
			},
		},
		Factory: func(_ string, params map[string]any) (Strategy, error) {
			return NewRandomStrategy(params)
		},
	})

	r.Register(&Definition{
		ID:          "rule_based",
		Name:        "Rule-Based Strategy",
		Description: "IF-THEN trading rules written in YAML. No programming required.",
		IsDSL:       true,
		Factory: func(source string, _ map[string]any) (Strategy, error) {
			return CompileYAML(source)
		},
	})
}
