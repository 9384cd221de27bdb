package model

import (
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

// Category describes one inspection subject and the states an image of it may show
type Category struct {
	ID               types.CategoryID `json:"id" toml:"id"`
	Name             string           `json:"name" toml:"name"`
	ExpectedStates   []types.State    `json:"expected_states" toml:"expected_states"`
	CriticalFeatures []string         `json:"critical_features" toml:"critical_features"`
	FailureModes     []string         `json:"failure_modes" toml:"failure_modes"`
	// ContextualNote is added to the key observations when a valid reference match
	// overrides the verdict
	ContextualNote string `json:"contextual_note,omitempty" toml:"contextual_note"`
	// DefaultPrompt may contain {state}, replaced by the expected state in words
	DefaultPrompt string `json:"default_prompt,omitempty" toml:"default_prompt"`

	// Aliases are alternative folder names of the category
	Aliases []string `json:"aliases,omitempty" toml:"aliases"`
	// StateAliases maps normalized folder labels to expected states
	StateAliases map[string]types.State `json:"state_aliases,omitempty" toml:"state_aliases"`
}

// HasState reports whether state is one of the category's expected states
func (c *Category) HasState(state types.State) bool {
	for _, s := range c.ExpectedStates {
		if s == state {
			return true
		}
	}
	return false
}

// Prompt renders the default prompt for the given state
func (c *Category) Prompt(state types.State) string {
	words := strings.ReplaceAll(state.String(), "_", " ")
	if c.DefaultPrompt == "" {
		return "Analyze this image and determine if it shows " + words + " for " + strings.ReplaceAll(c.ID.String(), "_", " ") + "."
	}
	return strings.ReplaceAll(c.DefaultPrompt, "{state}", words)
}

// SuggestPrompt expands the default prompt with the category's check points. description
// is appended as additional context when set.
func (c *Category) SuggestPrompt(state types.State, description string) string {
	var sb strings.Builder
	sb.WriteString(c.Prompt(state))

	if len(c.CriticalFeatures) > 0 {
		sb.WriteString("\n\nKey Validation Points:")
		for _, f := range c.CriticalFeatures {
			sb.WriteString("\n[CRITICAL] " + f)
		}
	}
	if len(c.FailureModes) > 0 {
		sb.WriteString("\n\nKnown Failure Modes:")
		for _, f := range c.FailureModes {
			sb.WriteString("\n- " + f)
		}
	}
	if description != "" {
		sb.WriteString("\n\nAdditional Context:\n" + description)
	}
	return sb.String()
}

// Validate checks the category definition
func (c *Category) Validate() error {
	if err := c.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid category id")
	}
	if len(c.ExpectedStates) == 0 {
		return goerr.New("category has no expected states", goerr.V(CategoryKey, c.ID))
	}

	seen := make(map[types.State]bool)
	for _, s := range c.ExpectedStates {
		if err := s.Validate(); err != nil {
			return goerr.Wrap(err, "invalid expected state", goerr.V(CategoryKey, c.ID))
		}
		if seen[s] {
			return goerr.New("duplicate expected state", goerr.V(CategoryKey, c.ID), goerr.V(StateKey, s))
		}
		seen[s] = true
	}
	for label, s := range c.StateAliases {
		if !seen[s] {
			return goerr.Wrap(ErrUnexpectedState, "state alias points to unknown state",
				goerr.V(CategoryKey, c.ID), goerr.V(StateKey, s), goerr.V("alias", label))
		}
	}
	return nil
}

// ResolveState maps a normalized label to an expected state
func (c *Category) ResolveState(label string) (types.State, bool) {
	state := types.State(types.NormalizeLabel(label))
	if c.HasState(state) {
		return state, true
	}
	if s, ok := c.StateAliases[state.String()]; ok {
		return s, true
	}
	return "", false
}

func (c *Category) clone() *Category {
	copied := *c
	copied.ExpectedStates = append([]types.State{}, c.ExpectedStates...)
	copied.CriticalFeatures = cloneStrings(c.CriticalFeatures)
	copied.FailureModes = cloneStrings(c.FailureModes)
	copied.Aliases = cloneStrings(c.Aliases)
	if c.StateAliases != nil {
		copied.StateAliases = make(map[string]types.State, len(c.StateAliases))
		for k, v := range c.StateAliases {
			copied.StateAliases[k] = v
		}
	}
	return &copied
}

// CategoryRegistry is an immutable set of categories keyed by ID
type CategoryRegistry struct {
	categories map[types.CategoryID]*Category
	aliases    map[string]types.CategoryID
}

// NewCategoryRegistry builds a registry from the given categories. Later entries
// replace earlier entries with the same ID.
func NewCategoryRegistry(categories ...*Category) (*CategoryRegistry, error) {
	r := &CategoryRegistry{
		categories: make(map[types.CategoryID]*Category, len(categories)),
		aliases:    make(map[string]types.CategoryID),
	}
	for _, c := range categories {
		if c == nil {
			continue
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		r.categories[c.ID] = c.clone()
		for _, alias := range c.Aliases {
			r.aliases[types.NormalizeLabel(alias)] = c.ID
		}
	}
	return r, nil
}

// DefaultCategoryRegistry returns the registry with the built-in categories
func DefaultCategoryRegistry() *CategoryRegistry {
	r, err := NewCategoryRegistry(DefaultCategories()...)
	if err != nil {
		panic("built-in categories are invalid: " + err.Error())
	}
	return r
}

// Merge returns a new registry where the given categories override or extend r
func (r *CategoryRegistry) Merge(categories ...*Category) (*CategoryRegistry, error) {
	all := r.List()
	all = append(all, categories...)
	return NewCategoryRegistry(all...)
}

// Get returns a copy of the category
func (r *CategoryRegistry) Get(id types.CategoryID) (*Category, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.categories[id]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

// Resolve finds a category by a free-form label, either its ID or one of its aliases
func (r *CategoryRegistry) Resolve(label string) (*Category, bool) {
	if r == nil {
		return nil, false
	}
	normalized := types.NormalizeLabel(label)
	if c, ok := r.Get(types.CategoryID(normalized)); ok {
		return c, true
	}
	if id, ok := r.aliases[normalized]; ok {
		return r.Get(id)
	}
	return nil, false
}

// Lookup is Get with an error suited for input validation
func (r *CategoryRegistry) Lookup(id types.CategoryID) (*Category, error) {
	c, ok := r.Get(id)
	if !ok {
		return nil, goerr.Wrap(ErrUnknownCategory, "category is not registered", goerr.V(CategoryKey, id))
	}
	return c, nil
}

// List returns all categories sorted by ID
func (r *CategoryRegistry) List() []*Category {
	if r == nil {
		return nil
	}
	result := make([]*Category, 0, len(r.categories))
	for _, c := range r.categories {
		result = append(result, c.clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// DefaultCategories returns the built-in inspection categories
func DefaultCategories() []*Category {
	return []*Category{
		{
			ID:               "corrosion",
			Name:             "Corrosion",
			ExpectedStates:   []types.State{"clean", "corroded", "treated"},
			CriticalFeatures: []string{"Surface color uniformity", "Metal integrity", "Absence of rust", "Paint or coating condition"},
			FailureModes:     []string{"Surface rust", "Pitting corrosion", "Galvanic corrosion", "Under-paint corrosion"},
			ContextualNote:   "Surface and coating condition consistent with the verified reference",
			StateAliases:     map[string]types.State{"no_corrosion": "clean", "has_corrosion": "corroded"},
			DefaultPrompt:    "Analyze this image and determine if there is any visible corrosion. Focus on signs of rust, deterioration, or surface degradation. The image should show {state}.",
		},
		{
			ID:               "threads",
			Name:             "Threads",
			ExpectedStates:   []types.State{"visible", "damaged"},
			CriticalFeatures: []string{"Thread pattern visibility", "Thread continuity", "Thread peak condition", "Thread cleanliness"},
			FailureModes:     []string{"Thread stripping", "Cross-threading", "Thread wear", "Thread damage"},
			ContextualNote:   "Thread pattern and engagement consistent with the verified reference",
			StateAliases:     map[string]types.State{"visible_threads": "visible", "no_visible_threads": "damaged"},
			DefaultPrompt:    "Examine this image and determine if there are visible threads on the component. The threads should be {state}.",
		},
		{
			ID:               "connector_plates",
			Name:             "Connector plates",
			ExpectedStates:   []types.State{"straight", "bent"},
			CriticalFeatures: []string{"Surface flatness", "Edge straightness", "Connection security", "Overall alignment"},
			FailureModes:     []string{"Plate bending", "Misalignment", "Connection failure", "Edge damage"},
			ContextualNote:   "Plate alignment and flatness consistent with the verified reference",
			DefaultPrompt:    "Analyze this image and determine if the connector plate is {state}. Look for any bending, straightness, or deformation.",
		},
		{
			ID:               "cotter_pins",
			Name:             "Cotter pins",
			ExpectedStates:   []types.State{"present", "missing"},
			CriticalFeatures: []string{"Pin presence", "Proper spreading", "Size match", "Installation security"},
			FailureModes:     []string{"Missing pin", "Inadequate spreading", "Size mismatch", "Loose fitting"},
			ContextualNote:   "Pin installation consistent with the verified reference",
			DefaultPrompt:    "Examine this image and determine if the cotter pins are {state}. Look for the presence or absence of cotter pins in the assembly.",
		},
		{
			ID:               "spacer_plates",
			Name:             "Spacer plates",
			ExpectedStates:   []types.State{"present", "missing"},
			CriticalFeatures: []string{"Spacing accuracy", "Alignment precision", "Installation security", "Gap uniformity"},
			FailureModes:     []string{"Spacing error", "Misalignment", "Loose fitting", "Gap variation"},
			ContextualNote:   "Spacer placement consistent with the verified reference",
			DefaultPrompt:    "Analyze this image and determine if the spacer plates are {state}. Check for proper placement and presence of spacer plates.",
		},
		{
			ID:               "positive_connection",
			Name:             "Positive connection",
			ExpectedStates:   []types.State{"bolts_present", "bolts_missing"},
			CriticalFeatures: []string{"Bolt presence", "Thread engagement", "Orientation correctness", "Installation security"},
			FailureModes:     []string{"Missing bolts", "Poor engagement", "Wrong orientation", "Looseness"},
			ContextualNote:   "Bolt installation consistent with the verified reference",
			Aliases:          []string{"postitive connection"},
			StateAliases:     map[string]types.State{"present": "bolts_present", "missing": "bolts_missing"},
			DefaultPrompt:    "Examine this image and verify that the bolts match the expected state ({state}). Check for proper bolt installation and presence.",
		},
		{
			ID:               "cable_diameter",
			Name:             "Cable diameter",
			ExpectedStates:   []types.State{"compliant", "non_compliant"},
			CriticalFeatures: []string{"Diameter size", "Diameter consistency", "Surface condition", "Overall integrity"},
			FailureModes:     []string{"Undersized diameter", "Irregular diameter", "Wear damage", "Material degradation"},
			ContextualNote:   "Cable diameter meets the 3/8-inch requirement shown by the verified reference",
			StateAliases:     map[string]types.State{"38inch": "compliant", "not_38inch": "non_compliant"},
			DefaultPrompt:    "Measure and verify if the cable diameter meets the minimum 3/8-inch requirement. Look for any signs that indicate the cable diameter is insufficient. The cable should be {state}.",
		},
	}
}
