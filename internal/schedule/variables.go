package schedule

import (
	"encoding/json"
	"fmt"

	"github.com/clambin/go-common/set"
)

// Tier identifies where a variable's value came from. A higher tier takes
// precedence over a lower one.
type Tier int

const (
	TierDefault Tier = iota
	TierGlobal
	TierOverride
)

var tierNames = map[Tier]string{
	TierDefault:  "default",
	TierGlobal:   "global",
	TierOverride: "override",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(body []byte) error {
	var name string
	if err := json.Unmarshal(body, &name); err != nil {
		return err
	}
	for tier, tierName := range tierNames {
		if tierName == name {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("invalid tier: %q", name)
}

// Variable is a schedule variable's value, tagged with the tier it was set at.
type Variable struct {
	Value string `json:"value"`
	Tier  Tier   `json:"type"`
}

// Variables is a schedule's variable store. Entries can only be created
// through AddDefaults, AddGlobals and AddOverrides, which enforce tier
// precedence: adding at a lower tier than an entry's current tier is a no-op,
// adding at the same or a higher tier replaces both value and tier.
type Variables struct {
	vars map[string]Variable
}

func NewVariables() *Variables {
	return &Variables{vars: make(map[string]Variable)}
}

// AddDefaults adds values at the default tier. Existing global or override
// entries are left untouched.
func (v *Variables) AddDefaults(values map[string]string) {
	v.add(values, TierDefault)
}

// AddGlobals adds values at the global tier, overwriting default (and global)
// entries but never override entries.
func (v *Variables) AddGlobals(values map[string]string) {
	v.add(values, TierGlobal)
}

// AddOverrides adds values at the override tier, unconditionally.
func (v *Variables) AddOverrides(values map[string]string) {
	v.add(values, TierOverride)
}

func (v *Variables) add(values map[string]string, tier Tier) {
	for name, value := range values {
		if current, ok := v.vars[name]; ok && current.Tier > tier {
			continue
		}
		v.vars[name] = Variable{Value: value, Tier: tier}
	}
}

// Get returns the bare value for name.
func (v *Variables) Get(name string) (string, error) {
	entry, ok := v.vars[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	return entry.Value, nil
}

func (v *Variables) Has(name string) bool {
	_, ok := v.vars[name]
	return ok
}

func (v *Variables) Len() int {
	return len(v.vars)
}

// Values returns the bare name to value mapping.
func (v *Variables) Values() map[string]string {
	values := make(map[string]string, len(v.vars))
	for name, entry := range v.vars {
		values[name] = entry.Value
	}
	return values
}

// Entries returns a copy of the store's entries, including their tiers.
func (v *Variables) Entries() map[string]Variable {
	entries := make(map[string]Variable, len(v.vars))
	for name, entry := range v.vars {
		entries[name] = entry
	}
	return entries
}

// Globals returns the names currently held at the global tier.
func (v *Variables) Globals() set.Set[string] {
	globals := set.New[string]()
	for name, entry := range v.vars {
		if entry.Tier == TierGlobal {
			globals.Add(name)
		}
	}
	return globals
}

// OverridesOnly returns a copy holding only the override-tier entries.
func (v *Variables) OverridesOnly() *Variables {
	overrides := NewVariables()
	for name, entry := range v.vars {
		if entry.Tier == TierOverride {
			overrides.vars[name] = entry
		}
	}
	return overrides
}

// Copy returns an independent copy of the store.
func (v *Variables) Copy() *Variables {
	c := NewVariables()
	for name, entry := range v.vars {
		c.vars[name] = entry
	}
	return c
}

// Equal compares resolved values only. Tiers are ignored.
func (v *Variables) Equal(other *Variables) bool {
	if other == nil {
		return v == nil || len(v.vars) == 0
	}
	return v.EqualValues(other.Values())
}

// EqualValues compares the store's resolved values against a plain name to
// value mapping.
func (v *Variables) EqualValues(values map[string]string) bool {
	if len(v.vars) != len(values) {
		return false
	}
	for name, entry := range v.vars {
		if value, ok := values[name]; !ok || value != entry.Value {
			return false
		}
	}
	return true
}

func (v *Variables) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.vars)
}

func (v *Variables) UnmarshalJSON(body []byte) error {
	return json.Unmarshal(body, &v.vars)
}
