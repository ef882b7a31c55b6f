package schedule

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/clambin/go-common/set"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// GlobalSource provides the persisted global variable values.
type GlobalSource interface {
	GlobalVariables() (map[string]string, error)
}

// Registry loads schedule definitions and resolves them into compiled zone
// timetables. Definitions are re-read on every call, so edits to the
// underlying files take effect on the next request.
type Registry struct {
	source  fs.FS
	globals GlobalSource
}

func NewRegistry(source fs.FS, globals GlobalSource) *Registry {
	return &Registry{source: source, globals: globals}
}

// Request selects the schedules to resolve. An empty Name selects all
// schedules; Overrides require a Name. Variables optionally seeds each
// variant's store (it is copied, never modified).
type Request struct {
	Name      string
	Variables *Variables
	Overrides map[string]string
}

// Schedule is a fully resolved schedule variant: per-zone compiled timetables
// plus the variable store they were resolved with.
type Schedule struct {
	Name      string
	Zones     map[string][]Interval
	Variables *Variables
}

// Schedules resolves and compiles the requested schedule(s), keyed by name.
func (r *Registry) Schedules(req Request) (map[string]Schedule, error) {
	variants, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	schedules := make(map[string]Schedule, len(variants))
	for name, v := range variants {
		if req.Name != "" && name != req.Name {
			continue
		}
		zones := make(map[string][]Interval, len(v.zones))
		for zoneName := range v.zones {
			timetable, err := compileZone(variants, name, zoneName, true)
			if err != nil {
				return nil, fmt.Errorf("schedule %q: zone %q: %w", name, zoneName, err)
			}
			zones[zoneName] = timetable
		}
		schedules[name] = Schedule{Name: name, Zones: zones, Variables: v.variables}
	}
	return schedules, nil
}

// Schedule resolves and compiles a single named schedule.
func (r *Registry) Schedule(req Request) (Schedule, error) {
	schedules, err := r.Schedules(req)
	if err != nil {
		return Schedule{}, err
	}
	return schedules[req.Name], nil
}

// Variables resolves variables only, skipping timetable compilation.
func (r *Registry) Variables(req Request) (map[string]*Variables, error) {
	variants, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	variables := make(map[string]*Variables, len(variants))
	for name, v := range variants {
		if req.Name != "" && name != req.Name {
			continue
		}
		variables[name] = v.variables
	}
	return variables, nil
}

type variant struct {
	zones     map[string]rawZone
	variables *Variables
}

type rawZone struct {
	copyRef string // "<schedule>:<zone>" reference; either side may be empty
	hasCopy bool
	blocks  []RawBlock
}

func (r *Registry) resolve(req Request) (map[string]*variant, error) {
	if req.Name == "" && len(req.Overrides) > 0 {
		return nil, ErrAmbiguousOverrides
	}
	globals, err := r.globals.GlobalVariables()
	if err != nil {
		return nil, fmt.Errorf("global variables: %w", err)
	}

	variants := make(map[string]*variant)
	for _, pattern := range []string{"*.toml", "*.yaml"} {
		filenames, err := fs.Glob(r.source, pattern)
		if err != nil {
			return nil, fmt.Errorf("schedules: %w", err)
		}
		for _, filename := range filenames {
			if err = r.loadFile(filename, variants, globals, req); err != nil {
				return nil, err
			}
		}
	}

	if len(variants) == 0 {
		return nil, ErrNoSchedules
	}
	if req.Name != "" {
		if _, ok := variants[req.Name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, req.Name)
		}
	}
	return variants, nil
}

func (r *Registry) loadFile(filename string, variants map[string]*variant, globals map[string]string, req Request) error {
	body, err := fs.ReadFile(r.source, filename)
	if err != nil {
		return fmt.Errorf("schedules: %w", err)
	}
	var document map[string]any
	if path.Ext(filename) == ".yaml" {
		err = yaml.Unmarshal(body, &document)
	} else {
		err = toml.Unmarshal(body, &document)
	}
	if err != nil {
		return fmt.Errorf("schedules: %s: %w", filename, err)
	}

	metadata, _ := document["metadata"].(map[string]any)
	variantList := []map[string]any{metadata}
	if listed, ok := document["variant"].([]any); ok {
		for _, entry := range listed {
			variantMetadata, ok := entry.(map[string]any)
			if !ok {
				return fmt.Errorf("schedules: %s: malformed variant", filename)
			}
			variantList = append(variantList, variantMetadata)
		}
	}

	zones, err := parseZones(document)
	if err != nil {
		return fmt.Errorf("schedules: %s: %w", filename, err)
	}

	for _, entry := range variantList {
		merged := make(map[string]any, len(metadata)+len(entry))
		for key, value := range metadata {
			merged[key] = value
		}
		for key, value := range entry {
			merged[key] = value
		}
		name, ok := merged["name"].(string)
		if !ok || name == "" {
			return fmt.Errorf("schedules: %s: variant has no name", filename)
		}
		delete(merged, "name")

		declared := make(map[string]string, len(merged))
		for key, value := range merged {
			text, ok := value.(string)
			if !ok {
				return fmt.Errorf("schedules: %s: variable %q: value must be a string", filename, key)
			}
			declared[key] = text
		}

		variants[name] = &variant{zones: zones, variables: resolveVariables(declared, globals, req)}
	}
	return nil
}

// resolveVariables builds one variant's store: the seed store (copied), then
// the variant's declared defaults, then the persisted globals and the
// request's overrides, both restricted to the declared names.
func resolveVariables(declared, globals map[string]string, req Request) *Variables {
	variables := NewVariables()
	if req.Variables != nil {
		variables = req.Variables.Copy()
	}

	defaults := make(map[string]string, len(declared))
	for name, value := range declared {
		if !variables.Has(name) {
			defaults[name] = value
		}
	}
	variables.AddDefaults(defaults)

	declaredNames := set.New[string]()
	for name := range declared {
		declaredNames.Add(name)
	}

	applicableGlobals := make(map[string]string)
	storeGlobals := variables.Globals()
	for name, value := range globals {
		if declaredNames.Contains(name) && !storeGlobals.Contains(name) {
			applicableGlobals[name] = value
		}
	}
	variables.AddGlobals(applicableGlobals)

	overrides := make(map[string]string)
	for name, value := range req.Overrides {
		if declaredNames.Contains(name) {
			overrides[name] = value
		}
	}
	variables.AddOverrides(overrides)

	return variables
}

func parseZones(document map[string]any) (map[string]rawZone, error) {
	zones := make(map[string]rawZone)
	for key, value := range document {
		if key == "metadata" || key == "variant" {
			continue
		}
		entries, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("zone %q: expected a list of blocks", key)
		}
		var zone rawZone
		for _, entry := range entries {
			block, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("zone %q: malformed block", key)
			}
			if ref, ok := block["copy"]; ok {
				copyRef, ok := ref.(string)
				if !ok {
					return nil, fmt.Errorf("zone %q: malformed copy reference", key)
				}
				// the first copy block wins; subsequent ones are dropped
				if !zone.hasCopy {
					zone.copyRef = copyRef
					zone.hasCopy = true
				}
				continue
			}
			raw, err := parseBlock(block)
			if err != nil {
				return nil, fmt.Errorf("zone %q: %w", key, err)
			}
			zone.blocks = append(zone.blocks, raw)
		}
		zones[key] = zone
	}
	return zones, nil
}

func parseBlock(block map[string]any) (RawBlock, error) {
	token, ok := block["time"].(string)
	if !ok {
		return RawBlock{}, fmt.Errorf("block has no time")
	}
	raw := RawBlock{Time: token}
	switch temperature := block["temperature"].(type) {
	case float64:
		raw.Setpoint.Temperature = temperature
	case int64:
		raw.Setpoint.Temperature = float64(temperature)
	case int:
		raw.Setpoint.Temperature = float64(temperature)
	case string:
		if temperature != "reset" {
			return RawBlock{}, fmt.Errorf("invalid temperature: %q", temperature)
		}
		raw.Setpoint.Reset = true
	default:
		return RawBlock{}, fmt.Errorf("block has no temperature")
	}
	return raw, nil
}

// compileZone compiles one zone's timetable. When the zone copies from
// another schedule/zone, the referenced timetable is compiled (under its own
// schedule's variables, without further copy resolution) and the zone's own
// blocks are merged on top of it.
func compileZone(variants map[string]*variant, scheduleName, zoneName string, resolveCopy bool) ([]Interval, error) {
	v, ok := variants[scheduleName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleName)
	}
	zone, ok := v.zones[zoneName]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrZoneNotFound, scheduleName, zoneName)
	}

	timetable, err := compile(zone.blocks, v.variables.Values())
	if err != nil {
		return nil, err
	}
	if !resolveCopy || !zone.hasCopy {
		return timetable, nil
	}

	refSchedule, refZone := splitCopyRef(zone.copyRef, scheduleName, zoneName)
	base, err := compileZone(variants, refSchedule, refZone, false)
	if err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return timetable, nil
	}
	return merge(base, timetable), nil
}

// splitCopyRef parses a "<schedule>:<zone>" copy reference. Either side (or
// the colon itself) may be omitted and defaults to the current schedule/zone.
func splitCopyRef(ref, scheduleName, zoneName string) (string, string) {
	refSchedule, refZone := ref, ""
	if name, zone, found := strings.Cut(ref, ":"); found {
		refSchedule, refZone = name, zone
	}
	if refSchedule == "" {
		refSchedule = scheduleName
	}
	if refZone == "" {
		refZone = zoneName
	}
	return refSchedule, refZone
}
