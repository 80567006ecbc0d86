package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tessera-data/tessera"
	"go.uber.org/zap"
)

// TransformFunc is a pure function over a single field value.
type TransformFunc func(tessera.Value) tessera.Value

// MappingApplier synthesizes logical collections from physical ones by
// applying declared field-level rules. It owns the transform registries; the
// built-in named transforms are always available and callers may register
// custom ones.
type MappingApplier struct {
	mu      sync.RWMutex
	customs map[string]TransformFunc
}

// NewMappingApplier creates a MappingApplier with the built-in transforms.
func NewMappingApplier() *MappingApplier {
	return &MappingApplier{
		customs: make(map[string]TransformFunc),
	}
}

// RegisterCustomTransform registers a caller-supplied function for rules of
// kind "custom". A custom rule whose name is not registered behaves like a
// direct copy.
func (a *MappingApplier) RegisterCustomTransform(name string, fn TransformFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fn == nil {
		delete(a.customs, name)
		return
	}
	a.customs[name] = fn
}

// Synthesize derives logical collections for every active mapping whose
// target is absent from available and whose source is present. It never
// mutates available and returns only the newly derived entries; the caller
// merges them. Re-running on the same inputs yields identical output.
//
// The only error case is a mapping whose TargetSchema document does not
// parse; row-level validation failures drop the offending row with a log
// line instead of failing the whole synthesis.
func (a *MappingApplier) Synthesize(mappings []tessera.SchemaMapping, available map[string][]tessera.Row) (map[string][]tessera.Row, error) {
	derived := make(map[string][]tessera.Row)
	for _, mapping := range mappings {
		if !mapping.Active() {
			continue
		}
		if _, exists := available[mapping.TargetCollection]; exists {
			continue
		}
		sourceRows, ok := available[mapping.SourceCollection]
		if !ok {
			// source absent is not an error; the mapping simply yields nothing
			continue
		}

		validate, err := compileTargetSchema(mapping)
		if err != nil {
			return nil, err
		}

		rows := make([]tessera.Row, 0, len(sourceRows))
		for _, src := range sourceRows {
			row := a.applyRules(mapping, src)
			if len(row) == 0 {
				continue
			}
			if validate != nil {
				if err := validate(row); err != nil {
					zap.S().Warnw("synthesized row failed target schema validation, dropping",
						"mapping_id", mapping.ID,
						"target", mapping.TargetCollection,
						"error", err)
					continue
				}
			}
			rows = append(rows, row)
		}
		derived[mapping.TargetCollection] = rows
	}
	return derived, nil
}

// applyRules builds one target row. Rules are independent and order
// insensitive; a source field absent on the row is omitted, never
// null-filled.
func (a *MappingApplier) applyRules(mapping tessera.SchemaMapping, src tessera.Row) tessera.Row {
	row := make(tessera.Row, len(mapping.Rules))
	for _, rule := range mapping.Rules {
		value, ok := src[rule.SourceField]
		if !ok {
			continue
		}
		switch rule.Kind {
		case tessera.RuleTransform:
			row[rule.TargetField] = applyNamedTransform(rule.TransformName, value)
		case tessera.RuleCustom:
			a.mu.RLock()
			fn := a.customs[rule.TransformName]
			a.mu.RUnlock()
			if fn != nil {
				row[rule.TargetField] = fn(value)
			} else {
				row[rule.TargetField] = value
			}
		default:
			row[rule.TargetField] = value
		}
	}
	return row
}

// applyNamedTransform resolves a built-in transform by name. Unknown names
// return the value unchanged; the lenient policy keeps a typo in one rule
// from blanking a whole synthesized collection.
func applyNamedTransform(name string, v tessera.Value) tessera.Value {
	fn, ok := builtinTransforms[name]
	if !ok {
		zap.S().Debugw("unknown transform name, passing value through", "transform", name)
		return v
	}
	return fn(v)
}

var builtinTransforms = map[string]TransformFunc{
	"toUpperCase": func(v tessera.Value) tessera.Value {
		if v.Kind == tessera.KindString {
			return tessera.String(strings.ToUpper(v.Str))
		}
		return v
	},
	"toLowerCase": func(v tessera.Value) tessera.Value {
		if v.Kind == tessera.KindString {
			return tessera.String(strings.ToLower(v.Str))
		}
		return v
	},
	"trim": func(v tessera.Value) tessera.Value {
		if v.Kind == tessera.KindString {
			return tessera.String(strings.TrimSpace(v.Str))
		}
		return v
	},
	"toDate": func(v tessera.Value) tessera.Value {
		if v.Kind != tessera.KindString {
			return v
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return tessera.Time(t)
			}
		}
		return v
	},
	"toNumber": func(v tessera.Value) tessera.Value {
		switch v.Kind {
		case tessera.KindNumber:
			return v
		case tessera.KindString:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
				return tessera.Number(n)
			}
			return v
		case tessera.KindBool:
			if v.Bool {
				return tessera.Number(1)
			}
			return tessera.Number(0)
		default:
			return v
		}
	},
	"toString": func(v tessera.Value) tessera.Value {
		switch v.Kind {
		case tessera.KindString:
			return v
		case tessera.KindNumber:
			return tessera.String(strconv.FormatFloat(v.Num, 'g', -1, 64))
		case tessera.KindBool:
			return tessera.String(strconv.FormatBool(v.Bool))
		case tessera.KindTime:
			return tessera.String(v.Time.Format(time.RFC3339Nano))
		default:
			return v
		}
	},
}

// compileTargetSchema resolves the mapping's optional JSON Schema document
// into a row validator. Returns nil when no schema is declared.
func compileTargetSchema(mapping tessera.SchemaMapping) (func(tessera.Row) error, error) {
	if mapping.TargetSchema == "" {
		return nil, nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(mapping.TargetSchema), &schema); err != nil {
		return nil, tessera.NewMappingSynthesisError(mapping.ID,
			fmt.Sprintf("target schema for '%s' is not valid JSON Schema", mapping.TargetCollection)).WithCause(err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, tessera.NewMappingSynthesisError(mapping.ID,
			fmt.Sprintf("target schema for '%s' failed to resolve", mapping.TargetCollection)).WithCause(err)
	}
	return func(row tessera.Row) error {
		return resolved.Validate(row.ToAnyMap())
	}, nil
}
