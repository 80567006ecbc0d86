package internal

import (
	"sort"

	"github.com/tessera-data/tessera"
)

// InferSchema derives a collection schema from its rows: the union of field
// names, each typed by the first non-null value seen. Fields only ever seen
// null are typed "null". Output is sorted by field name for determinism.
func InferSchema(rows []tessera.Row) []tessera.Field {
	types := make(map[string]string)
	for _, row := range rows {
		for name, value := range row {
			existing, seen := types[name]
			if seen && existing != "null" {
				continue
			}
			types[name] = fieldType(value)
		}
	}

	fields := make([]tessera.Field, 0, len(types))
	for _, name := range SortedMapKeys(types) {
		fields = append(fields, tessera.Field{Name: name, Type: types[name]})
	}
	return fields
}

func fieldType(v tessera.Value) string {
	switch v.Kind {
	case tessera.KindString:
		return "string"
	case tessera.KindNumber:
		return "number"
	case tessera.KindBool:
		return "bool"
	case tessera.KindTime:
		return "time"
	case tessera.KindNested:
		return "object"
	default:
		return "null"
	}
}

// sortFields orders a schema by field name in place.
func sortFields(fields []tessera.Field) {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
}
