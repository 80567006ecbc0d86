package tessera

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValueKind discriminates the variants of Value.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindTime   ValueKind = "time"
	KindNested ValueKind = "nested"
)

// Value is a tagged union over the scalar shapes a document field can hold.
// Filter, join and sort code switches exhaustively on Kind instead of
// reflecting over untyped bags.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	Time   time.Time
	Nested map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// String wraps a string into a Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps a float64 into a Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool wraps a bool into a Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Time wraps a time.Time into a Value.
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// Nested wraps a sub-document into a Value.
func Nested(fields map[string]Value) Value { return Value{Kind: KindNested, Nested: fields} }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull || v.Kind == "" }

// FromAny converts a loosely typed document field (as produced by
// encoding/json or a database driver) into a Value.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return String(x.String())
		}
		return Number(f)
	case time.Time:
		return Time(x)
	case []byte:
		return String(string(x))
	case map[string]any:
		nested := make(map[string]Value, len(x))
		for k, elem := range x {
			nested[k] = FromAny(elem)
		}
		return Nested(nested)
	default:
		return String(fmt.Sprintf("%v", x))
	}
}

// ToAny converts a Value back into the loosely typed form used on the wire
// and in snapshot persistence.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindNested:
		out := make(map[string]any, len(v.Nested))
		for k, elem := range v.Nested {
			out[k] = elem.ToAny()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep equality between two values. Numbers and numeric
// strings compare numerically so that document stores that stringify
// numbers still join correctly.
func (v Value) Equal(other Value) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() && other.IsNull()
	}
	if v.Kind == other.Kind {
		switch v.Kind {
		case KindString:
			return v.Str == other.Str
		case KindNumber:
			return v.Num == other.Num
		case KindBool:
			return v.Bool == other.Bool
		case KindTime:
			return v.Time.Equal(other.Time)
		case KindNested:
			if len(v.Nested) != len(other.Nested) {
				return false
			}
			for k, elem := range v.Nested {
				o, ok := other.Nested[k]
				if !ok || !elem.Equal(o) {
					return false
				}
			}
			return true
		}
	}
	if a, aok := v.asNumber(); aok {
		if b, bok := other.asNumber(); bok {
			return a == b
		}
	}
	return v.coerceString() == other.coerceString()
}

// Compare orders two values: negative when v < other, zero when equal,
// positive when v > other. Null sorts before every defined value. Mixed
// kinds fall back to numeric coercion, then string comparison.
func (v Value) Compare(other Value) int {
	if v.IsNull() || other.IsNull() {
		switch {
		case v.IsNull() && other.IsNull():
			return 0
		case v.IsNull():
			return -1
		default:
			return 1
		}
	}
	if v.Kind == other.Kind {
		switch v.Kind {
		case KindNumber:
			return compareFloat(v.Num, other.Num)
		case KindString:
			return strings.Compare(v.Str, other.Str)
		case KindBool:
			return compareBool(v.Bool, other.Bool)
		case KindTime:
			switch {
			case v.Time.Before(other.Time):
				return -1
			case v.Time.After(other.Time):
				return 1
			default:
				return 0
			}
		}
	}
	if a, aok := v.asNumber(); aok {
		if b, bok := other.asNumber(); bok {
			return compareFloat(a, b)
		}
	}
	return strings.Compare(v.coerceString(), other.coerceString())
}

func (v Value) asNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) coerceString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// MarshalJSON renders the value in its natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON infers the variant from the JSON token.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Row is a single document keyed by field name.
type Row map[string]Value

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ToAnyMap converts the row into a loosely typed document.
func (r Row) ToAnyMap() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.ToAny()
	}
	return out
}

// FieldNames returns the row's field names in sorted order.
func (r Row) FieldNames() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RowFromAny converts a loosely typed document into a Row.
func RowFromAny(doc map[string]any) Row {
	row := make(Row, len(doc))
	for k, raw := range doc {
		row[k] = FromAny(raw)
	}
	return row
}

// Field describes one column of a collection's inferred or declared schema.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // "string", "number", "bool", "time", "object", "null"
}

// CollectionSnapshot is an immutable fetched copy of a collection. A refresh
// produces a new snapshot; the latest one wins by FetchedAt.
type CollectionSnapshot struct {
	SourceID   string    `json:"source_id"`
	Collection string    `json:"collection"`
	Schema     []Field   `json:"schema"`
	Rows       []Row     `json:"rows"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Strategy selects the caching/refresh policy of a federated query.
type Strategy string

const (
	StrategyVirtual      Strategy = "virtual"
	StrategyMaterialized Strategy = "materialized"
	StrategyHybrid       Strategy = "hybrid"
)

// ParseStrategy validates a strategy token from the wire.
func ParseStrategy(token string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(token))) {
	case StrategyVirtual:
		return StrategyVirtual, nil
	case StrategyMaterialized:
		return StrategyMaterialized, nil
	case StrategyHybrid:
		return StrategyHybrid, nil
	default:
		return "", NewUnknownStrategyError(token)
	}
}

// FederatedQuery is the single entry-point request.
type FederatedQuery struct {
	ID            uuid.UUID        `json:"id"`
	Text          string           `json:"text"`
	DataSourceIDs []string         `json:"data_source_ids"`
	Params        map[string]Value `json:"params,omitempty"`
	Strategy      Strategy         `json:"strategy"`
}

// FederatedResult is the outcome of one federated execution.
type FederatedResult struct {
	Rows            []Row      `json:"rows"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	CacheHit        bool       `json:"cache_hit"`
	LastUpdated     time.Time  `json:"last_updated"`
	NextUpdate      *time.Time `json:"next_update,omitempty"`
}

// ValidationResult is the outcome of a syntax-only check.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error *Error `json:"error,omitempty"`
}
