package tessera

// SourceType identifies the adapter family backing a data source.
type SourceType string

const (
	SourceTypePostgres SourceType = "postgres"
	SourceTypeSQLite   SourceType = "sqlite"
	SourceTypeDuckDB   SourceType = "duckdb"
	SourceTypeMemory   SourceType = "memory"
)

// SourceStatus tracks the connection state of a data source.
type SourceStatus string

const (
	SourceStatusConnected    SourceStatus = "connected"
	SourceStatusDisconnected SourceStatus = "disconnected"
	SourceStatusError        SourceStatus = "error"
)

// DataSource is the engine's read-only view of a registered source. The
// configuration storage layer owns the record; the engine holds a reference
// plus a live adapter handle once connected. Config is immutable after
// connect; changing it forces a disconnect and reconnect.
type DataSource struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	Type             SourceType        `json:"type" yaml:"type"`
	Config           map[string]string `json:"config" yaml:"config"`
	KnownCollections []string          `json:"known_collections,omitempty" yaml:"known_collections,omitempty"`
	Status           SourceStatus      `json:"status" yaml:"-"`
}

// MappingRuleKind selects how a rule derives a target field.
type MappingRuleKind string

const (
	RuleDirect    MappingRuleKind = "direct"
	RuleTransform MappingRuleKind = "transform"
	RuleCustom    MappingRuleKind = "custom"
)

// MappingRule maps one source field to one target field. Rules are applied
// independently; no rule depends on another rule's output.
type MappingRule struct {
	SourceField   string          `json:"source_field" yaml:"source_field"`
	TargetField   string          `json:"target_field" yaml:"target_field"`
	Kind          MappingRuleKind `json:"kind" yaml:"kind"`
	TransformName string          `json:"transform_name,omitempty" yaml:"transform_name,omitempty"`
}

// MappingStatus enables or disables a mapping without deleting it.
type MappingStatus string

const (
	MappingActive   MappingStatus = "active"
	MappingInactive MappingStatus = "inactive"
)

// SchemaMapping declares a field-level transformation that synthesizes a
// logical target collection from a physical source collection.
type SchemaMapping struct {
	ID               string        `json:"id" yaml:"id"`
	SourceCollection string        `json:"source_collection" yaml:"source_collection"`
	TargetCollection string        `json:"target_collection" yaml:"target_collection"`
	Rules            []MappingRule `json:"rules" yaml:"rules"`
	Status           MappingStatus `json:"status" yaml:"status"`

	// TargetSchema optionally holds a JSON Schema document the synthesized
	// rows must satisfy. Empty means no validation.
	TargetSchema string `json:"target_schema,omitempty" yaml:"target_schema,omitempty"`
}

// Active reports whether the mapping participates in synthesis.
func (m SchemaMapping) Active() bool { return m.Status == MappingActive }
