package config

// Config is the top-level YAML structure.
type Config struct {
	Version  string       `yaml:"version" validate:"required"`
	Analysis AnalysisConf `yaml:"analysis"`
	Fabric   FabricConf   `yaml:"fabric"`
}

// AnalysisConf holds tunable concurrency settings for hop analyses.
type AnalysisConf struct {
	Workers        int `yaml:"workers" validate:"gte=0,lte=1024"`
	QueueDepth     int `yaml:"queue_depth" validate:"gte=0"`
	QueryTimeoutMs int `yaml:"query_timeout_ms" validate:"gte=0"`
	CacheSize      int `yaml:"cache_size" validate:"gte=0"`
}

// FabricConf is the parsed fabric: entities with their forwarding tables and
// the cables between them.
type FabricConf struct {
	Entities []EntityDef `yaml:"entities" validate:"dive"`
	Links    []LinkDef   `yaml:"links" validate:"dive"`
}

// EntityDef describes one switch, adapter or router. Ports are numbered 1..Ports.
type EntityDef struct {
	GUID   string     `yaml:"guid" validate:"required"`
	Node   string     `yaml:"node"` // empty = guid
	Name   string     `yaml:"name"`
	Kind   string     `yaml:"kind" validate:"required,oneof=switch adapter hca ca router"`
	LIDs   []uint16   `yaml:"lids"`
	Ports  int        `yaml:"ports" validate:"gte=0,lte=255"`
	Routes []RouteDef `yaml:"routes" validate:"dive"`
}

// RouteDef lists the destination LIDs forwarded out of one port.
type RouteDef struct {
	Port int      `yaml:"port" validate:"gte=1,lte=255"`
	LIDs []uint16 `yaml:"lids" validate:"required,min=1"`
}

// LinkDef is a cable. From is recorded as the connection's near side.
type LinkDef struct {
	From EndpointDef `yaml:"from"`
	To   EndpointDef `yaml:"to"`
}

// EndpointDef names a port on an entity by node identifier.
type EndpointDef struct {
	Node string `yaml:"node" validate:"required"`
	Port int    `yaml:"port" validate:"gte=1,lte=255"`
}

// NodeKey is the identifier links use to refer to the entity.
func (d *EntityDef) NodeKey() string {
	if d.Node != "" {
		return d.Node
	}
	return d.GUID
}
