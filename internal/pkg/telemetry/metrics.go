package telemetry

// Span attribute keys set on analysis spans.
const (
	AttrOrchardID = "orchard.id"
	AttrRunID     = "analysis.run_id"
	AttrKind      = "analysis.kind"
	AttrTrees     = "analysis.trees"
	AttrPoints    = "analysis.points"
)
