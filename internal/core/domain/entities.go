package domain

import "time"

// Orchard is a surveyed growing area with its boundary polygon.
type Orchard struct {
	ID      string       `json:"id"`
	Name    string       `json:"name,omitempty"`
	Polygon []Coordinate `json:"polygon"`
}

// TreeRecord is one observed tree from the latest survey.
type TreeRecord struct {
	ID       string     `json:"id,omitempty"`
	Position Coordinate `json:"position"`
	Area     float64    `json:"area"` // canopy area, KDE weight
	NDRE     float64    `json:"ndre"` // health index
}

// GapCandidate is a grid location where a tree is likely missing.
type GapCandidate = Coordinate

// UnhealthyTree is the position of a tree whose NDRE is a low outlier.
type UnhealthyTree = Coordinate

// MissingTreesResponse is the gaps payload returned to clients.
type MissingTreesResponse struct {
	MissingTrees []GapCandidate `json:"missing_trees"`
}

// UnhealthyTreesResponse is the outliers payload returned to clients.
type UnhealthyTreesResponse struct {
	UnhealthyTrees []UnhealthyTree `json:"unhealthy_trees"`
}

// OrchardSummary describes the data an analysis runs on.
type OrchardSummary struct {
	OrchardID        string  `json:"orchard_id"`
	Vertices         int     `json:"vertices"`
	Trees            int     `json:"trees"`
	AreaDeg2         float64 `json:"area_deg2"`
	WidthMeters      float64 `json:"width_m"`
	HeightMeters     float64 `json:"height_m"`
	MeanNDRE         float64 `json:"mean_ndre"`
	StdDevNDRE       float64 `json:"stddev_ndre"`
	InnerRegionEmpty bool    `json:"inner_region_empty"`
	Bounds           Bounds  `json:"bounds"`
}

// AnalysisKind names the detector that produced an AnalysisEvent.
type AnalysisKind string

const (
	AnalysisGaps   AnalysisKind = "gaps"
	AnalysisHealth AnalysisKind = "health"
)

// AnalysisEvent is published after a detector run completes.
type AnalysisEvent struct {
	RunID      string        `json:"run_id"`
	OrchardID  string        `json:"orchard_id"`
	Kind       AnalysisKind  `json:"kind"`
	Points     []Coordinate  `json:"points"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// SurveyImported is published by the importer once a survey is stored.
type SurveyImported struct {
	OrchardID  string    `json:"orchard_id"`
	SurveyID   string    `json:"survey_id"`
	Trees      int       `json:"trees"`
	ImportedAt time.Time `json:"imported_at"`
}

// Survey is one flight over an orchard and the trees it observed.
type Survey struct {
	ID        string       `json:"id"`
	OrchardID string       `json:"orchard_id"`
	Date      string       `json:"date,omitempty"`
	Trees     []TreeRecord `json:"trees"`
}
