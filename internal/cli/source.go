package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samirrijal/orchardscan/internal/adapters/aerobotics"
	"github.com/samirrijal/orchardscan/internal/adapters/provider"
	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/pkg/config"
)

var errNoSource = errors.New("either --orchard or --trees (and --polygon for gaps) is required")

// source picks the orchard data source from the flags and returns it with the
// ID analyses should report.
func (o *rootOptions) source() (ports.OrchardProvider, string, error) {
	if o.orchardID != "" {
		cfg, err := config.Load("orchardscan-cli")
		if err != nil {
			return nil, "", err
		}
		client, err := provider.NewAerobotics(cfg)
		if err != nil {
			return nil, "", err
		}
		return client, o.orchardID, nil
	}
	if o.treesPath == "" {
		return nil, "", errNoSource
	}
	id := strings.TrimSuffix(filepath.Base(o.treesPath), filepath.Ext(o.treesPath))
	return &fileProvider{polygonPath: o.polygonPath, treesPath: o.treesPath}, id, nil
}

// fileProvider serves an orchard from local exports.
type fileProvider struct {
	polygonPath string
	treesPath   string
}

func (f *fileProvider) OrchardPolygon(_ context.Context, _ string) ([]domain.Coordinate, error) {
	if f.polygonPath == "" {
		return nil, fmt.Errorf("--polygon is required: %w", domain.ErrInvalidGeometry)
	}
	return readPolygon(f.polygonPath)
}

func (f *fileProvider) TreeRecords(_ context.Context, _ string) ([]domain.TreeRecord, error) {
	return readTrees(f.treesPath)
}

// readPolygon accepts a JSON list of {"lat","lng"} objects, or an Aerobotics
// orchard record whose "polygon" is the "lng,lat lng,lat ..." string.
func readPolygon(path string) ([]domain.Coordinate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isObject(data) {
		var rec struct {
			Polygon string `json:"polygon"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return aerobotics.ParsePolygon(rec.Polygon)
	}

	var coords []domain.Coordinate
	if err := json.Unmarshal(data, &coords); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return coords, nil
}

// readTrees accepts a JSON list of tree records, or one Aerobotics
// tree_surveys page ({"results": [{"lat","lng","area","ndre"}]}).
func readTrees(path string) ([]domain.TreeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isObject(data) {
		var page struct {
			Results []struct {
				ID   json.Number `json:"id"`
				Lat  float64     `json:"lat"`
				Lng  float64     `json:"lng"`
				Area float64     `json:"area"`
				NDRE float64     `json:"ndre"`
			} `json:"results"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		trees := make([]domain.TreeRecord, len(page.Results))
		for i, r := range page.Results {
			trees[i] = domain.TreeRecord{
				ID:       r.ID.String(),
				Position: domain.Coordinate{Lat: r.Lat, Lng: r.Lng},
				Area:     r.Area,
				NDRE:     r.NDRE,
			}
		}
		return trees, nil
	}

	var trees []domain.TreeRecord
	if err := json.Unmarshal(data, &trees); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return trees, nil
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}
