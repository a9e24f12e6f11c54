package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

func writeFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	default:
		var err error
		data, err = json.Marshal(x)
		require.NoError(t, err)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// fixture writes a 10x10 square orchard in Aerobotics' lng,lat form and a
// 5x5 planting with one sick tree at (3,7).
func fixture(t *testing.T) (polygonPath, treesPath string) {
	t.Helper()
	dir := t.TempDir()
	polygonPath = writeFile(t, dir, "orchard.json", `{"id": 1, "polygon": "0,0 10,0 10,10 0,10"}`)

	var trees []domain.TreeRecord
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			ndre := 0.6
			if i == 1 && j == 3 {
				ndre = 0.1
			}
			trees = append(trees, domain.TreeRecord{
				ID:       fmt.Sprintf("t%d%d", i, j),
				Position: domain.Coordinate{Lat: 1 + 2*float64(i), Lng: 1 + 2*float64(j)},
				Area:     4,
				NDRE:     ndre,
			})
		}
	}
	treesPath = writeFile(t, dir, "survey.json", trees)
	return polygonPath, treesPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUnhealthy_TreeList(t *testing.T) {
	_, trees := fixture(t)

	out, err := run(t, "unhealthy", "--trees", trees)
	require.NoError(t, err)

	var resp domain.UnhealthyTreesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []domain.UnhealthyTree{{Lat: 3, Lng: 7}}, resp.UnhealthyTrees)
}

func TestUnhealthy_AeroboticsPage(t *testing.T) {
	dir := t.TempDir()
	page := `{"next": null, "results": [
		{"id": 1, "lat": -32.3281, "lng": 18.8251, "area": 10, "ndre": 0.61},
		{"id": 2, "lat": -32.3282, "lng": 18.8252, "area": 11, "ndre": 0.60},
		{"id": 3, "lat": -32.3283, "lng": 18.8253, "area": 12, "ndre": 0.62},
		{"id": 4, "lat": -32.3284, "lng": 18.8254, "area": 10, "ndre": 0.59},
		{"id": 5, "lat": -32.3285, "lng": 18.8255, "area": 10, "ndre": 0.60},
		{"id": 6, "lat": -32.3286, "lng": 18.8256, "area": 10, "ndre": 0.61},
		{"id": 7, "lat": -32.3287, "lng": 18.8257, "area": 10, "ndre": 0.12}
	]}`
	trees := writeFile(t, dir, "page.json", page)

	out, err := run(t, "unhealthy", "-t", trees)
	require.NoError(t, err)

	var resp domain.UnhealthyTreesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []domain.UnhealthyTree{{Lat: -32.3287, Lng: 18.8257}}, resp.UnhealthyTrees)
}

func TestGaps_FromFiles(t *testing.T) {
	polygon, trees := fixture(t)

	out, err := run(t, "gaps", "-p", polygon, "-t", trees,
		"--num-points", "30", "--bandwidth", "0.3", "--inner-buffer", "0.5",
		"--neighborhood-size", "5", "--threshold-percentile", "10")
	require.NoError(t, err)

	var resp domain.MissingTreesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.MissingTrees)
	for _, g := range resp.MissingTrees {
		assert.True(t, g.Lat > 0.5 && g.Lat < 9.5 && g.Lng > 0.5 && g.Lng < 9.5, "gap %v outside inner region", g)
	}
}

func TestGaps_BufferInMeters(t *testing.T) {
	polygon, trees := fixture(t)

	// ~18 degrees of inset swallows the whole orchard.
	out, err := run(t, "gaps", "-p", polygon, "-t", trees, "--num-points", "20", "--inner-buffer-m", "2000000")
	require.NoError(t, err)
	assert.JSONEq(t, `{"missing_trees": []}`, out)
}

func TestGaps_Errors(t *testing.T) {
	polygon, trees := fixture(t)

	_, err := run(t, "gaps", "-p", polygon, "-t", trees, "--inner-buffer", "1", "--inner-buffer-m", "5")
	assert.ErrorContains(t, err, "only one of")

	_, err = run(t, "gaps", "-t", trees)
	assert.ErrorIs(t, err, domain.ErrInvalidGeometry)

	_, err = run(t, "gaps", "-p", polygon, "-t", trees, "--num-points", "1")
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = run(t, "unhealthy")
	assert.ErrorIs(t, err, errNoSource)

	_, err = run(t, "unhealthy", "-t", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReadPolygon_CoordinateList(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.json", `[{"lat": 1, "lng": 2}, {"lat": 3, "lng": 4}, {"lat": 5, "lng": 0}]`)
	got, err := readPolygon(path)
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinate{Lat: 1, Lng: 2}, got[0])
	assert.Len(t, got, 3)
}

func TestReadPolygon_AeroboticsSwapsAxes(t *testing.T) {
	path := writeFile(t, t.TempDir(), "o.json", `{"polygon": "18.825,-32.328 18.826,-32.328 18.826,-32.329"}`)
	got, err := readPolygon(path)
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinate{Lat: -32.328, Lng: 18.825}, got[0])
}

func TestBufferDegrees(t *testing.T) {
	assert.InDelta(t, 1000/(111320*0.5), bufferDegrees(60, 1000), 1e-9)
	assert.InDelta(t, 1000/111320.0, bufferDegrees(0, 1000), 1e-12)
}

func TestRootHelpListsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "gaps") && strings.Contains(out, "unhealthy"))
}
