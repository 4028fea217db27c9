package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/commonwealth-analytics/thriving-index/internal/matching"
)

func testArtifact() *matching.Artifact {
	return &matching.Artifact{
		Targets: map[string]matching.TargetEntry{
			"VA-NOVA": {RegionName: "Northern Virginia", Peers: []matching.PeerEntry{
				{Rank: 1, RegionCode: "NC-TRI", RegionName: "Research Triangle", Distance: 0.4},
				{Rank: 2, RegionCode: "TN-NASH", RegionName: "Greater Nashville", Distance: 0.9},
			}},
			"VA-RICH": {RegionName: "Greater Richmond", Peers: []matching.PeerEntry{
				{Rank: 1, RegionCode: "SC-UPST", RegionName: "Upstate", Distance: 0.2},
			}},
		},
		Metadata: matching.Metadata{K: 10, NumVariables: 3, RegionsInMatrix: 54},
	}
}

func TestWriteArtifactJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	require.NoError(t, writeArtifactJSON(testArtifact(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got matching.Artifact
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.Targets, 2)
	assert.Equal(t, 10, got.Metadata.K)
}

func TestWriteArtifactXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.xlsx")
	require.NoError(t, writeArtifactXLSX(testArtifact(), path))

	wb, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	// Summary plus one sheet per target, targets in lexical order.
	require.Len(t, wb.Sheets, 3)
	assert.Equal(t, "Summary", wb.Sheets[0].Name)
	assert.Equal(t, "VA-NOVA", wb.Sheets[1].Name)
	assert.Equal(t, "VA-RICH", wb.Sheets[2].Name)

	nova := wb.Sheet["VA-NOVA"]
	require.NotNil(t, nova)
	// Header row plus two peers.
	require.Len(t, nova.Rows, 3)
	assert.Equal(t, "NC-TRI", nova.Rows[1].Cells[1].String())
}

func TestSortedTargets(t *testing.T) {
	codes := sortedTargets(testArtifact())
	assert.Equal(t, []string{"VA-NOVA", "VA-RICH"}, codes)
}
