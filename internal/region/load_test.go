package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadMemberships(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "va.yaml", `state: VA
regions:
  - code: VA-1
    name: Southwest
    members: [Buchanan, Dickenson, Wise, Norton City]
  - code: VA-2
    name: Valley
    members: [Rockbridge]
`)
	writeFile(t, dir, "wv.yaml", `state: WV
regions:
  - code: WV-4
    name: Southern Coalfields
    members: [McDowell]
`)

	members, err := LoadMemberships(dir)
	require.NoError(t, err)
	require.Len(t, members, 3)

	assert.Equal(t, "VA-1", members[0].Code)
	assert.Equal(t, "VA", members[0].State)
	assert.Equal(t, []string{"Buchanan", "Dickenson", "Wise", "Norton City"}, members[0].Members)
	assert.Equal(t, "WV", members[2].State)
}

func TestLoadMembershipsRejectsEmptyRegion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", `state: VA
regions:
  - code: VA-1
    name: Empty
    members: []
`)
	_, err := LoadMemberships(dir)
	require.Error(t, err)
}

func TestLoadMembershipsEmptyDir(t *testing.T) {
	_, err := LoadMemberships(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no membership tables")
}

func TestLoadLocalities(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "va.csv", "fips,name,type\n51195,Wise County,county\n51720,Norton city,city\n")
	writeFile(t, dir, "wv.csv", "fips,name,type\n54047,McDowell County,county\n")

	locs, err := LoadLocalities(dir)
	require.NoError(t, err)
	require.Len(t, locs, 3)

	assert.Equal(t, Locality{FIPS: "51195", Name: "Wise County", State: "VA", Type: TypeCounty}, locs[0])
	assert.Equal(t, TypeCity, locs[1].Type)
	assert.Equal(t, "WV", locs[2].State)
}

func TestLoadLocalitiesRejectsMalformedFIPS(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", "fips,name,type\n5119,Short,county\n")

	_, err := LoadLocalities(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed fips")
}

func TestLoadLocalitiesUnknownType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "va.csv", "fips,name,type\n51195,Wise County,\n")

	locs, err := LoadLocalities(dir)
	require.NoError(t, err)
	assert.Equal(t, TypeUnknown, locs[0].Type, "missing classification stays unknown, never defaulted")
}
