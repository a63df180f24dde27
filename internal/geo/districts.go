package geo

import "sort"

// District is supply-district metadata for a cell.
type District struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// territoryPresets mirrors the dispatcher's district presets: each supply
// district owns a fixed set of hexagonal cells.
var territoryPresets = map[string]struct {
	label string
	cells []string
}{
	"centralDistrict": {
		label: "Central supply district",
		cells: []string{
			"8611aa7afffffff", "8611aa7a7ffffff", "8611aa787ffffff",
			"8611aa78fffffff", "8611aa637ffffff", "8611aa71fffffff",
		},
	},
	"southDistrict": {
		label: "Southern water district",
		cells: []string{
			"8611aa797ffffff", "8611aa4cfffffff", "861181b67ffffff",
			"861181b6fffffff", "8611aa79fffffff", "8611aa7b7ffffff",
		},
	},
	"riversideCluster": {
		label: "Riverside infrastructure cluster",
		cells: []string{
			"8611aa45fffffff", "8611aa717ffffff", "8611aa44fffffff",
			"8611aa447ffffff", "8611aa457ffffff", "8611aa4efffffff",
		},
	},
	"northernReservoir": {
		label: "Northern reservoir cluster",
		cells: []string{
			"8611aa72fffffff", "8611aa727ffffff", "8611aa707ffffff",
			"8611aa70fffffff", "8611aa777ffffff", "8611aa0dfffffff",
		},
	},
	"eastTechBelt": {
		label: "Eastern technology belt",
		cells: []string{
			"8611aa6afffffff", "8611aa6a7ffffff", "8611aa687ffffff",
			"8611aa68fffffff", "8611aa6f7ffffff", "8611aa61fffffff",
		},
	},
	"northWestHub": {
		label: "North-western industrial hub",
		cells: []string{
			"8611aa737ffffff", "8611aa46fffffff", "8611aa09fffffff",
			"8611aa097ffffff", "8611aa467ffffff", "8611aa0d7ffffff",
		},
	},
	"southWestArc": {
		label: "South-western logistics arc",
		cells: []string{
			"8611aa4e7ffffff", "8611aa4c7ffffff", "8611aa4dfffffff",
			"8611aa477ffffff", "8611aa40fffffff", "8611aa41fffffff",
		},
	},
	"southEastEnergy": {
		label: "South-eastern energy loop",
		cells: []string{
			"8611aa6b7ffffff", "861181b4fffffff", "8611aa697ffffff",
			"861181b47ffffff", "861181b5fffffff", "861181a67ffffff",
		},
	},
}

var districtLookup map[string]District

func init() {
	districtLookup = make(map[string]District)
	for key, preset := range territoryPresets {
		for _, cellID := range preset.cells {
			districtLookup[cellID] = District{Key: key, Label: preset.label}
		}
	}
}

// DistrictTerritory is one district preset with its member cells.
type DistrictTerritory struct {
	Key   string   `json:"key"`
	Label string   `json:"label"`
	Cells []string `json:"cells"`
}

// Districts returns every district preset sorted by key.
func Districts() []DistrictTerritory {
	out := make([]DistrictTerritory, 0, len(territoryPresets))
	for key, preset := range territoryPresets {
		cells := make([]string, len(preset.cells))
		copy(cells, preset.cells)
		out = append(out, DistrictTerritory{Key: key, Label: preset.label, Cells: cells})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// LookupDistrict returns district metadata for a cell id, if the cell
// belongs to a known district.
func LookupDistrict(cellID string) (District, bool) {
	d, ok := districtLookup[cellID]
	return d, ok
}

// KnownCells returns every cell id covered by the district presets, in
// deterministic order. Used by the anomaly export to enumerate the network.
func KnownCells() []string {
	cells := make([]string, 0, len(districtLookup))
	for id := range districtLookup {
		cells = append(cells, id)
	}
	sort.Strings(cells)
	return cells
}
