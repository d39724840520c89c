// Package testutil provides common utility functions for testing.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleCatalogYAML is a two-field catalog used across package tests.
// pune-north has stored weather on its latest rice season; nashik-east has
// none.
const SampleCatalogYAML = `fields:
  - id: pune-north
    name: Pune North
    lat: 18.52
    lon: 73.85
    areaHa: 2.5
    soilType: black
    seasons:
      - year: 2023
        crop: wheat
        plantingDate: "2023-11-01"
        harvestDate: "2024-03-15"
        soil: {n: 30, p: 14, k: 190, ph: 7.4}
        weather: {totalRainfallMM: 40, gdd: 1300, meanTemp: 21.5}
      - year: 2024
        crop: rice
        plantingDate: "2024-06-01"
        harvestDate: "2024-09-30"
        previousCrop: wheat
        soil: {n: 25, p: 12, k: 180, ph: 7.1}
        weather: {totalRainfallMM: 500, gdd: 1500}
        finalYield: 4100
  - id: nashik-east
    name: Nashik East
    lat: 19.99
    lon: 73.79
    areaHa: 1.2
    soilType: red
    seasons:
      - year: 2024
        crop: grape
        plantingDate: "2024-01-10"
        harvestDate: "2024-04-20"
        soil: {n: 18, p: 9, k: 150, ph: 6.5}
`

// WriteFile writes content to name inside a per-test temporary directory and
// returns the full path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
