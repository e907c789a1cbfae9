package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/prologic/simbridgefs/simbridge"
)

// Seed is the fixture data a sandbox serves. Binary payloads are base64.
type Seed struct {
	Routes  []simbridge.CoRoute `json:"routes"`
	PDFs    map[string][]string `json:"pdfs"`
	Images  map[string]string   `json:"images"`
	Terrain TerrainSeed         `json:"terrain"`
}

// TerrainSeed controls the terrain endpoints.
type TerrainSeed struct {
	Disabled bool                   `json:"disabled"`
	Range    simbridge.TerrainRange `json:"range"`
	Frames   []string               `json:"frames"`
}

// LoadSeed reads a JSON seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sandbox: read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("sandbox: decode seed %s: %w", path, err)
	}
	return &seed, nil
}

func decodePages(name string, pages []string) ([][]byte, error) {
	out := make([][]byte, 0, len(pages))
	for i, p := range pages {
		data, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: pdf %s page %d: %w", name, i+1, err)
		}
		out = append(out, data)
	}
	return out, nil
}
