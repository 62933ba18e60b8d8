package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var playlistIDRegexp = regexp.MustCompile(`playlist/([a-zA-Z0-9]+)`)

// CollectionSeed is one playlist declared in the collections file.
type CollectionSeed struct {
	URL    string `yaml:"url"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active"`
}

// IsActive defaults to true when the file omits the flag.
func (s CollectionSeed) IsActive() bool {
	return s.Active == nil || *s.Active
}

type collectionsFile struct {
	Collections []CollectionSeed `yaml:"collections"`
}

// LoadCollections reads the YAML seed file. A missing file yields no seeds.
func LoadCollections(path string) ([]CollectionSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read collections %q: %w", path, err)
	}

	var f collectionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse collections %q: %w", path, err)
	}

	seeds := make([]CollectionSeed, 0, len(f.Collections))
	for i, s := range f.Collections {
		s.URL = strings.TrimSpace(s.URL)
		if ParsePlaylistID(s.URL) == "" {
			return nil, fmt.Errorf("config: collections[%d]: no playlist id in %q", i, s.URL)
		}
		seeds = append(seeds, s)
	}
	return seeds, nil
}

// ParsePlaylistID extracts the playlist id from a playlist URL or URI path.
func ParsePlaylistID(url string) string {
	m := playlistIDRegexp.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
