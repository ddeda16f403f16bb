// Package registry loads the tracked venue list that drives a refresh run.
package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/venuewatch/refresh-cli/internal/model"
)

// file is the on-disk shape of the venue registry.
type file struct {
	Venues []entry `yaml:"venues"`
}

type entry struct {
	ID   string   `yaml:"id"`
	Name string   `yaml:"name"`
	URLs []string `yaml:"urls"`
}

// LoadVenuesFromFile reads a YAML venue registry from the given path.
// Malformed entries are skipped with a warning; an empty result after
// filtering is an error since a run without venues is a misconfiguration.
func LoadVenuesFromFile(path string) ([]model.Venue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read venue registry")
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal venue registry")
	}

	seen := make(map[string]bool, len(f.Venues))
	venues := make([]model.Venue, 0, len(f.Venues))
	for i, e := range f.Venues {
		v, err := parseEntry(e)
		if err != nil {
			zap.L().Warn("registry: skipping malformed venue entry",
				zap.Int("index", i),
				zap.String("id", e.ID),
				zap.Error(err),
			)
			continue
		}
		if seen[v.ID] {
			zap.L().Warn("registry: skipping duplicate venue id",
				zap.String("id", v.ID),
			)
			continue
		}
		seen[v.ID] = true
		venues = append(venues, v)
	}

	if len(venues) == 0 {
		return nil, eris.Errorf("registry: no usable venues in %s", path)
	}
	return venues, nil
}

func parseEntry(e entry) (model.Venue, error) {
	v := model.Venue{
		ID:   strings.TrimSpace(e.ID),
		Name: strings.TrimSpace(e.Name),
	}
	if v.ID == "" {
		return v, eris.New("missing id")
	}
	// Venue IDs name snapshot files and lock paths. An ID that can escape
	// its directory is rejected outright.
	if strings.ContainsAny(v.ID, `/\`) || strings.Contains(v.ID, "..") {
		return v, eris.Errorf("id %q contains path characters", v.ID)
	}
	if v.Name == "" {
		return v, eris.New("missing name")
	}
	if len(e.URLs) == 0 {
		return v, eris.New("no source urls")
	}
	for _, u := range e.URLs {
		u = strings.TrimSpace(u)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return v, eris.Errorf("invalid url %q", u)
		}
		v.URLs = append(v.URLs, u)
	}
	return v, nil
}
