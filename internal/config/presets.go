package config

import "sort"

var Presets = map[string]*Config{
	"tiny": {
		Particles: 100, Procs: 2, Steps: 100, SaveEvery: 10, Seed: 1, Diagnostics: true,
	},
	"default": {
		Particles: 1000, Procs: 4, Steps: 1000, SaveEvery: 10, Seed: 1, Diagnostics: true,
	},
	"wide": {
		Particles: 10000, Procs: 8, Steps: 500, SaveEvery: 50, Seed: 1, Diagnostics: true,
	},
	"dense": {
		Particles: 2000, Procs: 4, Steps: 1000, SaveEvery: 10, Seed: 1, Diagnostics: true,
		Size: 0.5,
	},
	"benchmark": {
		Particles: 50000, Procs: 16, Steps: 200, Seed: 1,
	},
}

// GetPreset returns a copy of the named preset with the remaining fields at
// their defaults, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Particles = p.Particles
	cfg.Procs = p.Procs
	cfg.Steps = p.Steps
	cfg.SaveEvery = p.SaveEvery
	cfg.Seed = p.Seed
	cfg.Diagnostics = p.Diagnostics
	cfg.Size = p.Size
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
