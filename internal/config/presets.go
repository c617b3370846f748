package config

import (
	"math"
	"sort"
)

func preset(model string, joints int, mutate func(*Config)) *Config {
	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Joints = joints
	mutate(cfg)
	return cfg
}

var Presets = map[string]map[string]*Config{
	"seven_dof": {
		"reach": preset("seven_dof", 0, func(c *Config) {
			c.Target.Offset = [3]float64{0.1, 0, 0}
			c.LowerBound = ConstantBound(-1000)
		}),
		"hold": preset("seven_dof", 0, func(c *Config) {
			c.Duration = 1.0
			c.Target.Offset = [3]float64{0, 0, 0}
			c.LowerBound = ConstantBound(-1000)
		}),
		"lift": preset("seven_dof", 0, func(c *Config) {
			c.Target.Offset = [3]float64{0, 0, 0.15}
			c.LowerBound = LowerBoundConfig{Values: []float64{-200, -60, -200, -40, -200, -10, math.Inf(-1)}}
		}),
	},
	"planar3": {
		"reach": preset("planar", 3, func(c *Config) {
			c.Target.Offset = [3]float64{-0.05, 0, 0.1}
			c.LowerBound = ConstantBound(-100)
		}),
		"singular": preset("planar", 3, func(c *Config) {
			c.InitState.Q = []float64{0, 0, 0}
			c.Target.Offset = [3]float64{0.2, 0, 0}
			c.LowerBound = ConstantBound(math.Inf(-1))
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, name string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListModels returns the preset groups.
func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
