// Mirror pipeline configuration schema
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"path/filepath"
	"runtime"
	"strings"

	"mirrorsim/pkg/zernike"
)

// Mirror kinds understood by the pipeline.
const (
	KindM2   = "m2"
	KindM1M3 = "m1m3"
)

// File roles. Which roles a mirror needs depends on its kind.
const (
	RoleFEA     = "fea"     // M2 combined gravity/thermal influence table
	RoleZenith  = "zenith"  // M1M3 zenith-pointing print-through table
	RoleHorizon = "horizon" // M1M3 horizon-pointing print-through table
	RoleThermal = "thermal" // M1M3 thermal influence table
	RoleGrid    = "grid"    // bending-mode sample grid (x, y per sample)
	RoleForce   = "force"   // actuator forces
	RoleLUT     = "lut"     // actuator force look-up table; "" when absent
)

// Annulus is an inner/outer radius pair in meters.
type Annulus struct {
	Inner float64 `json:"inner"`
	Outer float64 `json:"outer"`
}

// OutputPaths name the artifacts written for each surface. "%s" in a name
// is replaced by the surface name; empty names are not written.
type OutputPaths struct {
	Dir        string
	ResidueMap string
	Zernike    string
	Plot       string
}

// Path returns the path of artifact name for surface, or "" if the artifact
// is disabled.
func (o OutputPaths) Path(name, surface string) string {
	if name == "" {
		return ""
	}
	return filepath.Join(o.Dir, strings.ReplaceAll(name, "%s", surface))
}

// MirrorSection is one "[mirror <name>]" section.
type MirrorSection struct {
	Name     string
	Kind     string
	DataDir  string
	Files    map[string]string
	SkipRows int
	Radii    map[string]Annulus
	NumTerms int
	GridN    int
	Output   OutputPaths
}

// Observation holds the observing geometry of "[observation]". Angles are
// in degrees; thermal gradients in the ±2σ-spans-1°C convention.
type Observation struct {
	ZenithAngleDeg      float64
	PreCompElevationDeg float64
	TBulk               float64
	TxGrad              float64
	TyGrad              float64
	TzGrad              float64
	TrGrad              float64
}

// ServerConfig holds "[server]".
type ServerConfig struct {
	Address string
	// MetricsAddress serves /metrics on a separate listener when set.
	MetricsAddress string
}

// MirrorConfig is the full pipeline configuration. It is a plain value
// passed to each request; nothing here is global.
type MirrorConfig struct {
	Mirrors     []MirrorSection
	Observation Observation
	Server      ServerConfig
	Workers     int
}

// Mirror returns the mirror section with the given name.
func (mc *MirrorConfig) Mirror(name string) (MirrorSection, bool) {
	for _, m := range mc.Mirrors {
		if m.Name == name {
			return m, true
		}
	}
	return MirrorSection{}, false
}

var defaultFiles = map[string]map[string]string{
	KindM2: {
		RoleFEA:   "M2_GT_FEA.txt",
		RoleGrid:  "M2_1um_grid.DAT",
		RoleForce: "M2_1um_force.DAT",
		RoleLUT:   "", // the shipped M2 data has no look-up table
	},
	KindM1M3: {
		RoleZenith:  "M1M3_dxdydz_zenith.txt",
		RoleHorizon: "M1M3_dxdydz_horizon.txt",
		RoleThermal: "M1M3_thermal_FEA.txt",
		RoleGrid:    "M1M3_1um_156_grid.txt",
		RoleForce:   "M1M3_1um_156_force.txt",
		RoleLUT:     "M1M3_LUT.txt",
	},
}

var defaultRadii = map[string]map[string]Annulus{
	KindM2: {
		"m2": {Inner: 0.9, Outer: 1.71},
	},
	KindM1M3: {
		"m1": {Inner: 2.558, Outer: 4.18},
		"m3": {Inner: 0.55, Outer: 2.508},
	},
}

// ParseMirrorConfig loads and validates a pipeline configuration file.
// Relative data and output directories resolve against the file's
// directory.
func ParseMirrorConfig(path string) (*MirrorConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, NewConfigError("", "", err.Error())
	}
	return FromConfig(cfg, filepath.Dir(path))
}

// FromConfig builds a MirrorConfig from parsed sections. baseDir anchors
// relative paths. Unknown options are reported as errors.
func FromConfig(cfg *Config, baseDir string) (*MirrorConfig, error) {
	mc := &MirrorConfig{Workers: runtime.NumCPU()}

	for _, sec := range cfg.GetPrefixSections("mirror ") {
		m, err := parseMirrorSection(sec, baseDir)
		if err != nil {
			return nil, err
		}
		if _, dup := mc.Mirror(m.Name); dup {
			return nil, NewConfigError(sec.GetName(), "", "duplicate mirror name")
		}
		mc.Mirrors = append(mc.Mirrors, m)
	}
	if len(mc.Mirrors) == 0 {
		return nil, NewConfigError("", "", "no [mirror <name>] sections")
	}

	if sec := cfg.GetSectionOptional("observation"); sec != nil {
		obs, err := parseObservation(sec)
		if err != nil {
			return nil, err
		}
		mc.Observation = obs
	}

	if sec := cfg.GetSectionOptional("server"); sec != nil {
		addr, err := sec.Get("address", ":7130")
		if err != nil {
			return nil, err
		}
		mc.Server.Address = addr
		if mc.Server.MetricsAddress, err = sec.Get("metrics_address", ""); err != nil {
			return nil, err
		}
	} else {
		mc.Server.Address = ":7130"
	}

	if sec := cfg.GetSectionOptional("resample"); sec != nil {
		w, err := sec.GetIntInRange("workers", 1, 1024, mc.Workers)
		if err != nil {
			return nil, err
		}
		mc.Workers = w
	}

	if err := cfg.CheckUnused(); err != nil {
		return nil, err
	}
	return mc, nil
}

func parseMirrorSection(sec *Section, baseDir string) (MirrorSection, error) {
	name := strings.TrimSpace(strings.TrimPrefix(sec.GetName(), "mirror "))
	m := MirrorSection{Name: name, Files: map[string]string{}, Radii: map[string]Annulus{}}

	kind, err := sec.GetChoice("kind", []string{KindM2, KindM1M3}, name)
	if err != nil {
		return m, err
	}
	m.Kind = kind

	dataDir, err := sec.Get("data_dir")
	if err != nil {
		return m, err
	}
	m.DataDir = resolve(baseDir, dataDir)

	for role, def := range defaultFiles[kind] {
		f, err := sec.Get(role+"_file", def)
		if err != nil {
			return m, err
		}
		m.Files[role] = f
	}

	if m.SkipRows, err = sec.GetIntInRange("skip_rows", 0, 1000, 1); err != nil {
		return m, err
	}

	for surface, def := range defaultRadii[kind] {
		inner, err := sec.GetFloatWithBounds(surface+"_inner_radius", FloatBounds{MinVal: Float(0)}, def.Inner)
		if err != nil {
			return m, err
		}
		outer, err := sec.GetFloatWithBounds(surface+"_outer_radius", FloatBounds{Above: Float(inner)}, def.Outer)
		if err != nil {
			return m, err
		}
		m.Radii[surface] = Annulus{Inner: inner, Outer: outer}
	}

	if m.NumTerms, err = sec.GetIntInRange("num_terms", 1, zernike.MaxTerms, 22); err != nil {
		return m, err
	}
	if m.GridN, err = sec.GetIntInRange("grid_n", 2, 4096, 200); err != nil {
		return m, err
	}

	outDir, err := sec.Get("output_dir", ".")
	if err != nil {
		return m, err
	}
	m.Output.Dir = resolve(baseDir, outDir)
	if m.Output.ResidueMap, err = sec.Get("residue_map", "res_%s.txt"); err != nil {
		return m, err
	}
	if m.Output.Zernike, err = sec.Get("zernike_file", "zc_%s.txt"); err != nil {
		return m, err
	}
	if m.Output.Plot, err = sec.Get("plot_file", ""); err != nil {
		return m, err
	}
	return m, nil
}

func parseObservation(sec *Section) (Observation, error) {
	var obs Observation
	var err error
	if obs.ZenithAngleDeg, err = sec.GetFloatWithBounds("zenith_angle",
		FloatBounds{MinVal: Float(0), MaxVal: Float(90)}, 0); err != nil {
		return obs, err
	}
	if obs.PreCompElevationDeg, err = sec.GetFloat("pre_comp_elevation", 0); err != nil {
		return obs, err
	}
	gradients := []struct {
		option string
		dst    *float64
	}{
		{"t_bulk", &obs.TBulk},
		{"tx_gradient", &obs.TxGrad},
		{"ty_gradient", &obs.TyGrad},
		{"tz_gradient", &obs.TzGrad},
		{"tr_gradient", &obs.TrGrad},
	}
	for _, g := range gradients {
		if *g.dst, err = sec.GetFloat(g.option, 0); err != nil {
			return obs, err
		}
	}
	return obs, nil
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
