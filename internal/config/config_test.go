package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/opspace/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "seven_dof" {
		t.Errorf("expected model seven_dof, got %s", cfg.Model)
	}
	if cfg.Dt != 0.001 {
		t.Errorf("expected dt 0.001, got %g", cfg.Dt)
	}
	if cfg.Gains.Kp[0] != 750 || cfg.Gains.Kv[2] != 250 {
		t.Errorf("unexpected gains %v %v", cfg.Gains.Kp, cfg.Gains.Kv)
	}
	if cfg.Refiner.MaxEval != 200 || cfg.Refiner.MaxTimeMs != 5 {
		t.Errorf("unexpected refiner budget %+v", cfg.Refiner)
	}
}

func TestValidate_RequiresLowerBound(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if !errors.Is(err, dynamo.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}

	cfg.LowerBound = ConstantBound(-50)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dt = 0
	cfg.PinvDamping = -1
	cfg.Log.Level = "loud"

	errs := multierr.Errors(cfg.Validate())
	// dt, pinv_damping, lower bound, log level
	if len(errs) != 4 {
		t.Errorf("expected 4 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidate_LowerBound(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name  string
		bound LowerBoundConfig
		ok    bool
	}{
		{"constant", ConstantBound(-10), true},
		{"unbounded", ConstantBound(math.Inf(-1)), true},
		{"values", LowerBoundConfig{Values: []float64{-1, -2}}, true},
		{"missing", LowerBoundConfig{}, false},
		{"both", LowerBoundConfig{Values: []float64{-1}, Constant: &nan}, false},
		{"nan", LowerBoundConfig{Constant: &nan}, false},
		{"plus inf", ConstantBound(math.Inf(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bound.validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLowerBound_Resolve(t *testing.T) {
	got, err := ConstantBound(-3).Resolve(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[3] != -3 {
		t.Errorf("unexpected bound %v", got)
	}

	_, err = LowerBoundConfig{Values: []float64{-1, -2}}.Resolve(3)
	if !errors.Is(err, dynamo.ErrInvalidConfiguration) {
		t.Errorf("expected length mismatch error, got %v", err)
	}

	vals := []float64{-1, -2}
	lb := LowerBoundConfig{Values: vals}
	got, _ = lb.Resolve(2)
	got[0] = 99
	if vals[0] != -1 {
		t.Error("Resolve should copy values")
	}
}

func TestRefinerBudget(t *testing.T) {
	b := RefinerConfig{MaxEval: 50, MaxTimeMs: 2.5, XtolRel: 1e-4, Span: 10}.Budget()
	if b.MaxEval != 50 || b.MaxTime.Microseconds() != 2500 || b.XtolRel != 1e-4 || b.Span != 10 {
		t.Errorf("unexpected budget %+v", b)
	}
}

func TestValidate_RefinerMustBeBounded(t *testing.T) {
	tests := []struct {
		name    string
		refiner RefinerConfig
		ok      bool
	}{
		{"defaults", DefaultConfig().Refiner, true},
		{"evaluations only", RefinerConfig{MaxEval: 20}, true},
		{"time only", RefinerConfig{MaxTimeMs: 1}, true},
		{"unbounded", RefinerConfig{}, false},
		{"unbounded but disabled", RefinerConfig{Disabled: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LowerBound = ConstantBound(-100)
			cfg.Refiner = tt.refiner
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, dynamo.ErrInvalidConfiguration) {
				t.Errorf("expected invalid configuration, got %v", err)
			}
		})
	}
}

func TestInitialState(t *testing.T) {
	home := dynamo.State{1, 2, 0, 0}

	cfg := DefaultConfig()
	x, err := cfg.InitialState(home, 2)
	if err != nil {
		t.Fatal(err)
	}
	if x[0] != 1 || x[1] != 2 {
		t.Errorf("expected home pose, got %v", x)
	}

	cfg.InitState.Q = []float64{0.5, -0.5}
	cfg.InitState.DQ = []float64{0.1, 0.2}
	x, _ = cfg.InitialState(home, 2)
	want := dynamo.State{0.5, -0.5, 0.1, 0.2}
	for i := range want {
		if x[i] != want[i] {
			t.Errorf("x[%d] = %g, want %g", i, x[i], want[i])
		}
	}

	cfg.InitState.Q = []float64{1, 2, 3}
	if _, err := cfg.InitialState(home, 2); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := DefaultConfig()
	cfg.Target.Offset = [3]float64{0, 0.05, 0.1}
	cfg.LowerBound = LowerBoundConfig{Values: []float64{-10, math.Inf(-1), -10, -10, -10, -10, -10}}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Target.Offset != cfg.Target.Offset {
		t.Errorf("offset %v, want %v", loaded.Target.Offset, cfg.Target.Offset)
	}
	if !math.IsInf(loaded.LowerBound.Values[1], -1) {
		t.Errorf("expected -inf bound, got %g", loaded.LowerBound.Values[1])
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "model: planar\njoints: 3\nlower_bound:\n  constant: -.inf\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Integrator != "rk4" || cfg.Dt != DefaultDt {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.LowerBound.Constant == nil || !math.IsInf(*cfg.LowerBound.Constant, -1) {
		t.Error("expected -inf constant bound")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("dt: [1, 2"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("seven_dof", "reach")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Target.Offset[0] != 0.1 {
		t.Errorf("expected x offset 0.1, got %g", cfg.Target.Offset[0])
	}

	cfg.Target.Offset[0] = 5
	*cfg.LowerBound.Constant = 0
	again := GetPreset("seven_dof", "reach")
	if again.Target.Offset[0] != 0.1 || *again.LowerBound.Constant != -1000 {
		t.Error("GetPreset should return a copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("seven_dof", "nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if GetPreset("nonexistent", "reach") != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, model := range ListModels() {
		for _, name := range ListPresets(model) {
			if err := GetPreset(model, name).Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
		}
	}
}

func TestListPresets(t *testing.T) {
	got := ListPresets("seven_dof")
	want := []string{"hold", "lift", "reach"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}

	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent model")
	}
}
