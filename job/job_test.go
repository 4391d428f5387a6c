package job

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"lst-tools/blur"
)

func TestDefaultRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Request
	}{
		{"empty", `{}`, Request{Band: 1, Width: 256, Height: 256, Seed: 42, Size: 11, Sigma: 2.0, Device: "auto"}},
		{"width only", `{"width": 8}`, Request{Band: 1, Width: 8, Height: 256, Seed: 42, Size: 11, Sigma: 2.0, Device: "auto"}},
		{"explicit seed 0", `{"seed": 0}`, Request{Band: 1, Width: 256, Height: 256, Seed: 0, Size: 11, Sigma: 2.0, Device: "auto"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultRequest()
			if err := json.Unmarshal([]byte(tt.body), &got); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSyntheticGridSeedZero(t *testing.T) {
	zero, err := SyntheticGrid(8, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	def, _ := SyntheticGrid(8, 8, DefaultSeed)
	if reflect.DeepEqual(zero, def) {
		t.Error("seed 0 produced the default-seed grid")
	}
}

func TestShape(t *testing.T) {
	w, h, err := Request{Width: 12, Height: 7}.Shape()
	if err != nil || w != 12 || h != 7 {
		t.Errorf("got %dx%d, %v", w, h, err)
	}
	if _, _, err := (Request{Path: "/nonexistent/lst.tif", Band: 1}).Shape(); err == nil {
		t.Error("missing raster accepted")
	}
}

func TestSyntheticGrid(t *testing.T) {
	a, err := SyntheticGrid(16, 8, 7)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := SyntheticGrid(16, 8, 7)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed gave different grids")
	}
	for i, v := range a.Data {
		if v < 0 || v >= 40 {
			t.Fatalf("cell %d = %v outside [0,40)", i, v)
		}
	}
	if _, err := SyntheticGrid(0, 8, 7); !errors.Is(err, blur.ErrInvalidParameter) {
		t.Errorf("got %v, want ErrInvalidParameter", err)
	}
}

func TestRunSynthetic(t *testing.T) {
	req := DefaultRequest()
	req.Width, req.Height, req.Size, req.Sigma, req.Device = 12, 10, 3, 1, "cpu"
	rep, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Source != SyntheticName || rep.Width != 12 || rep.Height != 10 {
		t.Errorf("got %+v", rep)
	}
	if rep.Device != blur.GeneralPurpose {
		t.Errorf("device %v", rep.Device)
	}
	if rep.MaxAbsDiff > 1e-3 {
		t.Errorf("strategies differ by %v", rep.MaxAbsDiff)
	}
	if rep.Band == nil || !reflect.DeepEqual(rep.Band.Grid, rep.Accelerated) {
		t.Error("band does not carry the accelerated blur")
	}

	raw, err := json.Marshal(rep)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"source", "width", "height", "numpy_time_sec", "torch_time_sec", "torch_device", "kernel_size", "sigma", "max_abs_diff"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("report lacks %q: %s", key, raw)
		}
	}
	if fields["torch_device"] != blur.GeneralPurposeID {
		t.Errorf("torch_device = %v", fields["torch_device"])
	}
}

func TestRunRejectsUnknownDevice(t *testing.T) {
	req := DefaultRequest()
	req.Device = "tpu"
	if _, err := Run(req); err == nil {
		t.Error("unknown device accepted")
	}
}
