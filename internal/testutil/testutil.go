// Package testutil provides shared test helpers for the simulation packages
// and the CLI.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertClose reports an error when |got-want| exceeds tol.
func AssertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %g, want %g ± %g", name, got, want, tol)
	}
}

// AssertNonNegative reports the first negative or NaN entry of v.
func AssertNonNegative(t *testing.T, name string, v []float64) {
	t.Helper()
	for i, x := range v {
		if x < 0 || math.IsNaN(x) {
			t.Errorf("%s[%d] = %g, want >= 0", name, i, x)
			return
		}
	}
}

// WriteConfig marshals fields as a simulation config file in dir and
// returns its path.
func WriteConfig(t *testing.T, dir string, fields map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "febid.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
