package mocks

import (
	"testing"
	"time"
)

func TestDataGenerator_Generate(t *testing.T) {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 100

	data := gen.Generate(config)

	if len(data) != 100 {
		t.Errorf("expected 100 bars, got %d", len(data))
	}

	for i := 1; i < len(data); i++ {
		if !data[i].Time.After(data[i-1].Time) {
			t.Errorf("bars not in chronological order at index %d", i)
		}
	}

	for i, d := range data {
		if err := d.Validate(); err != nil {
			t.Errorf("invalid bar at index %d: %v", i, err)
		}
	}
}

func TestDataGenerator_Reproducible(t *testing.T) {
	config := DefaultConfig()
	config.Count = 50

	a := NewDataGenerator(7).Generate(config)
	b := NewDataGenerator(7).Generate(config)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar %d differs between runs with the same seed", i)
		}
	}
}

func TestGenerateFlat(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	data := GenerateFlat("ETHUSDT", start, time.Minute, 30, 100)

	if len(data) != 30 {
		t.Fatalf("expected 30 bars, got %d", len(data))
	}

	if !data[29].Time.Equal(start.Add(29 * time.Minute)) {
		t.Errorf("unexpected last bar time %s", data[29].Time)
	}

	for _, d := range data {
		if d.Open != 100 || d.Close != 100 {
			t.Fatalf("expected flat bars, got %+v", d)
		}
	}
}
