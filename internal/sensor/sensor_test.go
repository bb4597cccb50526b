package sensor

import (
	"context"
	"testing"
)

func TestSimulatedReadings(t *testing.T) {
	src := NewSimulated([]string{"temperature", "humidity", "battery"})

	readings, err := src.Readings(context.Background())
	if err != nil {
		t.Fatalf("Readings() error = %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("Readings() returned %d channels, want 3", len(readings))
	}

	// Values stay near their baselines on the first sample.
	if v := readings["temperature"]; v < 15 || v > 27 {
		t.Errorf("temperature = %v, want a plausible room value", v)
	}
	if v := readings["battery"]; v < 3.0 || v > 4.5 {
		t.Errorf("battery = %v, want a plausible cell voltage", v)
	}
}

func TestSimulatedReadingsDrift(t *testing.T) {
	src := NewSimulated([]string{"temperature"})

	first, err := src.Readings(context.Background())
	if err != nil {
		t.Fatalf("Readings() error = %v", err)
	}
	varied := false
	for i := 0; i < 20; i++ {
		next, err := src.Readings(context.Background())
		if err != nil {
			t.Fatalf("Readings() error = %v", err)
		}
		if next["temperature"] != first["temperature"] {
			varied = true
		}
	}
	if !varied {
		t.Error("simulated readings never moved across 20 samples")
	}
}

func TestSimulatedNoChannels(t *testing.T) {
	src := NewSimulated(nil)
	if _, err := src.Readings(context.Background()); err == nil {
		t.Error("Readings() with no channels succeeded, want error")
	}
}
