package spectrum

import (
	"math"
	"testing"
)

func sine(n, bin, size int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(size)))
	}
	return out
}

func TestNewAnalyserRoundsSize(t *testing.T) {
	if got := NewAnalyser(100).FrequencyBinCount(); got != 64 {
		t.Errorf("bins = %d, want 64", got)
	}
	if got := NewAnalyser(1).FrequencyBinCount(); got != 16 {
		t.Errorf("bins = %d, want 16", got)
	}
}

func TestSilenceIsZero(t *testing.T) {
	a := NewAnalyser(DefaultFFTSize)
	a.Write(make([]float32, 256))

	data := a.ByteFrequencyData(nil)
	if len(data) != 64 {
		t.Fatalf("len = %d, want 64", len(data))
	}
	for i, v := range data {
		if v != 0 {
			t.Fatalf("data[%d] = %d, want 0", i, v)
		}
	}
}

func TestSinePeaksAtItsBin(t *testing.T) {
	a := NewAnalyser(DefaultFFTSize)
	a.Write(sine(DefaultFFTSize, 10, DefaultFFTSize, 0.5))

	var data []uint8
	for range 5 {
		data = a.ByteFrequencyData(data)
	}

	peak := 0
	for i, v := range data {
		if v > data[peak] {
			peak = i
		}
	}
	if peak < 9 || peak > 11 {
		t.Errorf("peak bin = %d, want ~10", peak)
	}
	if data[peak] == 0 {
		t.Error("peak should be non-zero")
	}
	if data[40] >= data[peak] {
		t.Errorf("far bin %d should be quieter than peak %d", data[40], data[peak])
	}
}

func TestResetClearsHistory(t *testing.T) {
	a := NewAnalyser(DefaultFFTSize)
	a.Write(sine(DefaultFFTSize, 4, DefaultFFTSize, 1))
	a.ByteFrequencyData(nil)

	a.Reset()
	for i, v := range a.ByteFrequencyData(nil) {
		if v != 0 {
			t.Fatalf("after reset data[%d] = %d, want 0", i, v)
		}
	}
}
