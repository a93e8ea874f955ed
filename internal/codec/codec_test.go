package codec

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func encodeToFile(t *testing.T, enc Encoder, samples []float32, rate int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip"+Extension(enc.Format()))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := enc.Encode(f, samples, rate); err != nil {
		f.Close()
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	enc, err := EncoderFor(FormatWAV)
	if err != nil {
		t.Fatalf("EncoderFor: %v", err)
	}
	data := encodeToFile(t, enc, samples, 16000)

	if got := Sniff(data); got != FormatWAV {
		t.Fatalf("Sniff = %q, want %q", got, FormatWAV)
	}

	pcm, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", pcm.SampleRate)
	}
	if len(pcm.Samples) != len(samples) {
		t.Fatalf("len = %d, want %d", len(pcm.Samples), len(samples))
	}
	for i := range samples {
		if math.Abs(float64(pcm.Samples[i]-samples[i])) > 1e-3 {
			t.Fatalf("sample %d = %v, want ~%v", i, pcm.Samples[i], samples[i])
		}
	}
	if got := pcm.Seconds(); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Seconds = %v, want 0.1", got)
	}
}

func TestWAVClampsOutOfRange(t *testing.T) {
	enc, _ := EncoderFor(FormatWAV)
	data := encodeToFile(t, enc, []float32{2, -2, 0}, 8000)

	pcm, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Samples[0] < 0.99 || pcm.Samples[1] > -0.99 {
		t.Errorf("samples = %v, want clamped to ±1", pcm.Samples)
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatWAV},
		{"ogg", []byte("OggS\x00\x02"), FormatOgg},
		{"id3", []byte("ID3\x04\x00"), FormatMP3},
		{"mpeg sync", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3}, FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tt := range tests {
		if got := Sniff(tt.data); got != tt.want {
			t.Errorf("%s: Sniff = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := Decode([]byte("not audio at all"))
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("err = %v, want ErrDecodeFailed", err)
	}
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestDecodeCorruptWAV(t *testing.T) {
	_, err := Decode([]byte("RIFF\x04\x00\x00\x00WAVE"))
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("err = %v, want ErrDecodeFailed", err)
	}
}

func TestEncoderForUnknown(t *testing.T) {
	if _, err := EncoderFor("flac"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
}
