package oggopus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jwulff/voicenote/internal/codec"
)

func TestOggPacketRoundTrip(t *testing.T) {
	packets := [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 255),
		bytes.Repeat([]byte{3}, 600),
	}
	stream := oggStream{sampleRate: 16000, channels: 1, frameSamples: 320, preSkip: preSkip48, samples: 700}
	var buf bytes.Buffer
	if err := stream.write(&buf, packets); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, granule, err := readOgg(buf.Bytes())
	if err != nil {
		t.Fatalf("readOgg: %v", err)
	}
	// OpusHead + OpusTags + 3 audio packets
	if len(got) != 5 {
		t.Fatalf("packets = %d, want 5", len(got))
	}
	for i, want := range packets {
		if !bytes.Equal(got[i+2], want) {
			t.Errorf("packet %d length = %d, want %d", i, len(got[i+2]), len(want))
		}
	}
	if !bytes.HasPrefix(got[0], []byte("OpusHead")) {
		t.Fatal("first packet should be OpusHead")
	}
	if skip := binary.LittleEndian.Uint16(got[0][10:]); skip != preSkip48 {
		t.Errorf("pre-skip = %d, want %d", skip, preSkip48)
	}
	// The last page ends at pre-skip plus the real samples, not the padded frames.
	if want := uint64(preSkip48 + 700*3); granule != want {
		t.Errorf("final granule = %d, want %d", granule, want)
	}
}

func TestReadOggDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	stream := oggStream{sampleRate: 16000, channels: 1, frameSamples: 320, preSkip: preSkip48, samples: 320}
	stream.write(&buf, [][]byte{{1, 2, 3}})
	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF

	if _, _, err := readOgg(data); err == nil {
		t.Error("expected crc error")
	}
}

func TestEncodeDecode(t *testing.T) {
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.4 * math.Sin(2*math.Pi*300*float64(i)/16000))
	}

	path := filepath.Join(t.TempDir(), "clip.ogg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := (Encoder{}).Encode(f, samples, 16000); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	data, _ := os.ReadFile(path)
	if codec.Sniff(data) != codec.FormatOgg {
		t.Fatalf("Sniff = %q", codec.Sniff(data))
	}

	pcm, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", pcm.SampleRate)
	}
	if len(pcm.Samples) != 16000 {
		t.Errorf("samples = %d, want 16000", len(pcm.Samples))
	}
}

func TestDecodeTrimsLookaheadAndPadding(t *testing.T) {
	const rate = 16000
	// A length that is not a whole number of 20 ms frames.
	samples := make([]float32, rate/2+123)
	// A loud burst in the middle; the priming delay would shift it late.
	burst := len(samples) / 2
	for i := burst; i < burst+160; i++ {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*1000*float64(i)/rate))
	}

	f, err := os.Create(filepath.Join(t.TempDir(), "burst.ogg"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := (Encoder{}).Encode(f, samples, rate); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	data, _ := os.ReadFile(f.Name())
	pcm, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pcm.Samples) != len(samples) {
		t.Fatalf("samples = %d, want %d", len(pcm.Samples), len(samples))
	}

	peak, at := float32(0), 0
	for i, v := range pcm.Samples {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak, at = a, i
		}
	}
	if at < burst-40 || at > burst+200 {
		t.Errorf("burst peaks at sample %d, want within [%d,%d]", at, burst-40, burst+200)
	}
}

func TestEncodeRejectsUnsupportedRate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.ogg"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := (Encoder{}).Encode(f, make([]float32, 44100), 44100); err == nil {
		t.Error("expected an error encoding at 44100 Hz")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := codec.Decode([]byte("OggS\x00\x02"))
	if !errors.Is(err, codec.ErrDecodeFailed) {
		t.Errorf("err = %v, want ErrDecodeFailed", err)
	}
}
