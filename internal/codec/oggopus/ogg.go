package oggopus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	pageHeaderLen = 27
	flagBOS       = 2
	flagEOS       = 4
	streamSerial  = 0x564F4943 // "VOIC"
	vendor        = "voicenote"
)

// oggStream describes the Opus packets being muxed.
type oggStream struct {
	sampleRate int
	channels   int
	// frameSamples is the number of samples per packet at sampleRate.
	frameSamples int
	// preSkip is the encoder lookahead at 48 kHz.
	preSkip int
	// samples is the real input length at sampleRate; the final granule
	// position ends the stream there.
	samples int
}

// write wraps packets in an Ogg Opus stream.
func (s oggStream) write(w io.Writer, packets [][]byte) error {
	var buf bytes.Buffer

	writePage(&buf, 0, 0, flagBOS, [][]byte{opusHead(s.sampleRate, s.channels, s.preSkip)})
	writePage(&buf, 0, 1, 0, [][]byte{opusTags()})

	// Granule positions are always counted at 48 kHz.
	step := uint64(s.frameSamples * 48000 / s.sampleRate)
	final := uint64(s.preSkip) + uint64(s.samples)*48000/uint64(s.sampleRate)
	var granule uint64
	var pending [][]byte
	seq := uint32(2)
	for i, p := range packets {
		pending = append(pending, p)
		granule += step
		last := i == len(packets)-1
		if len(pending) >= 10 || last {
			var flags byte
			pageGranule := granule
			if last {
				flags = flagEOS
				pageGranule = min(granule, final)
			}
			writePage(&buf, pageGranule, seq, flags, pending)
			seq++
			pending = nil
		}
	}
	if len(packets) == 0 {
		writePage(&buf, 0, seq, flagEOS, nil)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func opusHead(sampleRate, channels, preSkip int) []byte {
	var buf bytes.Buffer
	buf.WriteString("OpusHead")
	buf.WriteByte(1)
	buf.WriteByte(byte(channels))
	binary.Write(&buf, binary.LittleEndian, uint16(preSkip))    // pre-skip
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate)) // input sample rate
	binary.Write(&buf, binary.LittleEndian, int16(0))           // output gain
	buf.WriteByte(0)                                            // mapping family
	return buf.Bytes()
}

func opusTags() []byte {
	var buf bytes.Buffer
	buf.WriteString("OpusTags")
	binary.Write(&buf, binary.LittleEndian, uint32(len(vendor)))
	buf.WriteString(vendor)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	return buf.Bytes()
}

func writePage(buf *bytes.Buffer, granule uint64, seq uint32, flags byte, packets [][]byte) {
	var lacing []byte
	for _, p := range packets {
		n := len(p)
		for n >= 255 {
			lacing = append(lacing, 255)
			n -= 255
		}
		lacing = append(lacing, byte(n))
	}

	page := make([]byte, 0, pageHeaderLen+len(lacing))
	page = append(page, "OggS"...)
	page = append(page, 0, flags)
	page = binary.LittleEndian.AppendUint64(page, granule)
	page = binary.LittleEndian.AppendUint32(page, streamSerial)
	page = binary.LittleEndian.AppendUint32(page, seq)
	page = binary.LittleEndian.AppendUint32(page, 0) // crc placeholder
	page = append(page, byte(len(lacing)))
	page = append(page, lacing...)
	for _, p := range packets {
		page = append(page, p...)
	}

	crc := crc32Ogg(page)
	binary.LittleEndian.PutUint32(page[22:], crc)
	buf.Write(page)
}

// readOgg returns the packets of the first logical stream in data and the
// granule position of its last page.
func readOgg(data []byte) ([][]byte, uint64, error) {
	var packets [][]byte
	var partial []byte
	var granule uint64
	off := 0
	for off < len(data) {
		if len(data)-off < pageHeaderLen || string(data[off:off+4]) != "OggS" {
			return nil, 0, fmt.Errorf("bad page at offset %d", off)
		}
		nseg := int(data[off+26])
		segStart := off + pageHeaderLen
		bodyStart := segStart + nseg
		if bodyStart > len(data) {
			return nil, 0, errors.New("truncated segment table")
		}
		lacing := data[segStart:bodyStart]

		want := binary.LittleEndian.Uint32(data[off+22:])
		bodyLen := 0
		for _, l := range lacing {
			bodyLen += int(l)
		}
		end := bodyStart + bodyLen
		if end > len(data) {
			return nil, 0, errors.New("truncated page body")
		}
		page := make([]byte, end-off)
		copy(page, data[off:end])
		binary.LittleEndian.PutUint32(page[22:], 0)
		if crc32Ogg(page) != want {
			return nil, 0, fmt.Errorf("crc mismatch at offset %d", off)
		}

		pos := bodyStart
		for _, l := range lacing {
			partial = append(partial, data[pos:pos+int(l)]...)
			pos += int(l)
			if l < 255 {
				packets = append(packets, partial)
				partial = nil
			}
		}
		granule = binary.LittleEndian.Uint64(data[off+6:])
		off = end
	}
	return packets, granule, nil
}

// Ogg uses CRC-32 with polynomial 0x04C11DB7, no reflection.
var crcTable [256]uint32

func init() {
	for i := range crcTable {
		r := uint32(i) << 24
		for range 8 {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04C11DB7
			} else {
				r <<= 1
			}
		}
		crcTable[i] = r
	}
}

func crc32Ogg(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}
