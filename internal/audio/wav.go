package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MIMETypeWAV is the content type of every segment produced by EncodeWAV.
const MIMETypeWAV = "audio/wav"

const (
	wavHeaderSize = 44

	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE
)

var (
	// ErrEmptySegment is returned when there are no samples to encode.
	ErrEmptySegment = errors.New("audio segment is empty")

	// ErrInvalidWAV is returned by DecodeWAV for data it cannot interpret.
	ErrInvalidWAV = errors.New("invalid wav data")
)

// EncodedAudio is a self-describing audio payload ready for transport.
type EncodedAudio struct {
	Data     []byte
	MIMEType string
}

// EncodeWAV serializes mono float samples in [-1, 1] into a 16-bit linear PCM
// RIFF/WAVE container. Samples outside the range are clamped; NaN becomes 0.
// The output is deterministic: equal input always yields identical bytes.
func EncodeWAV(samples []float32, sampleRate int) (EncodedAudio, error) {
	if len(samples) == 0 {
		return EncodedAudio{}, ErrEmptySegment
	}
	if sampleRate <= 0 {
		return EncodedAudio{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	dataSize := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	off := wavHeaderSize
	for _, s := range samples {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(FloatToPCM16(s)))
		off += 2
	}

	return EncodedAudio{Data: buf, MIMEType: MIMETypeWAV}, nil
}

// DecodeWAV parses a mono or multi-channel WAV file and returns the first
// channel as float samples together with the sample rate. 16-bit PCM and
// 32-bit IEEE float payloads are supported; unknown chunks are skipped.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		haveFormat bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) || end < body {
			// Streaming encoders sometimes leave the data size unset.
			if id == "data" {
				end = len(data)
			} else {
				return nil, 0, fmt.Errorf("%w: chunk %q overruns file", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if format == formatExtensible && size >= 26 {
				format = binary.LittleEndian.Uint16(data[body+24 : body+26])
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, 0, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			samples, err := decodeSamples(data[body:end], format, channels, bits)
			if err != nil {
				return nil, 0, err
			}
			return samples, sampleRate, nil
		}

		pos = end
		if size%2 == 1 {
			pos++
		}
	}

	return nil, 0, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

func decodeSamples(payload []byte, format uint16, channels, bits int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidWAV, channels)
	}

	switch {
	case format == formatPCM && bits == 16:
		frame := 2 * channels
		out := make([]float32, len(payload)/frame)
		for i := range out {
			v := int16(binary.LittleEndian.Uint16(payload[i*frame : i*frame+2]))
			out[i] = PCM16ToFloat(v)
		}
		return out, nil
	case format == formatIEEEFloat && bits == 32:
		frame := 4 * channels
		out := make([]float32, len(payload)/frame)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*frame : i*frame+4]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %d with %d bits", ErrInvalidWAV, format, bits)
	}
}
