package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of the canonical PCM RIFF/WAVE header.
const WAVHeaderSize = 44

// ErrNotWAV is returned by DecodeWAV when the bytes are not a RIFF/WAVE file.
var ErrNotWAV = errors.New("not a WAV file")

// EncodeWAV encodes buf as a 16-bit linear PCM RIFF/WAVE file with a 44-byte
// header followed by interleaved little-endian samples.
func EncodeWAV(buf Buffer) ([]byte, error) {
	out := &seekBuffer{}
	if err := WriteWAV(out, buf); err != nil {
		return nil, err
	}
	return out.data, nil
}

// WriteWAV encodes buf to w as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, buf Buffer) error {
	numChannels := buf.NumChannels()
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChannels, SampleRate: buf.SampleRate},
		Data:           make([]int, 0, buf.Len()*numChannels),
		SourceBitDepth: BitDepth,
	}
	for _, v := range buf.Interleave() {
		ib.Data = append(ib.Data, int(FloatToInt16(v)))
	}

	enc := wav.NewEncoder(w, buf.SampleRate, BitDepth, numChannels, 1)
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = int(pos)
	return pos, nil
}

// StreamDataLength is the data chunk size announced for open-ended streams.
const StreamDataLength = math.MaxUint32 - 36

// WAVHeader returns the 44-byte header for 16-bit PCM carrying dataLength
// bytes of samples. Used ahead of open-ended streams, where the encoder's
// seek-back to patch sizes is impossible.
func WAVHeader(sampleRate, numChannels int, dataLength uint32) []byte {
	blockAlign := numChannels * BitDepth / 8

	out := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize))
	out.WriteString("RIFF")
	binary.Write(out, binary.LittleEndian, 36+dataLength)
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(out, binary.LittleEndian, uint32(16))                    // fmt chunk size
	binary.Write(out, binary.LittleEndian, uint16(1))                     // PCM
	binary.Write(out, binary.LittleEndian, uint16(numChannels))           // channels
	binary.Write(out, binary.LittleEndian, uint32(sampleRate))            // sample rate
	binary.Write(out, binary.LittleEndian, uint32(sampleRate*blockAlign)) // byte rate
	binary.Write(out, binary.LittleEndian, uint16(blockAlign))            // block align
	binary.Write(out, binary.LittleEndian, uint16(BitDepth))              // bits per sample
	out.WriteString("data")
	binary.Write(out, binary.LittleEndian, dataLength)
	return out.Bytes()
}

// FloatToInt16 clamps v to [-1, 1] and scales it sign-aware: negative values
// by 32768, non-negative values by 32767.
func FloatToInt16(v float32) int16 {
	s := math.Max(-1, math.Min(1, float64(v)))
	if s < 0 {
		return int16(math.Round(s * 0x8000))
	}
	return int16(math.Round(s * 0x7FFF))
}

// Int16ToFloat inverts FloatToInt16.
func Int16ToFloat(s int16) float32 {
	if s < 0 {
		return float32(s) / 0x8000
	}
	return float32(s) / 0x7FFF
}

// DecodeWAV decodes a PCM WAV file of any integer bit depth into a Buffer.
func DecodeWAV(data []byte) (Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Buffer{}, ErrNotWAV
	}
	ib, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("read pcm: %w", err)
	}
	return fromIntBuffer(ib, int(d.BitDepth))
}

func fromIntBuffer(ib *goaudio.IntBuffer, bitDepth int) (Buffer, error) {
	if ib.Format == nil || ib.Format.NumChannels <= 0 {
		return Buffer{}, fmt.Errorf("wav: missing format")
	}
	numChannels := ib.Format.NumChannels
	frames := len(ib.Data) / numChannels
	buf := NewBuffer(numChannels, frames, ib.Format.SampleRate)

	convert := func(v int) float32 {
		switch bitDepth {
		case 8:
			return float32(v-128) / 128
		case 16:
			return Int16ToFloat(int16(v))
		default:
			return float32(float64(v) / float64(int64(1)<<(bitDepth-1)))
		}
	}

	for f := 0; f < frames; f++ {
		for c := 0; c < numChannels; c++ {
			buf.Channels[c][f] = convert(ib.Data[f*numChannels+c])
		}
	}
	return buf, nil
}
