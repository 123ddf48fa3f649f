// Package audioconv normalizes browser-recorded audio blobs to a single
// canonical representation: 16 kHz mono 16-bit PCM WAV. Valid WAV input is
// passed through untouched; other containers are decoded and re-encoded.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const canonicalRate = 16000

// ErrNoDecoder is returned when the input container is not recognized by any
// of the available decoders. Callers surface this distinctly from generic
// decode failures.
var ErrNoDecoder = errors.New("audioconv: no decoder for audio format")

// EnsureWAV returns the input as canonical WAV bytes. A valid WAV file is
// returned as-is; MP3 and Ogg Vorbis are re-encoded. Unknown containers
// yield ErrNoDecoder.
func EnsureWAV(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("audioconv: empty audio data")
	}

	if IsWAV(data) {
		return data, nil
	}

	pcm, err := decodeFallback(data)
	if err != nil {
		return nil, err
	}
	return encodeWAV(pcm, canonicalRate)
}

// IsWAV reports whether data parses as a RIFF/WAVE file.
func IsWAV(data []byte) bool {
	if len(data) < 12 || string(data[:4]) != "RIFF" {
		return false
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	return dec.IsValidFile()
}

// decodeFallback sniffs the container and decodes to 16 kHz mono float32.
func decodeFallback(data []byte) ([]float32, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	magic, _ := br.Peek(4)

	switch {
	case len(magic) >= 4 && string(magic) == "OggS":
		return decodeOggVorbis(bytes.NewReader(data))
	case len(magic) >= 3 && string(magic[:3]) == "ID3":
		return decodeMP3(bytes.NewReader(data))
	case len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		// bare MPEG frame sync
		return decodeMP3(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w (magic %q)", ErrNoDecoder, string(magic))
	}
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("audioconv: mp3 decode: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, fmt.Errorf("audioconv: mp3 read: %w", err)
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	x := int16SliceToFloat32(ints)
	// go-mp3 always outputs interleaved stereo
	x = downmixInterleaved(x, 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	if sr != canonicalRate {
		x = resampleLinear(x, sr, canonicalRate)
	}
	return x, nil
}

func decodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("audioconv: ogg decode: %w", err)
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("audioconv: invalid ogg/vorbis stream")
	}
	x := pcm
	if format.Channels > 1 {
		x = downmixInterleaved(pcm, format.Channels)
	}
	if format.SampleRate != canonicalRate {
		x = resampleLinear(x, format.SampleRate, canonicalRate)
	}
	return x, nil
}

// encodeWAV writes mono float32 samples as a 16-bit PCM WAV file.
func encodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, errors.New("audioconv: no samples decoded")
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(clamp(float64(s), -1.0, 1.0) * 32767.0)
	}

	var ws writerSeeker
	enc := wav.NewEncoder(&ws, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audioconv: wav encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audioconv: wav finalize: %w", err)
	}
	return ws.Bytes(), nil
}

// writerSeeker is the in-memory io.WriteSeeker the wav encoder needs to patch
// chunk sizes after writing.
type writerSeeker struct {
	buf []byte
	pos int
}

func (ws *writerSeeker) Write(p []byte) (int, error) {
	if need := ws.pos + len(p); need > len(ws.buf) {
		grown := make([]byte, need)
		copy(grown, ws.buf)
		ws.buf = grown
	}
	copy(ws.buf[ws.pos:], p)
	ws.pos += len(p)
	return len(p), nil
}

func (ws *writerSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = ws.pos + int(offset)
	case io.SeekEnd:
		next = len(ws.buf) + int(offset)
	default:
		return 0, fmt.Errorf("audioconv: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("audioconv: seek before start")
	}
	ws.pos = next
	return int64(next), nil
}

func (ws *writerSeeker) Bytes() []byte { return ws.buf }

// helpers

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
