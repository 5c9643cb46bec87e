package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// errNoNativeDecoder means the extension has no built-in decoder and the
// file should go through ffmpeg instead.
var errNoNativeDecoder = errors.New("no native decoder")

// decodeChunk is the number of stereo frames pulled from a beep streamer
// per call.
const decodeChunk = 4096

// DecodeFile runs FFmpeg to decode an audio file to raw PCM int16 samples.
// Returns interleaved stereo samples at 48kHz.
func DecodeFile(path string) ([]int16, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// decodeNative decodes mp3, wav, flac and ogg/vorbis files in-process and
// returns interleaved stereo float64 samples at the engine sample rate.
func decodeNative(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav", ".wave":
		s, format, err = wav.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		s, format, err = vorbis.Decode(f)
	default:
		return nil, errNoNativeDecoder
	}
	if err != nil {
		return nil, err
	}
	defer s.Close()

	samples, err := drain(s)
	if err != nil {
		return nil, err
	}
	if int(format.SampleRate) == SampleRate {
		return samples, nil
	}
	return resample(samples, int(format.SampleRate))
}

// drain reads a streamer to the end into an interleaved stereo slice.
func drain(s beep.Streamer) ([]float64, error) {
	var out []float64
	buf := make([][2]float64, decodeChunk)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, buf[i][0], buf[i][1])
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// resample converts interleaved stereo samples from rate to SampleRate.
func resample(samples []float64, rate int) ([]float64, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(rate),
		OutputRate: float64(SampleRate),
		Channels:   Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	out, err := rs.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	out = append(out, tail...)
	// keep frames whole
	return out[:len(out)/Channels*Channels], nil
}
