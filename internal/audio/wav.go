package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// resampleQuality is passed to beep.Resample; 4 is plenty for speech bands.
const resampleQuality = 4

var ErrEmpty = errors.New("audio contains no samples")

// LoadWAV reads a WAV file, downmixes it to mono and resamples it to targetRate.
func LoadWAV(path string, targetRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f, targetRate)
}

// DecodeWAV is LoadWAV for an already opened stream.
func DecodeWAV(r io.Reader, targetRate int) ([]float32, error) {
	s, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	defer s.Close()

	var src beep.Streamer = s
	if int(format.SampleRate) != targetRate {
		src = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(targetRate), s)
	}

	out := make([]float32, 0, s.Len())
	buf := make([][2]float64, 512)
	for {
		n, ok := src.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, float32((buf[i][0]+buf[i][1])/2))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

// WriteWAV encodes mono samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	format := beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: 1, Precision: 2}
	if err := wav.Encode(w, streamSamples(samples), format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// SaveWAV writes samples to path, replacing any existing file.
func SaveWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio: %w", err)
	}
	if err := WriteWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func streamSamples(samples []float32) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := 0
		for n < len(buf) && pos < len(samples) {
			v := float64(samples[pos])
			buf[n][0], buf[n][1] = v, v
			n++
			pos++
		}
		return n, true
	})
}
