package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// EspeakSynthesizer shells out to a local espeak-ng binary, the fallback
// when cloud synthesis is unavailable. espeak writes WAV to a file, so the
// output goes through a temp path and is read back.
type EspeakSynthesizer struct {
	ExecPath string
	Speed    int // words per minute
}

// NewEspeakSynthesizer uses the given binary path, defaulting to espeak-ng
// on PATH.
func NewEspeakSynthesizer(execPath string) *EspeakSynthesizer {
	if execPath == "" {
		execPath = "espeak-ng"
	}
	return &EspeakSynthesizer{ExecPath: execPath, Speed: 150}
}

// Synthesize renders text to WAV bytes via the local engine.
func (e *EspeakSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("espeak: empty text")
	}

	tmp, err := os.CreateTemp("", "tts-*.wav")
	if err != nil {
		return nil, fmt.Errorf("espeak: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, e.ExecPath, "-s", fmt.Sprintf("%d", e.Speed), "-w", tmpPath, text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("espeak: %s failed: %v (%s)", filepath.Base(e.ExecPath), err, string(out))
	}

	audio, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("espeak: read output: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("espeak: produced empty audio")
	}
	return audio, nil
}
