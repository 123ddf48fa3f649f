package stt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Akhil70722/AI-BOT/internal/audioconv"
)

// ErrorPrefix marks a failed transcription result. The pipeline reports
// failures in-band as prefixed strings so the session can branch on
// success/failure while still having text to show the user.
const ErrorPrefix = "Error processing audio:"

// AudioSaver persists raw inbound audio for audit.
type AudioSaver interface {
	SaveUserAudio(sessionID string, data []byte) (string, error)
}

// Service is the transcription pipeline: audit-save, normalize, recognize.
type Service struct {
	transcriber Transcriber
	store       AudioSaver
}

// NewService wires the pipeline. store may be nil to disable audit saves.
func NewService(t Transcriber, store AudioSaver) *Service {
	return &Service{transcriber: t, store: store}
}

// Process turns raw audio bytes into text. The returned audioFile is the
// audit artifact name, or "" when the save failed or was disabled. A failed
// transcription comes back as an ErrorPrefix-ed string; IsError
// distinguishes the two outcomes.
func (s *Service) Process(ctx context.Context, sessionID string, data []byte) (text string, audioFile string) {
	// Persist before any processing so failed exchanges are still auditable.
	if s.store != nil {
		name, err := s.store.SaveUserAudio(sessionID, data)
		if err != nil {
			log.Printf("stt: could not save user audio: %v", err)
		} else {
			audioFile = name
		}
	}

	wav, err := audioconv.EnsureWAV(data)
	if err != nil {
		if errors.Is(err, audioconv.ErrNoDecoder) {
			return fmt.Sprintf("%s no codec available for this audio format. Please record as WAV, MP3 or Ogg.", ErrorPrefix), audioFile
		}
		return fmt.Sprintf("%s %v", ErrorPrefix, err), audioFile
	}

	if s.transcriber == nil {
		return ErrorPrefix + " speech recognition not available", audioFile
	}
	recognized, err := s.transcriber.Transcribe(ctx, wav)
	if err != nil {
		log.Printf("stt: transcription error: %v", err)
		return fmt.Sprintf("%s %v", ErrorPrefix, err), audioFile
	}
	return recognized, audioFile
}

// IsError reports whether a Process result string is a failure report.
func IsError(result string) bool {
	return strings.HasPrefix(result, "Error")
}
