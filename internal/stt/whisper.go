// Package stt converts inbound audio blobs to text. Audio is normalized to
// canonical WAV first, persisted for audit, then sent to the transcription
// backend.
package stt

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber converts canonical WAV bytes into recognized text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// WhisperTranscriber implements Transcriber using the OpenAI Whisper API.
type WhisperTranscriber struct {
	client *openai.Client
	apiKey string
	model  string
}

// NewWhisperTranscriber builds a Whisper-backed transcriber. An empty API
// key is allowed at construction; calls will fail with a clear error.
func NewWhisperTranscriber(apiKey string) *WhisperTranscriber {
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		apiKey: apiKey,
		model:  openai.Whisper1,
	}
}

// Transcribe sends wav to the Whisper API and returns the recognized text.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if w.apiKey == "" {
		return "", fmt.Errorf("whisper: API key missing")
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav),
		FilePath: "audio.wav",
	})
	if err != nil {
		return "", fmt.Errorf("whisper: transcription failed: %w", err)
	}
	return resp.Text, nil
}
