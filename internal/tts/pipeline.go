package tts

import (
	"context"
	"errors"
	"log"
)

// AudioSaver persists synthesized audio for audit.
type AudioSaver interface {
	SaveBotAudio(sessionID string, data []byte) (string, error)
}

// Pipeline runs the cloud synthesizer first and the local engine when the
// cloud fails, persisting whatever audio came out. Either synthesizer may be
// nil when unconfigured.
type Pipeline struct {
	cloud Synthesizer
	local Synthesizer
	store AudioSaver
}

// NewPipeline wires the fallback chain. store may be nil to disable audit
// saves.
func NewPipeline(cloud, local Synthesizer, store AudioSaver) *Pipeline {
	return &Pipeline{cloud: cloud, local: local, store: store}
}

// Speak synthesizes text for a session. On success it returns the audio
// bytes and the audit artifact name ("" when the save failed). On total
// failure it returns the last synthesis error for the caller to surface as
// tts_error.
func (p *Pipeline) Speak(ctx context.Context, sessionID, text string) (audio []byte, audioFile string, err error) {
	if p.cloud != nil {
		audio, err = p.cloud.Synthesize(ctx, text)
		if err != nil {
			log.Printf("tts: cloud synthesis failed, falling back to local: %v", err)
		}
	}
	if audio == nil && p.local != nil {
		audio, err = p.local.Synthesize(ctx, text)
		if err != nil {
			log.Printf("tts: local synthesis failed: %v", err)
		}
	}
	if audio == nil {
		if err == nil {
			err = errNoSynthesizer
		}
		return nil, "", err
	}

	if p.store != nil {
		name, saveErr := p.store.SaveBotAudio(sessionID, audio)
		if saveErr != nil {
			log.Printf("tts: could not save bot audio: %v", saveErr)
		} else {
			audioFile = name
		}
	}
	return audio, audioFile, nil
}

var errNoSynthesizer = errors.New("tts: no synthesizer available")
