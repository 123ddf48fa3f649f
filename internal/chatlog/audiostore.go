package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AudioStore writes per-exchange audio artifacts (raw user uploads and
// synthesized bot replies) under a single audit directory. All writes are
// best-effort from the caller's point of view: a failed save must never stop
// the exchange.
type AudioStore struct {
	dir string
}

// NewAudioStore creates the audit directory if needed.
func NewAudioStore(dir string) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chatlog: create audio dir %s: %w", dir, err)
	}
	return &AudioStore{dir: dir}, nil
}

// SaveUserAudio persists inbound audio bytes and returns the artifact
// filename for the log row.
func (s *AudioStore) SaveUserAudio(sessionID string, data []byte) (string, error) {
	return s.save("user", sessionID, data)
}

// SaveBotAudio persists synthesized reply audio and returns the artifact
// filename for the log row.
func (s *AudioStore) SaveBotAudio(sessionID string, data []byte) (string, error) {
	return s.save("bot", sessionID, data)
}

func (s *AudioStore) save(role, sessionID string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_audio_%s_%s.wav", role, sessionID, time.Now().Format("20060102_150405.000"))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("chatlog: save %s audio: %w", role, err)
	}
	return name, nil
}
