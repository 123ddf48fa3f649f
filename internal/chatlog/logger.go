// Package chatlog persists chat interactions: an append-only CSV log with a
// fixed column schema plus a directory of audio artifacts for audit.
package chatlog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Header is the fixed CSV column schema. Changing it triggers the one-time
// legacy-log migration on startup.
var Header = []string{
	"timestamp_iso",
	"session_id",
	"user_message",
	"bot_response",
	"user_audio_file",
	"bot_audio_file",
}

// BackupSuffix is appended to a legacy log file during migration.
const BackupSuffix = ".backup"

// Record is one completed request/response exchange. Audio file fields hold
// "N/A" when the exchange had no audio on that side.
type Record struct {
	Timestamp     time.Time
	SessionID     string
	UserMessage   string
	BotResponse   string
	UserAudioFile string
	BotAudioFile  string
}

func (r Record) row() []string {
	userAudio := r.UserAudioFile
	if userAudio == "" {
		userAudio = "N/A"
	}
	botAudio := r.BotAudioFile
	if botAudio == "" {
		botAudio = "N/A"
	}
	return []string{
		r.Timestamp.Format(time.RFC3339Nano),
		r.SessionID,
		r.UserMessage,
		r.BotResponse,
		userAudio,
		botAudio,
	}
}

// Logger appends records through a single background writer so concurrent
// sessions never interleave partial rows. Append never blocks the caller and
// stays safe to call concurrently with Close: sessions may still be finishing
// exchanges while the process shuts down.
type Logger struct {
	path string
	file *os.File

	ch   chan Record
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Open prepares the log file (creating it with a header, or migrating a
// legacy file to a backup) and starts the writer goroutine.
func Open(path string) (*Logger, error) {
	if err := ensureHeader(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chatlog: open %s: %w", path, err)
	}
	l := &Logger{
		path: path,
		file: f,
		ch:   make(chan Record, 256),
		done: make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// Append enqueues one record. Fire-and-forget: a full queue or an
// already-closed logger drops the record with an operator-side log line
// rather than delaying or failing the client reply.
func (l *Logger) Append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		log.Printf("chatlog: logger closed, dropping row for session %s", r.SessionID)
		return
	}
	select {
	case l.ch <- r:
	default:
		log.Printf("chatlog: queue full, dropping row for session %s", r.SessionID)
	}
}

// Close drains pending records and syncs the file. Appends racing or
// following Close are dropped with an operator log line, never a panic.
func (l *Logger) Close() error {
	l.mu.Lock()
	alreadyClosed := l.closed
	l.closed = true
	l.mu.Unlock()
	if !alreadyClosed {
		close(l.ch)
	}
	<-l.done
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for r := range l.ch {
		w := csv.NewWriter(l.file)
		if err := w.Write(r.row()); err != nil {
			log.Printf("chatlog: write row: %v", err)
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil {
			log.Printf("chatlog: flush row: %v", err)
			continue
		}
		if err := l.file.Sync(); err != nil {
			log.Printf("chatlog: sync: %v", err)
		}
	}
}

// ensureHeader creates the log with the current header when missing, and
// moves aside a file whose first line does not match (legacy schema). The
// migration preserves the old content byte-for-byte under the backup name.
func ensureHeader(path string) error {
	expected := strings.Join(Header, ",")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return writeHeader(path)
	}
	if err != nil {
		return fmt.Errorf("chatlog: read %s: %w", path, err)
	}

	firstLine, _, _ := strings.Cut(string(data), "\n")
	if strings.TrimRight(firstLine, "\r") == expected {
		return nil
	}

	backup := path + BackupSuffix
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("chatlog: backup legacy log: %w", err)
	}
	log.Printf("chatlog: legacy log format backed up to %s", backup)
	return writeHeader(path)
}

func writeHeader(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("chatlog: create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// HistoryFile adapts a log file path to repeated reads; each call re-parses
// the file so callers always see rows appended since the last read.
type HistoryFile string

func (h HistoryFile) ReadAll() ([]map[string]string, error) {
	return ReadAll(string(h))
}

// ReadAll parses the whole log into one map per row keyed by header fields.
// A log holding only the header yields an empty, non-nil slice.
func ReadAll(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	rows, err := rd.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []map[string]string{}, nil
	}

	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				m[name] = row[i]
			} else {
				m[name] = ""
			}
		}
		out = append(out, m)
	}
	return out, nil
}
