package chatlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen_CreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strings.Join(Header, ",") {
		t.Fatalf("unexpected header line %q", got)
	}
}

func TestOpen_MigratesLegacyHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat_log.csv")
	legacy := "time,msg\nold-row-1,hello\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	backup, err := os.ReadFile(path + BackupSuffix)
	if err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	if string(backup) != legacy {
		t.Fatalf("backup not byte-identical to original")
	}
	fresh, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fresh: %v", err)
	}
	if got := strings.TrimSpace(string(fresh)); got != strings.Join(Header, ",") {
		t.Fatalf("fresh log missing current header, got %q", got)
	}
}

func TestOpen_CurrentHeaderUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Append(Record{Timestamp: time.Now(), SessionID: "s1", UserMessage: "hi", BotResponse: "hello"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening with a matching header must not migrate anything.
	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if _, err := os.Stat(path + BackupSuffix); !os.IsNotExist(err) {
		t.Fatalf("unexpected backup file on matching header")
	}
	rows, err := ReadAll(path)
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected prior row preserved, got %d rows", len(rows))
	}
}

func TestAppend_WritesOneRowPerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l.Append(Record{Timestamp: ts, SessionID: "abc", UserMessage: "question, with comma", BotResponse: "answer"})
	l.Append(Record{Timestamp: ts, SessionID: "abc", UserMessage: "[voice message]", BotResponse: "hi", UserAudioFile: "user_audio_abc.wav"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows, err := ReadAll(path)
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["user_message"] != "question, with comma" {
		t.Fatalf("csv quoting broken: %q", rows[0]["user_message"])
	}
	if rows[0]["user_audio_file"] != "N/A" || rows[0]["bot_audio_file"] != "N/A" {
		t.Fatalf("expected N/A audio fields, got %+v", rows[0])
	}
	if rows[1]["user_audio_file"] != "user_audio_abc.wav" {
		t.Fatalf("expected audio filename in row, got %+v", rows[1])
	}
}

func TestAppend_AfterCloseDropsRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A session finishing an exchange during shutdown must degrade to a
	// dropped row, never a panic.
	l.Append(Record{Timestamp: time.Now(), SessionID: "late", UserMessage: "q", BotResponse: "a"})

	rows, err := ReadAll(path)
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected late row dropped, got %d rows", len(rows))
	}
}

func TestAppend_ConcurrentWithClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			l.Append(Record{Timestamp: time.Now(), SessionID: "race", UserMessage: "q", BotResponse: "a"})
		}
	}()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-done
}

func TestReadAll_HeaderOnlyIsEmptySlice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_log.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	rows, err := ReadAll(path)
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", rows)
	}
}

func TestReadAll_MissingFile(t *testing.T) {
	if _, err := ReadAll(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestAudioStore_SaveNamesBySessionAndRole(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAudioStore(filepath.Join(dir, "audio_logs"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	name, err := store.SaveUserAudio("sess1", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(name, "user_audio_sess1_") || !strings.HasSuffix(name, ".wav") {
		t.Fatalf("unexpected artifact name %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, "audio_logs", name)); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	botName, err := store.SaveBotAudio("sess1", []byte{4})
	if err != nil {
		t.Fatalf("save bot: %v", err)
	}
	if !strings.HasPrefix(botName, "bot_audio_sess1_") {
		t.Fatalf("unexpected bot artifact name %q", botName)
	}
}
