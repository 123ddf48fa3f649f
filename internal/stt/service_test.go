package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

// minimalWAV builds a tiny valid 16-bit mono PCM WAV in memory.
func minimalWAV(samples int) []byte {
	var buf bytes.Buffer
	data := make([]byte, samples*2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

type fakeTranscriber struct {
	got  []byte
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav []byte) (string, error) {
	f.got = wav
	return f.text, f.err
}

type fakeSaver struct {
	name string
	err  error
	got  []byte
}

func (f *fakeSaver) SaveUserAudio(sessionID string, data []byte) (string, error) {
	f.got = data
	return f.name, f.err
}

func TestProcess_DirectWAVSkipsReencode(t *testing.T) {
	wav := minimalWAV(1600)
	tr := &fakeTranscriber{text: "hello world"}
	sv := &fakeSaver{name: "user_audio_s1.wav"}
	svc := NewService(tr, sv)

	text, file := svc.Process(context.Background(), "s1", wav)
	if text != "hello world" {
		t.Fatalf("unexpected text %q", text)
	}
	if file != "user_audio_s1.wav" {
		t.Fatalf("unexpected audit file %q", file)
	}
	// Canonical WAV input must reach the transcriber untouched.
	if !bytes.Equal(tr.got, wav) {
		t.Fatalf("expected direct wav passthrough to transcriber")
	}
	if !bytes.Equal(sv.got, wav) {
		t.Fatalf("expected raw bytes persisted for audit")
	}
}

func TestProcess_UnknownCodecMessage(t *testing.T) {
	svc := NewService(&fakeTranscriber{}, nil)
	text, _ := svc.Process(context.Background(), "s1", []byte("\x1a\x45\xdf\xa3-webm-opus-blob"))
	if !IsError(text) {
		t.Fatalf("expected error result, got %q", text)
	}
	if !strings.Contains(text, "no codec available") {
		t.Fatalf("expected codec-missing diagnostic, got %q", text)
	}
}

func TestProcess_SaveFailureDoesNotAbort(t *testing.T) {
	tr := &fakeTranscriber{text: "still works"}
	sv := &fakeSaver{err: errors.New("disk full")}
	svc := NewService(tr, sv)
	text, file := svc.Process(context.Background(), "s1", minimalWAV(160))
	if text != "still works" {
		t.Fatalf("audit failure must not abort transcription, got %q", text)
	}
	if file != "" {
		t.Fatalf("expected empty audit name on save failure, got %q", file)
	}
}

func TestProcess_TranscriberError(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("backend down")}
	svc := NewService(tr, nil)
	text, _ := svc.Process(context.Background(), "s1", minimalWAV(160))
	if !IsError(text) || !strings.Contains(text, "backend down") {
		t.Fatalf("expected prefixed error with detail, got %q", text)
	}
}

func TestProcess_NoTranscriberConfigured(t *testing.T) {
	svc := NewService(nil, nil)
	text, _ := svc.Process(context.Background(), "s1", minimalWAV(160))
	if !IsError(text) {
		t.Fatalf("expected error result, got %q", text)
	}
}

func TestIsError(t *testing.T) {
	if !IsError(ErrorPrefix + " boom") {
		t.Fatalf("prefixed string must classify as error")
	}
	if IsError("The word Error appears later") {
		t.Fatalf("non-prefixed string must not classify as error")
	}
}
