// Package session implements the per-connection WebSocket state machine:
// session identity, message classification, and orchestration of the
// generation, transcription and synthesis services.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Akhil70722/AI-BOT/internal/chatlog"
	"github.com/Akhil70722/AI-BOT/internal/stt"
)

// Generator produces a reply for a prompt. Implementations never fail:
// degraded results come back as displayable strings.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// Transcriber turns raw audio into text, reporting failure in-band as an
// error-prefixed string (classified by stt.IsError) and returning the audit
// artifact name.
type Transcriber interface {
	Process(ctx context.Context, sessionID string, audio []byte) (text string, audioFile string)
}

// Speaker synthesizes reply audio, returning the audit artifact name.
type Speaker interface {
	Speak(ctx context.Context, sessionID, text string) (audio []byte, audioFile string, err error)
}

// Appender records one completed exchange. Must not block.
type Appender interface {
	Append(chatlog.Record)
}

// Fixed user-visible strings.
const (
	emptyMessageNotice = "Please send a non-empty message."
	emptyReplyApology  = "I couldn't generate a response. Please try again."
	voicePlaceholder   = "[voice message]"
)

const (
	// maxMessageSize accommodates multi-megabyte browser audio blobs.
	maxMessageSize = 20 * 1024 * 1024
	pingPeriod     = 20 * time.Second
	pongWait       = 40 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary local origins.
		return true
	},
}

// inboundMessage is the accepted client frame. Plain strings that fail JSON
// parsing are handled as legacy text.
type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

// outboundMessage is the server reply frame.
type outboundMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
	Audio     string `json:"audio,omitempty"`
	TTSError  string `json:"tts_error,omitempty"`
}

// Handler serves WebSocket chat connections against a set of shared
// services. One Handler serves all connections; each connection gets its own
// session goroutine.
type Handler struct {
	llm     Generator
	stt     Transcriber
	tts     Speaker
	logbook Appender
}

// NewHandler wires the shared services. stt, tts and logbook may be nil when
// the corresponding capability is unconfigured.
func NewHandler(llm Generator, stt Transcriber, tts Speaker, logbook Appender) *Handler {
	return &Handler{llm: llm, stt: stt, tts: tts, logbook: logbook}
}

var sessionSeq atomic.Uint64

// newSessionID is process-unique: wall-clock plus a monotonic counter.
func newSessionID() string {
	return fmt.Sprintf("%s-%d", time.Now().Format("0102150405.000"), sessionSeq.Add(1))
}

// ServeHTTP upgrades to WebSocket and runs the connection loop until the
// client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("session: ws upgrade error: %v", err)
		return
	}

	s := &session{
		handler: h,
		conn:    conn,
		id:      newSessionID(),
	}
	s.run(r.Context())
}

// session is the per-connection state. Owned by a single goroutine; the
// write mutex only guards against the keep-alive pinger.
type session struct {
	handler *Handler
	conn    *websocket.Conn
	id      string

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		s.closed.Store(true)
		_ = s.conn.Close()
	}()

	log.Printf("session %s: connected", s.id)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.keepAlive(ctx)

	// The session notification is always the first frame the client sees.
	s.send(outboundMessage{Type: "session", SessionID: s.id, Content: ""})

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("session %s: read error: %v", s.id, err)
			}
			return
		}
		s.handleMessage(ctx, msgType, data)
	}
}

// keepAlive pings the client periodically; a missed pong lets the read
// deadline expire and end the loop.
func (s *session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// handleMessage classifies and processes one inbound frame. Any failure is
// converted into a best-effort text error reply; the connection loop always
// continues.
func (s *session) handleMessage(ctx context.Context, msgType int, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s: panic in message handler: %v", s.id, r)
			s.send(outboundMessage{Type: "text", Content: fmt.Sprintf("Error processing message: %v", r), SessionID: s.id})
		}
	}()

	if msgType == websocket.BinaryMessage {
		s.processAudio(ctx, data)
		return
	}
	if msgType != websocket.TextMessage {
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// Legacy plain-text frame.
		s.processTextOrNotice(ctx, string(data), false, "")
		return
	}

	switch msg.Type {
	case "ping":
		s.send(outboundMessage{Type: "pong", Content: "keep-alive-ack"})
	case "tts_request":
		if msg.Text == "" {
			return
		}
		s.processText(ctx, msg.Text, true, "")
	case "text":
		s.processTextOrNotice(ctx, msg.Content, false, "")
	default:
		// Unrecognized type: fall back to text processing when the frame
		// carries usable content, otherwise ignore it.
		if strings.TrimSpace(msg.Content) != "" {
			s.processText(ctx, strings.TrimSpace(msg.Content), false, "")
		}
	}
}

// processTextOrNotice rejects blank input with a notice (not logged, never
// reaches the generative client) and processes the rest.
func (s *session) processTextOrNotice(ctx context.Context, raw string, enableTTS bool, userAudioFile string) {
	userMsg := strings.TrimSpace(raw)
	if userMsg == "" {
		s.send(outboundMessage{Type: "text", Content: emptyMessageNotice, SessionID: s.id})
		return
	}
	s.processText(ctx, userMsg, enableTTS, userAudioFile)
}

// processText runs the generation (and optional synthesis) pipeline for a
// validated message, logs the exchange, and replies.
func (s *session) processText(ctx context.Context, userMsg string, enableTTS bool, userAudioFile string) {
	botText := strings.TrimSpace(s.handler.llm.Generate(ctx, userMsg))
	if botText == "" {
		botText = emptyReplyApology
	}

	var audio []byte
	var botAudioFile, ttsError string
	if enableTTS && s.handler.tts != nil {
		var err error
		audio, botAudioFile, err = s.handler.tts.Speak(ctx, s.id, botText)
		if err != nil {
			ttsError = err.Error()
		}
	}

	// Fire-and-forget: the logger's queue decouples this from the reply.
	if s.handler.logbook != nil {
		s.handler.logbook.Append(chatlog.Record{
			Timestamp:     time.Now(),
			SessionID:     s.id,
			UserMessage:   userMsg,
			BotResponse:   botText,
			UserAudioFile: userAudioFile,
			BotAudioFile:  botAudioFile,
		})
	}

	reply := outboundMessage{Type: "text", Content: botText, SessionID: s.id}
	if len(audio) > 0 {
		reply.Audio = base64.StdEncoding.EncodeToString(audio)
	} else if ttsError != "" {
		reply.TTSError = ttsError
	}
	s.send(reply)
}

// processAudio transcribes a binary frame and hands the text to the normal
// pipeline with synthesis enabled. Failed transcriptions still produce a log
// row so history shows the issue.
func (s *session) processAudio(ctx context.Context, data []byte) {
	if s.handler.stt == nil {
		s.send(outboundMessage{Type: "text", Content: "Error: speech recognition not available", SessionID: s.id})
		return
	}

	text, userAudioFile := s.handler.stt.Process(ctx, s.id, data)
	if stt.IsError(text) {
		if s.handler.logbook != nil {
			s.handler.logbook.Append(chatlog.Record{
				Timestamp:     time.Now(),
				SessionID:     s.id,
				UserMessage:   voicePlaceholder,
				BotResponse:   text,
				UserAudioFile: userAudioFile,
			})
		}
		s.send(outboundMessage{Type: "text", Content: text, SessionID: s.id})
		return
	}

	log.Printf("session %s: transcribed: %s", s.id, text)
	s.processTextOrNotice(ctx, text, true, userAudioFile)
}

// send writes one frame if the connection is still open. Send failures are
// logged and swallowed: the remote end is already gone.
func (s *session) send(msg outboundMessage) {
	if s.closed.Load() {
		log.Printf("session %s: connection closed, dropping %s frame", s.id, msg.Type)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Printf("session %s: send error: %v", s.id, err)
		s.closed.Store(true)
	}
}
