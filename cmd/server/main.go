package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/Akhil70722/AI-BOT/internal/chatlog"
	"github.com/Akhil70722/AI-BOT/internal/config"
	"github.com/Akhil70722/AI-BOT/internal/httpserver"
	"github.com/Akhil70722/AI-BOT/internal/llm"
	"github.com/Akhil70722/AI-BOT/internal/session"
	"github.com/Akhil70722/AI-BOT/internal/stt"
	"github.com/Akhil70722/AI-BOT/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	logger, err := chatlog.Open(cfg.LogFile)
	if err != nil {
		log.Fatalf("interaction log unavailable: %v", err)
	}

	store, err := chatlog.NewAudioStore(cfg.AudioLogDir)
	if err != nil {
		log.Fatalf("audio log directory unavailable: %v", err)
	}

	gemini := llm.NewGeminiClient(cfg.GeminiAPIKey)

	var transcriber *stt.Service
	if cfg.OpenAIAPIKey != "" {
		transcriber = stt.NewService(stt.NewWhisperTranscriber(cfg.OpenAIAPIKey), store)
	} else {
		log.Printf("OPENAI_API_KEY not set; voice messages will be rejected")
	}

	if cfg.GeminiAPIKey == "" {
		log.Printf("cloud TTS unavailable without GEMINI_API_KEY; local engine only")
	}
	if _, err := exec.LookPath(cfg.EspeakPath); err != nil {
		log.Printf("local TTS engine %q not found: %v", cfg.EspeakPath, err)
	}
	speech := tts.NewPipeline(
		tts.NewGeminiSpeech(cfg.GeminiAPIKey),
		tts.NewEspeakSynthesizer(cfg.EspeakPath),
		store,
	)

	handler := session.NewHandler(gemini, asTranscriber(transcriber), speech, logger)

	wsServer := &http.Server{
		Addr:              cfg.WSAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("websocket server listening on %s", cfg.WSAddress)
		serverErrors <- wsServer.ListenAndServe()
	}()

	// The history API is a convenience surface; if its port is taken the
	// chat server keeps running without it.
	api := httpserver.New(chatlog.HistoryFile(cfg.LogFile))
	go func() {
		log.Printf("history api listening on %s", cfg.HTTPAddress)
		if err := api.Start(cfg.HTTPAddress); err != nil && err != http.ErrServerClosed {
			log.Printf("history api unavailable: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Close()
			log.Fatalf("websocket server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsServer.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = wsServer.Close()
	}
	if err := api.Shutdown(ctx); err != nil {
		log.Printf("history api shutdown failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		log.Printf("interaction log close failed: %v", err)
	}
}

// asTranscriber keeps a nil *stt.Service from becoming a non-nil interface
// value in the session handler.
func asTranscriber(s *stt.Service) session.Transcriber {
	if s == nil {
		return nil
	}
	return s
}
