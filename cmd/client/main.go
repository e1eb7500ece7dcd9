package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/voicechat/voice-client/internal/audio"
	"github.com/voicechat/voice-client/internal/config"
	"github.com/voicechat/voice-client/internal/observability"
	"github.com/voicechat/voice-client/internal/resilience"
	"github.com/voicechat/voice-client/internal/session"
	"github.com/voicechat/voice-client/internal/transport"
	"github.com/voicechat/voice-client/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("server_url", cfg.ServerURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice client starting")

	// Debug HTTP server for health and metrics
	debugServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.DebugPort),
		Handler:      observability.NewDebugMux(cfg.MetricsEnabled),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("debug server failed")
		}
	}()

	// Audio pipelines
	recorder := audio.NewFFmpegRecorder(
		cfg.CaptureCommand, cfg.CaptureFormat, cfg.CaptureDevice,
		cfg.CaptureSampleRate, 1)
	capture := audio.NewCapture(recorder, audio.CaptureConfig{
		SampleRate:    cfg.CaptureSampleRate,
		Channels:      1,
		ChunkInterval: time.Duration(cfg.CaptureChunkMs) * time.Millisecond,
	})
	player := audio.NewFFplayPlayer(cfg.PlaybackCommand, cfg.PlaybackSampleRate)
	sequencer := audio.NewSequencer(player)
	ttsClient := tts.NewClient(cfg.TTSURL, tts.Options{
		RetryMaxAttempts:    cfg.TTSRetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.TTSRetryInitialBackoff) * time.Millisecond,
		BreakerMaxFailures:  cfg.TTSBreakerMaxFailures,
		BreakerResetTimeout: time.Duration(cfg.TTSBreakerResetTimeout) * time.Second,
	})
	silence := audio.NewSilenceDetector(capture, audio.SilenceConfig{
		Threshold: cfg.SilenceThreshold,
		Hold:      time.Duration(cfg.SilenceHoldMs) * time.Millisecond,
		Poll:      time.Duration(cfg.SilencePollMs) * time.Millisecond,
	})

	// Transport and session wiring
	manager := transport.NewManager(cfg.ServerURL, resilience.LinearBackoff{
		Base: time.Duration(cfg.ReconnectBaseMs) * time.Millisecond,
		Cap:  time.Duration(cfg.ReconnectCapMs) * time.Millisecond,
	})
	sess := session.New(capture, sequencer, silence, manager, session.Config{
		TranscriptTimeout: time.Duration(cfg.TranscriptTimeoutMs) * time.Millisecond,
	})
	sequencer.SetHooks(audio.SequencerHooks{
		OnDrained:  sess.PlaybackDrained,
		OnBackfill: sess.AttachReplyAudio,
	})
	manager.OnMessage(sess.HandleFrame)
	manager.OnStatus(sess.HandleStatus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Connect(ctx); err != nil {
		// Reconnects are already scheduled; keep the REPL available.
		logger.Warn().Err(err).Msg("initial connect failed, retrying in background")
	}

	go repl(ctx, cancel, sess, ttsClient, player)

	// Wait for interrupt or /quit
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	if sess.State() == session.StateListening {
		_ = sess.StopRecording()
	}
	_ = manager.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = debugServer.Shutdown(shutdownCtx)

	logger.Info().Msg("Client exited")
}

// repl reads commands from stdin. Plain text is sent as a chat message.
func repl(ctx context.Context, cancel context.CancelFunc, sess *session.Session, ttsClient *tts.Client, player audio.Player) {
	fmt.Println("voice client ready")
	fmt.Println("  /start       begin voice recording")
	fmt.Println("  /stop        end voice recording")
	fmt.Println("  /speak <n>   replay message n, synthesizing audio if it has none")
	fmt.Println("  /settings {} update backend settings (raw JSON)")
	fmt.Println("  /status      show session state")
	fmt.Println("  /quit        exit")
	fmt.Println("anything else is sent as a chat message")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			cancel()
			return
		case line == "/start":
			if err := sess.StartRecording(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case line == "/stop":
			if err := sess.StopRecording(); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case line == "/status":
			fmt.Printf("state=%s conn=%s session=%s emotion=%s\n",
				sess.State(), sess.ConnStatus(), sess.SessionID(), sess.CurrentEmotion())
			if errMsg := sess.LastError(); errMsg != "" {
				fmt.Printf("last error: %s\n", errMsg)
			}
		case strings.HasPrefix(line, "/speak "):
			arg := strings.TrimSpace(strings.TrimPrefix(line, "/speak "))
			n, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("error: /speak takes a message number")
				continue
			}
			go func() {
				if err := speak(ctx, sess, ttsClient, player, n); err != nil {
					fmt.Printf("error: %v\n", err)
				}
			}()
		case strings.HasPrefix(line, "/settings "):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "/settings "))
			if !json.Valid([]byte(raw)) {
				fmt.Println("error: settings must be valid JSON")
				continue
			}
			if err := sess.UpdateSettings(json.RawMessage(raw)); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		default:
			if err := sess.SendChatMessage(line); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
	cancel()
}

// speak replays history message n (1-based). Attached audio is played
// as-is; a message without audio is synthesized on demand.
func speak(ctx context.Context, sess *session.Session, ttsClient *tts.Client, player audio.Player, n int) error {
	msgs := sess.History().Messages()
	if n < 1 || n > len(msgs) {
		return fmt.Errorf("no message %d (history has %d)", n, len(msgs))
	}
	msg := msgs[n-1]

	if msg.HasAudio() {
		// Reply audio is stored as delimiter-joined base64 fragments.
		for _, frag := range strings.Split(msg.Audio, audio.FragmentDelimiter) {
			pcm, err := base64.StdEncoding.DecodeString(frag)
			if err != nil {
				return fmt.Errorf("decode stored audio: %w", err)
			}
			if err := player.Play(pcm); err != nil {
				return err
			}
		}
		return nil
	}

	pcm, err := ttsClient.Synthesize(ctx, msg.Text)
	if err != nil {
		return err
	}
	return player.Play(pcm)
}
