// Command liveaudio runs the live-stream ingestion and transcription
// service: a single PipelineSupervisor behind the §6 HTTP/WS/SSE control
// surface, with recognizer/room-resolver/VAD selection driven by
// environment variables in the same provider-switch shape as the
// teacher's agent entrypoint.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wike-chi/live-audio-pipeline/pkg/api"
	"github.com/wike-chi/live-audio-pipeline/pkg/media"
	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
	"github.com/wike-chi/live-audio-pipeline/pkg/recognizer"
	"github.com/wike-chi/live-audio-pipeline/pkg/room"
	"github.com/wike-chi/live-audio-pipeline/pkg/vad"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	logger := pipeline.NewLogrusLogger()

	rec, err := buildRecognizer()
	if err != nil {
		log.Fatalf("liveaudio: %v", err)
	}

	resolver, err := buildResolver()
	if err != nil {
		log.Fatalf("liveaudio: %v", err)
	}

	vadFactory := buildVADFactory(logger)

	ffmpegBin := os.Getenv("FFMPEG_PATH")
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	puller, err := media.NewFFmpegPuller(ffmpegBin, logger)
	if err != nil {
		log.Fatalf("liveaudio: media puller: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Getenv("LIVEAUDIO_METRICS_DISABLED") == "" {
		shutdown, err := pipeline.InitMetricsProvider(ctx, pipeline.MetricsProviderConfig{
			ServiceName:    "live-audio-pipeline",
			ServiceVersion: os.Getenv("LIVEAUDIO_VERSION"),
		})
		if err != nil {
			log.Fatalf("liveaudio: metrics provider: %v", err)
		}
		defer func() {
			sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sdCtx)
		}()
	}

	sup := pipeline.NewPipelineSupervisor(pipeline.Dependencies{
		RoomResolver: resolver,
		MediaPuller:  puller,
		VADFactory:   vadFactory,
		Recognizer:   rec,
		ChatWSURL:    chatWSURLFromRoomInfo,
		Logger:       logger,
		Metrics:      pipeline.DefaultMetrics(),
	})

	srv := api.NewServer(sup, logger)
	mux := http.NewServeMux()
	srv.Routes(mux)

	addr := os.Getenv("LIVEAUDIO_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		fmt.Printf("liveaudio: listening on %s (stt=%s)\n", addr, os.Getenv("STT_PROVIDER"))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("liveaudio: http server: %v", err)
		}
	}()

	<-ctx.Done()
	fmt.Println("liveaudio: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sup.Stop(shutdownCtx); err != nil {
		log.Printf("liveaudio: stop during shutdown: %v", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("liveaudio: http shutdown: %v", err)
	}
}

// chatWSURLFromRoomInfo derives the Douyin chat WS endpoint from a
// resolved RoomInfo. Operators that need a different chat transport can
// swap this for their own func(info pipeline.RoomInfo) string before
// building Dependencies.
func chatWSURLFromRoomInfo(info pipeline.RoomInfo) string {
	return fmt.Sprintf("wss://webcast5-ws-web-lf.douyin.com/webcast/im/push/v2/?room_id=%s", info.RoomID)
}

// buildRecognizer selects a Recognizer from STT_PROVIDER, following the
// teacher's provider-switch-with-required-key-check idiom.
func buildRecognizer() (pipeline.Recognizer, error) {
	provider := os.Getenv("STT_PROVIDER")
	if provider == "" {
		provider = "groq"
	}

	switch provider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for openai STT")
		}
		model := os.Getenv("OPENAI_STT_MODEL")
		if model == "" {
			model = "whisper-1"
		}
		return recognizer.NewOpenAIRecognizer(key, model), nil

	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		return recognizer.NewDeepgramRecognizer(key), nil

	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		return recognizer.NewAssemblyAIRecognizer(key), nil

	case "volc":
		appID := os.Getenv("VOLC_APP_ID")
		accessKey := os.Getenv("VOLC_ACCESS_KEY")
		secretKey := os.Getenv("VOLC_SECRET_KEY")
		if appID == "" || accessKey == "" || secretKey == "" {
			return nil, fmt.Errorf("VOLC_APP_ID, VOLC_ACCESS_KEY and VOLC_SECRET_KEY must be set for volc STT")
		}
		return recognizer.NewVolcRecognizer(appID, accessKey, secretKey, os.Getenv("VOLC_TOKEN")), nil

	case "whispercpp":
		modelPath := os.Getenv("WHISPERCPP_MODEL_PATH")
		if modelPath == "" {
			return nil, fmt.Errorf("WHISPERCPP_MODEL_PATH must be set for whispercpp STT")
		}
		lang := os.Getenv("WHISPERCPP_LANGUAGE")
		if lang == "" {
			lang = "en"
		}
		return recognizer.NewWhisperCppRecognizer(modelPath, lang)

	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GROQ_API_KEY must be set for groq STT")
		}
		model := os.Getenv("GROQ_STT_MODEL")
		if model == "" {
			model = "whisper-large-v3-turbo"
		}
		return recognizer.NewGroqRecognizer(key, model), nil
	}
}

// buildResolver selects a RoomResolver from ROOM_RESOLVER. "static" is for
// local testing against a fixed media URL; "volc" hits a configurable
// Douyin-style room-info endpoint.
func buildResolver() (pipeline.RoomResolver, error) {
	kind := os.Getenv("ROOM_RESOLVER")
	if kind == "" {
		kind = "volc"
	}

	switch kind {
	case "static":
		mediaURL := os.Getenv("STATIC_MEDIA_URL")
		if mediaURL == "" {
			return nil, fmt.Errorf("STATIC_MEDIA_URL must be set for the static room resolver")
		}
		return room.NewStaticResolver(pipeline.RoomInfo{
			RoomID:     os.Getenv("STATIC_ROOM_ID"),
			MediaURL:   mediaURL,
			AnchorName: os.Getenv("STATIC_ANCHOR_NAME"),
		}), nil

	case "volc":
		fallthrough
	default:
		endpoint := os.Getenv("ROOM_INFO_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("ROOM_INFO_ENDPOINT must be set for the volc room resolver")
		}
		return room.NewVolcResolver(endpoint), nil
	}
}

// buildVADFactory selects the VAD implementation from VAD_PROVIDER. "rms"
// is the default RMS+hangover heuristic; "silero" uses the neural gate,
// falling back to its deterministic stub per session if onnxruntime is
// unavailable.
func buildVADFactory(logger pipeline.Logger) pipeline.VADFactory {
	switch os.Getenv("VAD_PROVIDER") {
	case "silero":
		return vad.SileroGateFactory(logger)
	case "rms":
		fallthrough
	default:
		return vad.RMSGateFactory
	}
}
