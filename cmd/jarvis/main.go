package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "log/slog"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"jarvis/internal/audio"
	"jarvis/internal/config"
	"jarvis/internal/ipc"
	"jarvis/internal/llm"
	"jarvis/internal/metrics"
	"jarvis/internal/playback"
	"jarvis/internal/proxy"
	"jarvis/internal/stt"
	"jarvis/internal/tts"
	"jarvis/internal/tts/espeak"
	pkgstt "jarvis/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "Optional YAML settings file")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	textMode := cli.Bool("text", false, "Type to the assistant (default)")
	audioMode := cli.Bool("audio", false, "Talk to the assistant through the microphone")
	daemon := cli.Bool("daemon", false, "Serve jarvis-ctl over a unix socket")
	socket := cli.String("socket", ipc.SocketPath, "Control socket path for --daemon")
	file := cli.StringP("file", "f", "", "Transcribe an audio file and exit")
	metricsAddr := cli.String("metrics", "", "Serve prometheus metrics on this address")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, runOptions{
		envFile:     *envFile,
		cfgFile:     *cfgFile,
		audio:       *audioMode && !*textMode,
		daemon:      *daemon,
		socket:      *socket,
		file:        *file,
		metricsAddr: *metricsAddr,
	}))
}

type runOptions struct {
	envFile, cfgFile string
	audio, daemon    bool
	socket           string
	file             string
	metricsAddr      string
}

func run(ctx context.Context, opt runOptions) int {
	cfg, err := config.Load(opt.envFile, opt.cfgFile)
	if err != nil {
		log.Error("Failed to load settings", "err", err)
		return 1
	}

	m := metrics.New()
	if opt.metricsAddr != "" {
		srv := &http.Server{Addr: opt.metricsAddr, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
	}

	transcriber := stt.NewAdapter(stt.WhisperLoader(cfg.WhisperModel, cfg.ModelDir, pkgstt.Options{
		Language: cfg.Language,
	}), cfg.TmpDir, m)
	defer transcriber.Close()

	if opt.file != "" {
		text, err := transcriber.TranscribeFile(ctx, opt.file)
		if err != nil {
			return reportError("Transcription failed", err)
		}
		fmt.Println(text)
		return 0
	}

	httpClient, err := proxy.NewHTTPClient(cfg.SocksProxy, 0)
	if err != nil {
		log.Error("Failed to set up proxy", "proxy", cfg.SocksProxy, "err", err)
		return 1
	}

	completer, err := newCompleter(cfg, httpClient)
	if err != nil {
		log.Error("Failed to set up language model", "provider", cfg.LLMProvider, "err", err)
		return 1
	}

	player := playback.NewPlayer()
	voice, closeVoice := newCascade(cfg, player, m)
	defer closeVoice()

	a := &assistant{
		llm:       completer,
		voice:     voice,
		maxRecord: cfg.RecordMax(),
		out:       os.Stdout,
	}

	if opt.audio || opt.daemon {
		src := audio.NewPortAudio(audio.DefaultSampleRate)
		if err := src.Init(); err != nil {
			log.Error("Failed to init audio", "err", err)
			return 1
		}
		defer src.Close()

		a.rec = audio.NewRecorder(src, audio.Options{
			SampleRate:  audio.DefaultSampleRate,
			UseVAD:      cfg.UseVAD,
			VADLevel:    cfg.VADLevel,
			Chunk:       cfg.VADChunk(),
			SilenceTail: cfg.VADSilence(),
		}, m)
		a.stt = transcriber
	}

	log.Debug("Boot up - successful", "provider", cfg.LLMProvider, "model", cfg.WhisperModel)

	switch {
	case opt.daemon:
		a.cue = player.Cue
		return runDaemon(ctx, a, voice, opt.socket)
	case opt.audio:
		return runAudio(ctx, a)
	default:
		return runText(ctx, a)
	}
}

func newCompleter(cfg *config.Settings, hc *http.Client) (llm.Completer, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llm.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, hc), nil
	default:
		return llm.NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel, hc)
	}
}

// newCascade orders the voices from most to least natural: edge, then an
// external command, then the local espeak engine.
func newCascade(cfg *config.Settings, player *playback.Player, m *metrics.Metrics) (*tts.Cascade, func()) {
	edge := tts.NewEdgeBackend(cfg.EdgeVoice, player, cfg.TmpDir)
	edge.Proxy = cfg.SocksProxy
	backends := []tts.Backend{edge}

	if cmd, err := tts.NewCommandBackend(cfg.TTSCommand); err != nil {
		log.Warn("Ignoring speech command", "command", cfg.TTSCommand, "err", err)
	} else {
		backends = append(backends, cmd)
	}

	engine := tts.NewEngineBackend(func() (tts.Engine, error) {
		e, err := espeak.Open(espeak.Config{Rate: cfg.VoiceRate, Volume: cfg.VoiceVolume})
		if err != nil {
			return nil, err
		}
		return e, nil
	})
	backends = append(backends, engine)

	opts := []tts.Option{tts.WithMetrics(m)}
	if cfg.DuckOthers {
		opts = append(opts, tts.WithAttenuator(audio.NewDucker([]string{"jarvis"}, 0.3, 30, 300*time.Millisecond)))
	}

	return tts.NewCascade(backends, opts...), func() { _ = engine.Close() }
}

func runText(ctx context.Context, a *assistant) int {
	fmt.Println("Jarvis (text mode). Type your message. Ctrl+C or empty line to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Print("You: ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return 0
		case line, ok := <-lines:
			line = strings.TrimSpace(line)
			if !ok || line == "" {
				return 0
			}
			a.Reply(ctx, line)
		}
	}
}

func runAudio(ctx context.Context, a *assistant) int {
	fmt.Println("Jarvis (audio mode). Press Enter to start recording; it stops when you go quiet.")
	fmt.Println("Ctrl+C to exit.")

	enter := make(chan struct{})
	go func() {
		defer close(enter)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			enter <- struct{}{}
		}
	}()

	for {
		fmt.Print("Press Enter to start recording...")
		select {
		case <-ctx.Done():
			fmt.Println("\nGoodbye!")
			return 0
		case _, ok := <-enter:
			if !ok {
				return 0
			}
		}

		fmt.Println("Recording...")
		_, _, err := a.Listen(ctx)
		switch {
		case err == nil:
		case errors.Is(err, errNoAudio):
			fmt.Println("No audio recorded. Try again.")
		case errors.Is(err, errNoSpeech):
			fmt.Println("No speech detected. Try again.")
		case ctx.Err() != nil:
			fmt.Println("\nGoodbye!")
			return 0
		default:
			var cerr *stt.ConfigError
			if errors.As(err, &cerr) {
				return reportError("Speech recognition unavailable", err)
			}
			fmt.Printf("Error: %v\nContinuing...\n", err)
		}
	}
}

func runDaemon(ctx context.Context, a *assistant, voice speaker, socket string) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := ipc.StartServer(ctx, socket, func(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
		switch msg.Cmd {
		case ipc.CmdListen:
			transcript, reply, err := a.Listen(ctx)
			if err != nil {
				log.Error("Listen failed", "err", err)
				return ipc.Reply{Error: err.Error()}
			}
			return ipc.Reply{OK: true, Text: transcript + "\n" + reply}
		case ipc.CmdSay:
			res := voice.Speak(ctx, msg.Text)
			return ipc.Reply{OK: res.Played(), Text: res.Backend()}
		case ipc.CmdQuit:
			cancel()
			return ipc.Reply{OK: true}
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return ipc.Reply{Error: "unknown command " + msg.Cmd}
		}
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		return 1
	}
	log.Info("Listening for commands", "socket", srv.Path())

	<-ctx.Done()
	if err := srv.Close(); err != nil {
		log.Warn("Closing control socket", "err", err)
	}
	return 0
}

func reportError(msg string, err error) int {
	var cerr *stt.ConfigError
	if errors.As(err, &cerr) {
		fmt.Fprintf(os.Stderr, "%s: %s is missing.\nFix: %s\n", msg, cerr.Missing, cerr.Fix)
		return 2
	}
	log.Error(msg, "err", err)
	return 1
}
