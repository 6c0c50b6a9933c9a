package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wujunwei928/edge-tts-go/edge_tts"
)

const DefaultEdgeVoice = "en-GB-RyanNeural"

// Player plays an MP3 file to the end.
type Player interface {
	Init() error
	PlayMP3(ctx context.Context, path string) error
}

// EdgeBackend synthesizes with Microsoft Edge's online neural voices and
// plays the result locally.
type EdgeBackend struct {
	voice  string
	player Player
	tmpDir string

	// Proxy is a SOCKS5 address or proxy URL for the synthesis websocket.
	Proxy string

	// Synthesize returns MP3 bytes for text.
	Synthesize func(voice, text string) ([]byte, error)
}

func NewEdgeBackend(voice string, player Player, tmpDir string) *EdgeBackend {
	if voice == "" {
		voice = DefaultEdgeVoice
	}
	e := &EdgeBackend{
		voice:  voice,
		player: player,
		tmpDir: tmpDir,
	}
	e.Synthesize = e.synthesize
	return e
}

func (e *EdgeBackend) Name() string { return "edge" }

func (e *EdgeBackend) Probe(context.Context) error {
	return e.player.Init()
}

func (e *EdgeBackend) Say(ctx context.Context, text string) error {
	type synthResult struct {
		data []byte
		err  error
	}

	ch := make(chan synthResult, 1)
	go func() {
		data, err := e.Synthesize(e.voice, text)
		ch <- synthResult{data: data, err: err}
	}()

	var res synthResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("edge synthesis: %w", res.err)
	}
	if len(res.data) == 0 {
		return errors.New("edge synthesis returned no audio")
	}

	f, err := os.CreateTemp(e.tmpDir, "jarvis-tts-*.mp3")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(res.data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return e.player.PlayMP3(ctx, path)
}

func (e *EdgeBackend) synthesize(voice, text string) ([]byte, error) {
	communicate, err := edge_tts.NewCommunicate(text, edgeOptions(voice, e.Proxy)...)
	if err != nil {
		return nil, err
	}
	return communicate.Stream()
}

func edgeOptions(voice, proxy string) []edge_tts.CommunicateOption {
	opts := []edge_tts.CommunicateOption{edge_tts.SetVoice(voice)}
	if u := edgeProxyURL(proxy); u != "" {
		opts = append(opts, edge_tts.SetProxy(u))
	}
	return opts
}

// edgeProxyURL turns a bare host:port into a socks5 URL.
func edgeProxyURL(proxy string) string {
	if proxy == "" || strings.Contains(proxy, "://") {
		return proxy
	}
	return "socks5://" + proxy
}
