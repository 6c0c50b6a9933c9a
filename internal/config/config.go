package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings are resolved once at startup and never reloaded.
type Settings struct {
	WhisperModel string `yaml:"whisper_model"`
	ModelDir     string `yaml:"model_dir"`
	Language     string `yaml:"language"`

	UseVAD           bool    `yaml:"use_vad"`
	VADLevel         int     `yaml:"vad_level"`
	VADChunkMS       int     `yaml:"vad_chunk_ms"`
	VADSilenceMS     int     `yaml:"vad_silence_ms"`
	RecordMaxSeconds float64 `yaml:"record_max_seconds"`

	LLMProvider   string `yaml:"llm_provider"`
	OllamaBaseURL string `yaml:"ollama_base_url"`
	OllamaModel   string `yaml:"ollama_model"`
	OpenAIKey     string `yaml:"-"`
	OpenAIModel   string `yaml:"openai_model"`

	VoiceRate   int     `yaml:"voice_rate"`
	VoiceVolume float64 `yaml:"voice_volume"`
	EdgeVoice   string  `yaml:"edge_voice"`
	TTSCommand  string  `yaml:"tts_command"`
	DuckOthers  bool    `yaml:"duck_others"`

	SocksProxy string `yaml:"socks_proxy"`
	TmpDir     string `yaml:"tmp_dir"`
}

func Defaults() Settings {
	return Settings{
		WhisperModel:     "small",
		ModelDir:         "models",
		Language:         "auto",
		UseVAD:           true,
		VADLevel:         2,
		VADChunkMS:       100,
		VADSilenceMS:     2000,
		RecordMaxSeconds: 10,
		LLMProvider:      "ollama",
		OllamaBaseURL:    "http://localhost:11434",
		OllamaModel:      "llama3.1:8b",
		OpenAIModel:      "gpt-5-nano",
		VoiceRate:        180,
		VoiceVolume:      1.0,
		EdgeVoice:        "en-GB-RyanNeural",
		TTSCommand:       "festival --tts",
	}
}

// Load applies, in order: defaults, the YAML file at yamlPath (if any), the
// .env file at envFile (if it exists) and the process environment.
func Load(envFile, yamlPath string) (*Settings, error) {
	s := Defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", yamlPath, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Settings) applyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.EqualFold(strings.TrimSpace(v), "true")
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("WHISPER_MODEL", &s.WhisperModel)
	str("WHISPER_MODEL_DIR", &s.ModelDir)
	str("WHISPER_LANGUAGE", &s.Language)
	boolean("USE_VAD", &s.UseVAD)
	integer("VAD_LEVEL", &s.VADLevel)
	integer("VAD_CHUNK_MS", &s.VADChunkMS)
	integer("VAD_SILENCE_MS", &s.VADSilenceMS)
	float("RECORD_MAX_SECONDS", &s.RecordMaxSeconds)
	str("LLM_PROVIDER", &s.LLMProvider)
	str("OLLAMA_BASE_URL", &s.OllamaBaseURL)
	str("OLLAMA_MODEL", &s.OllamaModel)
	str("OPENAI_API_KEY", &s.OpenAIKey)
	str("OPENAI_MODEL", &s.OpenAIModel)
	integer("VOICE_RATE", &s.VoiceRate)
	float("VOICE_VOLUME", &s.VoiceVolume)
	str("EDGE_VOICE", &s.EdgeVoice)
	str("TTS_COMMAND", &s.TTSCommand)
	boolean("DUCK_OTHERS", &s.DuckOthers)
	str("SOCKS_PROXY", &s.SocksProxy)
	str("JARVIS_TMPDIR", &s.TmpDir)

	return errors.Join(errs...)
}

func (s *Settings) Validate() error {
	if s.VADChunkMS <= 0 {
		return fmt.Errorf("vad chunk must be positive, got %dms", s.VADChunkMS)
	}
	if s.VADSilenceMS < s.VADChunkMS {
		return fmt.Errorf("vad silence tail (%dms) shorter than one chunk (%dms)", s.VADSilenceMS, s.VADChunkMS)
	}
	if s.RecordMaxSeconds <= 0 {
		return fmt.Errorf("record max seconds must be positive, got %v", s.RecordMaxSeconds)
	}
	if s.VoiceVolume < 0 || s.VoiceVolume > 2 {
		return fmt.Errorf("voice volume must be within 0..2, got %v", s.VoiceVolume)
	}
	switch s.LLMProvider {
	case "ollama":
	case "openai":
		if s.OpenAIKey == "" {
			return errors.New("LLM_PROVIDER=openai needs OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown llm provider %q (ollama, openai)", s.LLMProvider)
	}
	return nil
}

func (s *Settings) VADChunk() time.Duration {
	return time.Duration(s.VADChunkMS) * time.Millisecond
}

func (s *Settings) VADSilence() time.Duration {
	return time.Duration(s.VADSilenceMS) * time.Millisecond
}

func (s *Settings) RecordMax() time.Duration {
	return time.Duration(s.RecordMaxSeconds * float64(time.Second))
}
