package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
jv_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
}

static const espeak_VOICE *
jv_voice_at(const espeak_VOICE **list, int i)
{
	if (!list)
	{ return NULL; }

	return list[i];
}

static int
jv_configure(const char *voice, int rate, int volume, int pitch)
{
	if (voice && espeak_SetVoiceByName(voice) != EE_OK)
	{ return -1; }

	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakVOLUME, volume, 0);
	espeak_SetParameter(espeakPITCH, pitch, 0);

	return 0;
}

static int
jv_say(const char *text)
{
	if (!text)
	{ return -1; }

	espeak_ERROR rc = espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	if (rc != EE_OK)
	{ return (int)rc; }

	return (int)espeak_Synchronize();
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"jarvis/internal/tts"
)

// Pitch is fixed low for a deeper voice; espeak's default is 50.
const Pitch = 30

type Config struct {
	Rate   int     // words per minute
	Volume float64 // 1.0 is normal
}

// Engine is the process-wide espeak-ng handle.
type Engine struct {
	mu sync.Mutex
}

var opened bool

// Open initializes espeak-ng, picks a voice with tts.ApplyVoice and fixes
// rate, volume and pitch for every later utterance.
func Open(cfg Config) (*Engine, error) {
	if opened {
		return nil, errors.New("espeak already open")
	}

	if rc := C.jv_init(); rc < 0 {
		return nil, fmt.Errorf("espeak_Initialize failed: %d", int(rc))
	}

	rate := cfg.Rate
	if rate <= 0 {
		rate = 175
	}
	volume := int(cfg.Volume * 100)
	if volume <= 0 {
		volume = 100
	}

	err := tts.ApplyVoice(Voices(), func(name string) error {
		var cvoice *C.char
		if name != "" {
			slog.Debug("espeak voice", "name", name)
			cvoice = C.CString(name)
			defer C.free(unsafe.Pointer(cvoice))
		}
		if rc := C.jv_configure(cvoice, C.int(rate), C.int(volume), C.int(Pitch)); rc != 0 {
			return fmt.Errorf("espeak configure failed: %d", int(rc))
		}
		return nil
	})
	if err != nil {
		C.espeak_Terminate()
		return nil, err
	}

	opened = true
	return &Engine{}, nil
}

// Voices lists the installed voices.
func Voices() []tts.Voice {
	list := C.espeak_ListVoices(nil)

	var out []tts.Voice
	for i := 0; ; i++ {
		v := C.jv_voice_at(list, C.int(i))
		if v == nil {
			break
		}
		out = append(out, tts.Voice{
			Name: C.GoString(v.name),
			ID:   C.GoString(v.identifier),
		})
	}
	return out
}

func (e *Engine) Say(text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.jv_say(ctext); rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	C.espeak_Terminate()
	opened = false
	return nil
}
