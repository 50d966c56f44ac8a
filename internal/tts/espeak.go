package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static short *es_buf = NULL;
static size_t es_len = 0;
static size_t es_cap = 0;

static int
es_collect(short *wav, int numsamples, espeak_EVENT *events)
{
	(void)events;
	if (wav == NULL || numsamples <= 0)
	{ return 0; }

	if (es_len + (size_t)numsamples > es_cap)
	{
		size_t cap = es_cap ? es_cap * 2 : 16384;
		while (cap < es_len + (size_t)numsamples)
		{ cap *= 2; }
		short *p = realloc(es_buf, cap * sizeof(short));
		if (!p)
		{ return 1; }
		es_buf = p;
		es_cap = cap;
	}
	memcpy(es_buf + es_len, wav, (size_t)numsamples * sizeof(short));
	es_len += (size_t)numsamples;
	return 0;
}

int
espeak_render(const char *text, const char *lang, short **out, size_t *n, int *rate)
{
	if (!text)
	{ return -1; }

	int sr = espeak_Initialize(AUDIO_OUTPUT_SYNCHRONOUS, 500, NULL, 0);
	if (sr < 0)
	{ return -2; }

	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = lang;
	espeak_SetVoiceByProperties(&specs);
	espeak_SetSynthCallback(es_collect);

	es_buf = NULL;
	es_len = 0;
	es_cap = 0;

	espeak_Synth(text, strlen(text) + 1, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	*out = es_buf;
	*n = es_len;
	*rate = sr;
	return 0;
}
*/
import "C"

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"
)

// Espeak is the offline last-resort engine. It renders through espeak-ng to
// a memory buffer and wraps the PCM in a WAV container for the player.
type Espeak struct {
	lang string
	mu   sync.Mutex // espeak-ng is not reentrant
}

func NewEspeak(lang string) *Espeak {
	if lang == "" {
		lang = "en"
	}
	return &Espeak{lang: lang}
}

func (e *Espeak) Name() string { return "espeak" }

func (e *Espeak) Synthesize(ctx context.Context, text string) (Clip, error) {
	if text == "" {
		return Clip{}, fmt.Errorf("empty text")
	}
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(e.lang)
	defer C.free(unsafe.Pointer(clang))

	var (
		out  *C.short
		n    C.size_t
		rate C.int
	)
	rc := C.espeak_render(ctext, clang, &out, &n, &rate)
	if rc != 0 {
		return Clip{}, fmt.Errorf("espeak_render failed: %d", int(rc))
	}
	defer C.free(unsafe.Pointer(out))

	pcm := make([]int16, int(n))
	src := unsafe.Slice((*int16)(unsafe.Pointer(out)), int(n))
	copy(pcm, src)

	return Clip{Audio: wrapWAV(pcm, int(rate)), Format: "wav"}, nil
}

// wrapWAV prepends a canonical 44-byte header for 16-bit mono PCM.
func wrapWAV(pcm []int16, sampleRate int) []byte {
	dataLen := len(pcm) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, pcm)

	return buf.Bytes()
}
