// Package frame implements the call-orchestrator's pipeline primitives: the
// Frame tagged union, the FrameProcessor contract, and composition helpers
// (Chain, ParallelPipeline) that processors are built from.
package frame

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the variant carried by a Frame.
type Type string

const (
	AudioRaw          Type = "audio_raw"
	Transcription     Type = "transcription"
	LLMContextUpdate  Type = "llm_context_update"
	LLMText           Type = "llm_text"
	LLMResponseStart  Type = "llm_response_start"
	LLMResponseEnd    Type = "llm_response_end"
	ToolCall          Type = "tool_call"
	ToolResult        Type = "tool_result"
	TTSSpeak          Type = "tts_speak"
	DTMFUrgent        Type = "dtmf_urgent"
	VADParamsUpdate   Type = "vad_params_update"
	StartInterruption Type = "start_interruption"
	EndTask           Type = "end_task"
	End               Type = "end"
)

// Direction indicates which way a Frame travels through the pipeline.
type Direction int

const (
	// Downstream is the default direction, toward transport output.
	Downstream Direction = iota
	// Upstream travels toward transport input; used for cancellation,
	// interruption, and context updates.
	Upstream
)

func (d Direction) String() string {
	if d == Upstream {
		return "upstream"
	}
	return "downstream"
}

// Metadata carries the optional out-of-band fields a processor may attach to
// a Frame: presentation timestamp, sample rate, and a TTS-skip marker used by
// IVR DTMF echo frames (spec.md §4.4).
type Metadata struct {
	PTS        time.Duration
	SampleRate int
	SkipTTS    bool
	Role       string // for LLMContextUpdate / transcript-bound frames
}

// Frame is the unit of data moving along the pipeline. Each Frame has an
// immutable identity, a Type, a Direction, a payload, and optional Metadata.
type Frame struct {
	ID        string
	Type      Type
	Dir       Direction
	Text      string
	Audio     []byte
	Metadata  Metadata
	CreatedAt time.Time

	// Signal carries structured payloads for frames whose content isn't
	// plain text or audio (tool calls/results, VAD params, DTMF digit).
	Signal any
}

func newFrame(t Type, dir Direction) Frame {
	return Frame{ID: uuid.NewString(), Type: t, Dir: dir, CreatedAt: time.Now()}
}

// NewAudioFrame builds a downstream AudioRaw frame.
func NewAudioFrame(data []byte, sampleRate int) Frame {
	f := newFrame(AudioRaw, Downstream)
	f.Audio = data
	f.Metadata.SampleRate = sampleRate
	return f
}

// NewTranscriptionFrame builds a downstream Transcription frame.
func NewTranscriptionFrame(text, role string) Frame {
	f := newFrame(Transcription, Downstream)
	f.Text = text
	f.Metadata.Role = role
	return f
}

// NewTextFrame builds a downstream LLMText frame. It does not set
// Metadata.SkipTTS; callers that echo DTMF transcripts set it themselves.
func NewTextFrame(text string) Frame {
	f := newFrame(LLMText, Downstream)
	f.Text = text
	return f
}

// NewTTSSpeakFrame builds a downstream TTSSpeak frame carrying text to be
// synthesized directly, bypassing the LLM (pre_actions, voicemail message,
// safety/fallback utterances).
func NewTTSSpeakFrame(text string) Frame {
	f := newFrame(TTSSpeak, Downstream)
	f.Text = text
	return f
}

// NewDTMFFrame builds a downstream DTMFUrgent frame carrying a single
// keypad entry.
func NewDTMFFrame(digit string) Frame {
	f := newFrame(DTMFUrgent, Downstream)
	f.Signal = digit
	return f
}

// NewContextUpdateFrame builds an upstream LLMContextUpdate frame carrying
// role-tagged message text (system prompt injection, history replay).
func NewContextUpdateFrame(role, text string) Frame {
	f := newFrame(LLMContextUpdate, Upstream)
	f.Text = text
	f.Metadata.Role = role
	return f
}

// NewVADParamsUpdateFrame builds an upstream VADParamsUpdate frame carrying
// an updated end-of-turn silence threshold.
func NewVADParamsUpdateFrame(stopSecs float64) Frame {
	f := newFrame(VADParamsUpdate, Upstream)
	f.Signal = stopSecs
	return f
}

// NewStartInterruptionFrame builds an upstream StartInterruption frame.
func NewStartInterruptionFrame() Frame {
	return newFrame(StartInterruption, Upstream)
}

// NewEndFrame builds a downstream End frame that terminates the pipeline.
func NewEndFrame() Frame {
	return newFrame(End, Downstream)
}

// NewEndTaskFrame builds a downstream EndTask frame.
func NewEndTaskFrame() Frame {
	return newFrame(EndTask, Downstream)
}

// NewToolCallFrame builds a downstream ToolCall frame.
func NewToolCallFrame(name string, args map[string]any) Frame {
	f := newFrame(ToolCall, Downstream)
	f.Signal = struct {
		Name string
		Args map[string]any
	}{name, args}
	return f
}

// IsControl reports whether the frame type is a pipeline control signal
// rather than user-facing content (used by gates to decide whether a frame
// must pass through regardless of the current gate state).
func (f Frame) IsControl() bool {
	switch f.Type {
	case StartInterruption, EndTask, End, VADParamsUpdate, LLMContextUpdate:
		return true
	default:
		return false
	}
}
