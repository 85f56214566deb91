package session

import (
	"context"
	"sync/atomic"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
)

// buildChain assembles the per-call frame pipeline (spec.md §4.1/§4.6).
//
// When triage/IVR is configured (ClassifierLLM set — SPEC_FULL.md's decision
// to enable it for both dial-in and dial-out, rather than the original's
// dial-out-only gating), the chain branches into a gated main conversation
// branch and a classifier group that runs the triage classifier, the IVR
// navigator, and the mid-IVR human detector side by side against the same
// transcription stream. ParallelPipeline fans every inbound frame out to all
// branches rather than chaining them, so these three MUST be siblings in one
// ParallelPipeline rather than stages of a Chain: the triage classifier
// branch stops forwarding Transcription frames at all once it resolves
// (Detector.ClassifierBranch), which would silently starve anything chained
// after it.
func (cs *CallSession) buildChain() frame.FrameProcessor {
	// sttMute lives inside userSide, not ahead of triage: the classifier
	// group must see the callee's very first utterance (an IVR menu, a
	// live "hello?", a voicemail greeting) before the bot has ever spoken a
	// word, so gating on "has the bot spoken yet" has to apply only to the
	// branch that actually reaches the bot's own conversation loop.
	userSide := frame.Chain(
		cs.sttMute,
		contextEmitStage("user", frame.Transcription),
		cs.transcript.Processor("user"),
	)

	var triagedInput frame.FrameProcessor
	if cs.triageDetector != nil {
		branches := []frame.FrameProcessor{cs.triageDetector.ClassifierBranch()}
		if cs.navigator != nil {
			branches = append(branches, cs.navigator.Processor())
		}
		if cs.humanDetector != nil {
			branches = append(branches, cs.humanDetector.Processor())
		}
		classifierGroup := frame.NewParallelPipeline(branches...)

		triagedInput = frame.NewParallelPipeline(
			frame.Chain(cs.triageDetector.MainGate, userSide, cs.flowMgr.Processor()),
			classifierGroup,
		)
	} else {
		triagedInput = frame.Chain(userSide, cs.flowMgr.Processor())
	}

	var stages []frame.FrameProcessor
	if cs.safetyMonitor != nil {
		stages = append(stages, cs.safetyMonitor.Processor())
	}
	stages = append(stages, cs.transferMuteFilter())
	stages = append(stages, triagedInput)
	if cs.outputValidator != nil {
		stages = append(stages, cs.outputValidator.Processor())
	}

	// TTSGate blocks TTSSpeak (text) frames before they reach the TTS
	// engine; contextEmitStage/transcript capture the assistant side of the
	// conversation from that same text frame before it is converted to
	// audio, so both run ahead of the TTS stage rather than after it.
	if cs.triageDetector != nil {
		stages = append(stages, cs.triageDetector.TTSGate)
	}
	stages = append(stages,
		contextEmitStage("assistant", frame.TTSSpeak),
		cs.assistantSpokenMarker(),
		cs.transcript.Processor("assistant"),
	)
	if cs.TTS != nil {
		stages = append(stages, cs.TTS)
	}

	return frame.Chain(stages...)
}

// contextEmitStage derives an LLMContextUpdate frame from a frame of
// sourceType (Transcription for the caller side, TTSSpeak for the assistant
// side) and forwards both the original frame and the derived one.
//
// spec.md's pipeline diagram names these steps "transcript(role) ->
// context(role)", but safety.Transcript.ProcessFrame only ever captures
// LLMContextUpdate frames (it never reads Transcription/TTSSpeak text
// directly) — so something has to produce that LLMContextUpdate frame from
// the raw text before Transcript's processor can capture anything. This
// stage does that and is wired immediately before each transcript.Processor
// call, which functionally runs context-emission ahead of transcript
// capture despite the names' order in the diagram.
func contextEmitStage(role string, sourceType frame.Type) frame.FrameProcessor {
	return frame.PerFrame(func(_ context.Context, f frame.Frame) ([]frame.Frame, error) {
		if f.Type != sourceType || f.Text == "" {
			return []frame.Frame{f}, nil
		}
		return []frame.Frame{f, frame.NewContextUpdateFrame(role, f.Text)}, nil
	})
}

// assistantSpokenMarker flips sttMute open the first time an assistant
// TTSSpeak frame passes through, so the caller's own audio stays muted until
// the bot's first utterance (mirroring pipecat's STTMuteFilter configured
// with STTMuteStrategy.FIRST_SPEECH in the original pipeline factory).
func (cs *CallSession) assistantSpokenMarker() frame.FrameProcessor {
	return frame.PerFrame(func(_ context.Context, f frame.Frame) ([]frame.Frame, error) {
		if f.Type == frame.TTSSpeak {
			cs.sttMute.MarkSpoken()
		}
		return []frame.Frame{f}, nil
	})
}

// transferMuteFilter drops caller Transcription frames while a cold transfer
// is in flight, so a caller's hold-music-adjacent mutterings can't retrigger
// triage, the flow manager, or another safety-monitor verdict mid-transfer
// (spec.md §3's transfer_in_progress gloss: no new user-facing TTS is issued
// except 'transferring' and the final goodbye while this flag is set). This
// runs ahead of triagedInput, unlike sttMuteFilter, since a transfer can be
// initiated by the safety monitor before triage has ever resolved.
func (cs *CallSession) transferMuteFilter() frame.FrameProcessor {
	return frame.PerFrame(func(_ context.Context, f frame.Frame) ([]frame.Frame, error) {
		if f.Type == frame.Transcription && cs.state.TransferInProgress() {
			return nil, nil
		}
		return []frame.Frame{f}, nil
	})
}

// sttMuteFilter drops caller Transcription frames until the bot has spoken
// once, so the bot never reacts to its own greeting echoing back through a
// live microphone (pipecat's STTMuteStrategy.FIRST_SPEECH, SPEC_FULL.md's
// ambient-stack STT section).
type sttMuteFilter struct {
	spoken atomic.Bool
}

func newSTTMuteFilter() *sttMuteFilter {
	return &sttMuteFilter{}
}

// MarkSpoken permanently unmutes the caller's audio. Idempotent.
func (s *sttMuteFilter) MarkSpoken() {
	s.spoken.Store(true)
}

func (s *sttMuteFilter) Process(ctx context.Context, in <-chan frame.Frame, out chan<- frame.Frame) error {
	return frame.PerFrame(func(_ context.Context, f frame.Frame) ([]frame.Frame, error) {
		if f.Type == frame.Transcription && !s.spoken.Load() {
			return nil, nil
		}
		return []frame.Frame{f}, nil
	}).Process(ctx, in, out)
}
