package session

import (
	"context"
	"fmt"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/ivr"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

// registerHandlers wires the transport lifecycle events and, if triage is
// configured, the triage/IVR resolution events, onto cs.Transport. Grounded
// on the original's setup_transport_handlers/setup_triage_handlers: each
// event handler injects frames via cs.injectFrames rather than returning a
// value, since transport callbacks run outside the pipeline goroutine.
func (cs *CallSession) registerHandlers() {
	if cs.CallType == DialOut {
		cs.registerDialoutHandlers()
	} else {
		cs.registerDialinHandlers()
	}

	if cs.triageDetector != nil {
		cs.registerTriageHandlers()
	}
}

func (cs *CallSession) registerDialinHandlers() {
	cs.Transport.On(transport.EventFirstParticipantJoined, func(ctx context.Context, _ any) {
		cs.Logger.Info(ctx, "caller joined")
		frames, err := cs.flowMgr.Start(ctx)
		if err != nil {
			cs.Logger.Error(ctx, "flow start failed", "error", err)
			return
		}
		cs.injectFrames(frames)
	})

	cs.Transport.On(transport.EventClientDisconnected, func(ctx context.Context, _ any) {
		cs.state.MarkCallEnded()
		cs.finish(ctx, "completed")
	})

	cs.Transport.On(transport.EventDialinError, func(ctx context.Context, data any) {
		cs.Logger.Error(ctx, "dial-in failed", "error", data)
		cs.finish(ctx, "failed")
	})

	// A transfer-completion answer can arrive on a dial-in leg too, once a
	// cold transfer has been initiated mid-call.
	cs.Transport.On(transport.EventDialoutAnswered, func(ctx context.Context, _ any) {
		if cs.state.TransferInProgress() {
			cs.onTransferAnswered(ctx)
		}
	})
}

func (cs *CallSession) registerDialoutHandlers() {
	cs.Transport.On(transport.EventJoined, func(ctx context.Context, _ any) {
		if cs.dialout == nil {
			return
		}
		if _, err := cs.dialout.Attempt(ctx); err != nil {
			cs.Logger.Error(ctx, "dialout attempt failed", "error", err)
		}
	})

	cs.Transport.On(transport.EventDialoutAnswered, func(ctx context.Context, _ any) {
		if cs.state.TransferInProgress() {
			cs.onTransferAnswered(ctx)
			return
		}
		if cs.dialout != nil {
			cs.dialout.MarkConnected()
		}
		frames, err := cs.flowMgr.Start(ctx)
		if err != nil {
			cs.Logger.Error(ctx, "flow start failed", "error", err)
			return
		}
		cs.injectFrames(frames)
	})

	cs.Transport.On(transport.EventDialoutStopped, func(ctx context.Context, _ any) {
		cs.state.MarkCallEnded()
		cs.finish(ctx, "completed")
	})
	cs.Transport.On(transport.EventParticipantLeft, func(ctx context.Context, _ any) {
		cs.state.MarkCallEnded()
		cs.finish(ctx, "completed")
	})

	cs.Transport.On(transport.EventDialoutError, func(ctx context.Context, data any) {
		if cs.state.TransferInProgress() {
			cs.Logger.Error(ctx, "cold transfer attempt failed", "error", data)
			cs.state.Set("transfer_in_progress", false)
			cs.transcript.AppendKind("system", "transfer", "Transfer attempt failed")
			return
		}
		if cs.dialout == nil || !cs.dialout.ShouldRetry() {
			cs.Logger.Error(ctx, "dialout exhausted retries", "error", data)
			cs.finish(ctx, "failed")
			return
		}
		if _, err := cs.dialout.Retry(ctx); err != nil {
			cs.Logger.Error(ctx, "dialout retry failed", "error", err)
			cs.finish(ctx, "failed")
		}
	})
}

// onTransferAnswered records a completed cold transfer and ends the
// session, matching the original's transfer-completion branch of
// on_dialout_answered for both dial-in (supervisor picked up mid-call) and
// dial-out (the outbound leg itself was a transfer) cases.
func (cs *CallSession) onTransferAnswered(ctx context.Context) {
	cs.Logger.Info(ctx, "transfer completed")
	cs.transcript.AppendKind("system", "transfer", "Call transferred to staff")
	cs.state.Set("transfer_in_progress", false)
	cs.state.MarkCallEnded()
	cs.injectFrames([]frame.Frame{frame.NewEndFrame()})
	cs.finish(ctx, "completed")
}

// registerTriageHandlers waits on the Notifiers a resolved Detector fires
// and dispatches to the matching handler (original's setup_triage_handlers).
func (cs *CallSession) registerTriageHandlers() {
	go cs.awaitNotifier(cs.triageDetector.Notifiers.Conversation, cs.onTriageConversation)
	go cs.awaitNotifier(cs.triageDetector.Notifiers.IVR, cs.onTriageIVR)
	go cs.awaitNotifier(cs.triageDetector.Notifiers.Voicemail, cs.onTriageVoicemail)
}

func (cs *CallSession) awaitNotifier(n *frame.Notifier, fn func(ctx context.Context)) {
	select {
	case <-n.Wait():
		fn(cs.ctx)
	case <-cs.done:
	}
}

func (cs *CallSession) onTriageConversation(ctx context.Context) {
	cs.transcript.AppendKind("system", "triage", "Human answered - starting conversation")
}

func (cs *CallSession) onTriageIVR(ctx context.Context) {
	cs.transcript.AppendKind("system", "triage", "IVR system detected - navigating menus")
	goal := cs.Flow.TriageConfig().IVRGoal
	frames := cs.navigator.Activate(ctx, goal, cs.flowMgr.History())
	cs.injectFrames(frames)
	if cs.humanDetector != nil {
		cs.humanDetector.Reset()
	}
}

func (cs *CallSession) onTriageVoicemail(ctx context.Context) {
	cs.transcript.AppendKind("system", "triage", "Voicemail detected")
	node := cs.Flow.TriageConfig().VoicemailNode
	if node == nil {
		cs.injectFrames([]frame.Frame{frame.NewEndFrame()})
		cs.finish(ctx, "voicemail")
		return
	}
	frames, err := cs.flowMgr.GoTo(ctx, node)
	if err != nil {
		cs.Logger.Error(ctx, "voicemail node transition failed", "error", err)
	}
	cs.injectFrames(append(frames, frame.NewEndFrame()))
	cs.finish(ctx, "voicemail")
}

// onIVRKeypress logs one navigator keypress to the transcript. The
// navigator's branch of the classifier ParallelPipeline never passes through
// contextEmitStage/Transcript.Processor (those wrap only the separate
// caller-audio branch), so the navigator calls this directly rather than
// relying on its DTMF echo frame to reach the transcript on its own.
func (cs *CallSession) onIVRKeypress(ctx context.Context, digit string) {
	cs.transcript.AppendKind("assistant", "ivr_action", fmt.Sprintf("Pressed %s", digit))
}

// onIVRStatus handles the navigator's own Completed/Stuck verdict.
func (cs *CallSession) onIVRStatus(ctx context.Context, status ivr.Status) {
	switch status {
	case ivr.Completed:
		cs.onIVRCompleted(ctx, cs.flowMgr.LastHumanText())
	case ivr.Stuck:
		cs.transcript.AppendKind("system", "triage", "IVR navigation stuck")
		cs.injectFrames([]frame.Frame{frame.NewEndFrame()})
		cs.finish(ctx, "failed")
	}
}

// onHumanDetectedDuringIVR mirrors the original's handle_human_during_ivr:
// it deactivates the navigator then converges on the exact same completion
// path the navigator's own Completed verdict uses.
func (cs *CallSession) onHumanDetectedDuringIVR(ctx context.Context) {
	if !cs.navigator.Active() {
		return
	}
	cs.navigator.Deactivate()
	cs.transcript.AppendKind("system", "triage", "Human detected mid-IVR")
	cs.onIVRCompleted(ctx, cs.flowMgr.LastHumanText())
}

// onIVRCompleted opens the gated main branch, restores conversational VAD
// pacing, and hands the call to the flow's conversation node, injecting the
// transcription that ended IVR navigation as a task message (original's
// greeting_node["task_messages"].append(user_msg)). A shallow copy of the
// node is transitioned to rather than mutating the Flow's shared NodeConfig,
// since TriageConfig().ConversationNode may be the same pointer reused
// across calls.
func (cs *CallSession) onIVRCompleted(ctx context.Context, transcription string) {
	cs.transcript.AppendKind("system", "triage", "IVR completed - starting conversation")
	cs.triageDetector.MainGate.Open()
	cs.triageDetector.TTSGate.Open()
	cs.injectFrames([]frame.Frame{frame.NewVADParamsUpdateFrame(0.8)})

	node := cs.Flow.TriageConfig().ConversationNode
	if node == nil {
		return
	}
	target := *node
	if transcription != "" {
		target.TaskMessages = append(append([]string{}, node.TaskMessages...), transcription)
	}

	frames, err := cs.flowMgr.GoTo(ctx, &target)
	if err != nil {
		cs.Logger.Error(ctx, "conversation node transition failed", "error", err)
		return
	}
	cs.injectFrames(frames)
}

// onUnsafeOutput is passed to safety.NewOutputValidator as its onUnsafe
// callback, logging a transcript note for whatever the classifier blocked.
func (cs *CallSession) onUnsafeOutput(ctx context.Context, text string) {
	cs.transcript.AppendKind("assistant", "blocked", text)
}
