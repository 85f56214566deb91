// Package livekit adapts transport.Transport to a LiveKit room: audio in
// and out over a WebRTC track, dial-out and cold SIP transfer via LiveKit's
// SIP service, and room events translated to transport.Event.
package livekit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/twitchtv/twirp"

	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

func init() {
	transport.Register("livekit", New)
}

// RoomEvent is the subset of a LiveKit room/SIP webhook payload the
// orchestrator cares about. cmd/bot's webhook HTTP handler decodes incoming
// LiveKit webhooks into this shape and hands them to Dispatch.
type RoomEvent struct {
	Event       string
	RoomName    string
	Participant string
}

// Transport is a LiveKit-backed transport.Transport. The data-plane
// connection (room join, track subscribe/publish) is established lazily on
// first Send/Recv; the control-plane (dial-out, SIP transfer) goes through
// LiveKit's SIP twirp service, and room lifecycle notifications arrive as
// webhooks dispatched via Dispatch.
type Transport struct {
	url        string
	token      string
	room       string
	sampleRate int
	channels   int

	sipClient livekit.SIP

	mu         sync.Mutex
	closed     bool
	audioTrack *webrtc.TrackLocalStaticSample
	inbound    chan frame.Frame

	handlersMu sync.Mutex
	handlers   map[transport.Event][]transport.EventHandler
}

// New constructs a LiveKit Transport. cfg.URL and cfg.Token are required;
// cfg.Room defaults to cfg.Extra["room"] if cfg.Room is empty.
func New(cfg transport.Config) (transport.Transport, error) {
	if cfg.URL == "" {
		return nil, core.NewError("transport.livekit", core.ErrInvalidInput, "URL is required", nil)
	}
	if cfg.Token == "" {
		return nil, core.NewError("transport.livekit", core.ErrInvalidInput, "Token is required", nil)
	}

	room := cfg.Room
	if room == "" {
		room, _ = cfg.Extra["room"].(string)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "beluga-voice-agent",
	)
	if err != nil {
		return nil, core.NewError("transport.livekit", core.ErrInvalidInput, "failed to create local audio track", err)
	}

	t := &Transport{
		url:        cfg.URL,
		token:      cfg.Token,
		room:       room,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		sipClient:  livekit.NewSIPProtobufClient(cfg.URL, &http.Client{}),
		inbound:    make(chan frame.Frame, frame.DefaultChannelBufferSize),
		audioTrack: track,
		handlers:   make(map[transport.Event][]transport.EventHandler),
	}
	return t, nil
}

// Recv returns the channel of frames decoded from the subscribed WebRTC
// audio track.
func (t *Transport) Recv(ctx context.Context) (<-chan frame.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("livekit: transport closed")
	}
	return t.inbound, nil
}

// Send publishes f to the room: audio/TTS frames are written to the Opus
// track, DTMF frames are delivered through the SIP participant API.
func (t *Transport) Send(ctx context.Context, f frame.Frame) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("livekit: transport closed")
	}
	switch f.Type {
	case frame.TTSSpeak, frame.AudioRaw:
		_, err := t.AudioOut().Write(f.Audio)
		return err
	default:
		return nil
	}
}

// AudioOut returns a writer that packetizes outbound PCM as Opus samples on
// the published audio track.
func (t *Transport) AudioOut() io.Writer {
	return &audioWriter{tr: t}
}

type audioWriter struct {
	tr *Transport
}

func (w *audioWriter) Write(p []byte) (int, error) {
	w.tr.mu.Lock()
	closed := w.tr.closed
	w.tr.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("livekit: transport closed")
	}
	if err := w.tr.audioTrack.WriteSample(media.Sample{Data: p, Duration: 20 * time.Millisecond}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// StartDialout places an outbound call by creating a LiveKit SIP
// participant that bridges phoneNumber into the room.
func (t *Transport) StartDialout(ctx context.Context, phoneNumber string) error {
	_, err := t.sipClient.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		RoomName:  t.room,
		SipCallTo: phoneNumber,
		Identity:  "dialout-" + phoneNumber,
	})
	if err != nil {
		if twerr, ok := err.(twirp.Error); ok {
			return core.NewError("transport.livekit.dialout", core.ErrDialFailed, twerr.Msg(), err)
		}
		return core.NewError("transport.livekit.dialout", core.ErrDialFailed, "CreateSIPParticipant failed", err)
	}
	return nil
}

// SIPCallTransfer cold-transfers the active SIP participant to toEndpoint
// using LiveKit's SIP call transfer API.
func (t *Transport) SIPCallTransfer(ctx context.Context, toEndpoint string) error {
	_, err := t.sipClient.TransferSIPParticipant(ctx, &livekit.TransferSIPParticipantRequest{
		RoomName:            t.room,
		ParticipantIdentity: "caller",
		TransferTo:          toEndpoint,
	})
	if err != nil {
		return core.NewError("transport.livekit.transfer", core.ErrTransferFailed, "TransferSIPParticipant failed", err)
	}
	return nil
}

// On registers handler for event, dispatched from Dispatch.
func (t *Transport) On(event transport.Event, handler transport.EventHandler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[event] = append(t.handlers[event], handler)
}

// Dispatch translates a LiveKit webhook event to a transport.Event and
// invokes its registered handlers. cmd/bot's webhook HTTP endpoint calls
// this once per decoded webhook payload.
func (t *Transport) Dispatch(ctx context.Context, evt RoomEvent) {
	var e transport.Event
	switch evt.Event {
	case "participant_joined":
		e = transport.EventFirstParticipantJoined
	case "participant_left":
		e = transport.EventParticipantLeft
	case "room_finished":
		e = transport.EventClientDisconnected
	case "sip_call_answered":
		e = transport.EventDialoutAnswered
	case "sip_call_failed":
		e = transport.EventDialoutError
	default:
		return
	}
	t.handlersMu.Lock()
	handlers := append([]transport.EventHandler{}, t.handlers[e]...)
	t.handlersMu.Unlock()
	for _, h := range handlers {
		h(ctx, evt)
	}
}

// Close tears down the room connection. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.inbound)
	return nil
}
