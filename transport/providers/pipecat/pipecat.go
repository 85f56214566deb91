// Package pipecat implements a websocket media-stream bridge: the local/dev
// transport provider, and the shared audio-in/audio-out codec that the
// twilio provider layers its REST dial-out/transfer calls on top of (Twilio's
// <Stream> verb delivers call audio over the same kind of websocket).
package pipecat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

func init() {
	transport.Register("pipecat", New)
}

// mediaMessage is the JSON envelope exchanged over the websocket: an "audio"
// event carries base64 PCM, a "dtmf" event carries a single keypad digit.
type mediaMessage struct {
	Event string `json:"event"`
	Audio string `json:"audio,omitempty"`
	Digit string `json:"digit,omitempty"`
}

// Transport is a websocket-backed transport.Transport, used standalone for
// local/dev calls and embedded by transport/providers/twilio for its Twilio
// Media Streams audio leg.
type Transport struct {
	conn       *websocket.Conn
	sampleRate int
	channels   int

	mu      sync.Mutex
	closed  bool
	inbound chan frame.Frame

	handlersMu sync.Mutex
	handlers   map[transport.Event][]transport.EventHandler

	readOnce sync.Once
}

// New dials cfg.URL as a websocket media stream.
func New(cfg transport.Config) (transport.Transport, error) {
	if cfg.URL == "" {
		return nil, core.NewError("transport.pipecat", core.ErrInvalidInput, "URL is required", nil)
	}
	conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, core.NewError("transport.pipecat", core.ErrDialFailed, "websocket dial failed", err)
	}
	t := &Transport{
		conn:       conn,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		inbound:    make(chan frame.Frame, frame.DefaultChannelBufferSize),
		handlers:   make(map[transport.Event][]transport.EventHandler),
	}
	return t, nil
}

// NewFromConn wraps an already-established server-side websocket connection
// (e.g. accepted by cmd/bot's media-stream HTTP handler) as a Transport,
// without redialing.
func NewFromConn(conn *websocket.Conn, sampleRate, channels int) *Transport {
	return &Transport{
		conn:       conn,
		sampleRate: sampleRate,
		channels:   channels,
		inbound:    make(chan frame.Frame, frame.DefaultChannelBufferSize),
		handlers:   make(map[transport.Event][]transport.EventHandler),
	}
}

func (t *Transport) startReading() {
	t.readOnce.Do(func() {
		go t.readLoop()
	})
}

func (t *Transport) readLoop() {
	defer close(t.inbound)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg mediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Event {
		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				continue
			}
			t.inbound <- frame.NewAudioFrame(pcm, t.sampleRate)
		case "dtmf":
			t.inbound <- frame.NewDTMFFrame(msg.Digit)
		case "stop":
			return
		}
	}
}

func (t *Transport) Recv(ctx context.Context) (<-chan frame.Frame, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pipecat: transport closed")
	}
	t.startReading()
	return t.inbound, nil
}

func (t *Transport) Send(ctx context.Context, f frame.Frame) error {
	switch f.Type {
	case frame.TTSSpeak, frame.AudioRaw:
		_, err := t.AudioOut().Write(f.Audio)
		return err
	default:
		return nil
	}
}

// AudioOut returns a writer that wraps outbound PCM in the media message
// envelope and writes it to the websocket.
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
		return 0, fmt.Errorf("pipecat: transport closed")
	}
	msg := mediaMessage{Event: "audio", Audio: base64.StdEncoding.EncodeToString(p)}
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	w.tr.mu.Lock()
	err = w.tr.conn.WriteMessage(websocket.TextMessage, data)
	w.tr.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// StartDialout is unsupported for the raw websocket bridge: dial-out is a
// telephony-provider control-plane operation the local/dev transport has no
// backing for.
func (t *Transport) StartDialout(ctx context.Context, phoneNumber string) error {
	return core.NewError("transport.pipecat", core.ErrDialFailed, "pipecat transport does not support dial-out", nil)
}

// SIPCallTransfer is unsupported for the same reason as StartDialout.
func (t *Transport) SIPCallTransfer(ctx context.Context, toEndpoint string) error {
	return core.NewError("transport.pipecat", core.ErrTransferFailed, "pipecat transport does not support SIP transfer", nil)
}

func (t *Transport) On(event transport.Event, handler transport.EventHandler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[event] = append(t.handlers[event], handler)
}

// Dispatch invokes handlers registered for event with data.
func (t *Transport) Dispatch(ctx context.Context, event transport.Event, data any) {
	t.handlersMu.Lock()
	handlers := append([]transport.EventHandler{}, t.handlers[event]...)
	t.handlersMu.Unlock()
	for _, h := range handlers {
		h(ctx, data)
	}
}

// Close closes the websocket connection. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
