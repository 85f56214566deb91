// Package twilio adapts transport.Transport to a Twilio PSTN call leg:
// dial-out via the Twilio Voice REST API and cold transfer by redirecting
// the live call to a new TwiML endpoint.
package twilio

import (
	"context"
	"fmt"
	"io"
	"sync"

	twilioClient "github.com/twilio/twilio-go"
	twilioVoice "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

func init() {
	transport.Register("twilio", New)
}

// Transport is a Twilio-backed transport.Transport. Audio arrives over the
// same media-stream WebSocket pipecat.Transport uses (Twilio's <Stream>
// verb bridges PSTN audio onto a websocket), so Transport embeds it and
// layers the Twilio REST client on top for dial-out/transfer only.
type Transport struct {
	media pipecatMediaBridge

	client   *twilioClient.RestClient
	from     string
	callSID  string

	mu       sync.Mutex
	closed   bool

	handlersMu sync.Mutex
	handlers   map[transport.Event][]transport.EventHandler
}

// pipecatMediaBridge is the narrow surface of the websocket media bridge
// this adapter needs; the concrete implementation lives in
// transport/providers/pipecat so both adapters share one websocket frame
// codec instead of duplicating it.
type pipecatMediaBridge interface {
	Recv(ctx context.Context) (<-chan frame.Frame, error)
	Send(ctx context.Context, f frame.Frame) error
	AudioOut() io.Writer
	Close() error
}

// New constructs a Twilio Transport. cfg.Extra["account_sid"],
// ["auth_token"], and ["from_number"] configure the REST client; cfg.URL is
// the media-stream websocket URL used for the call's audio.
func New(cfg transport.Config) (transport.Transport, error) {
	accountSID, _ := cfg.Extra["account_sid"].(string)
	authToken, _ := cfg.Extra["auth_token"].(string)
	from, _ := cfg.Extra["from_number"].(string)
	if accountSID == "" || authToken == "" {
		return nil, core.NewError("transport.twilio", core.ErrInvalidInput, "account_sid and auth_token are required", nil)
	}

	client := twilioClient.NewRestClientWithParams(twilioClient.RestClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &Transport{
		client:   client,
		from:     from,
		handlers: make(map[transport.Event][]transport.EventHandler),
	}, nil
}

// bridge lazily constructs the websocket media bridge for this call, once
// the transport/providers/pipecat websocket connection for the Twilio
// <Stream> is available.
func (t *Transport) attachMedia(bridge pipecatMediaBridge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.media = bridge
}

func (t *Transport) Recv(ctx context.Context) (<-chan frame.Frame, error) {
	t.mu.Lock()
	bridge := t.media
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("twilio: transport closed")
	}
	if bridge == nil {
		return nil, core.NewError("transport.twilio", core.ErrInvalidInput, "media stream not attached yet", nil)
	}
	return bridge.Recv(ctx)
}

func (t *Transport) Send(ctx context.Context, f frame.Frame) error {
	t.mu.Lock()
	bridge := t.media
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("twilio: transport closed")
	}
	if bridge == nil {
		return core.NewError("transport.twilio", core.ErrInvalidInput, "media stream not attached yet", nil)
	}
	return bridge.Send(ctx, f)
}

func (t *Transport) AudioOut() io.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.media == nil {
		return io.Discard
	}
	return t.media.AudioOut()
}

// StartDialout places an outbound PSTN call via the Twilio Voice REST API.
// The resulting CallSID is retained for the subsequent cold transfer.
func (t *Transport) StartDialout(ctx context.Context, phoneNumber string) error {
	params := &twilioVoice.CreateCallParams{}
	params.SetTo(phoneNumber)
	params.SetFrom(t.from)
	params.SetMethod("POST")

	resp, err := t.client.Api.CreateCall(params)
	if err != nil {
		return core.NewError("transport.twilio.dialout", core.ErrDialFailed, "CreateCall failed", err)
	}
	if resp.Sid != nil {
		t.mu.Lock()
		t.callSID = *resp.Sid
		t.mu.Unlock()
	}
	return nil
}

// SIPCallTransfer cold-transfers the active call by updating it with a new
// TwiML <Dial> targeting toEndpoint.
func (t *Transport) SIPCallTransfer(ctx context.Context, toEndpoint string) error {
	t.mu.Lock()
	sid := t.callSID
	t.mu.Unlock()
	if sid == "" {
		return core.NewError("transport.twilio.transfer", core.ErrTransferFailed, "no active call to transfer", nil)
	}

	twiml := fmt.Sprintf(`<Response><Dial>%s</Dial></Response>`, toEndpoint)
	params := &twilioVoice.UpdateCallParams{}
	params.SetTwiml(twiml)

	if _, err := t.client.Api.UpdateCall(sid, params); err != nil {
		return core.NewError("transport.twilio.transfer", core.ErrTransferFailed, "UpdateCall failed", err)
	}
	return nil
}

func (t *Transport) On(event transport.Event, handler transport.EventHandler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[event] = append(t.handlers[event], handler)
}

// Dispatch translates a Twilio call-status webhook ("CallStatus" form
// field) to a transport.Event and invokes its registered handlers.
func (t *Transport) Dispatch(ctx context.Context, callStatus string) {
	var e transport.Event
	switch callStatus {
	case "in-progress":
		e = transport.EventDialoutAnswered
	case "completed":
		e = transport.EventDialoutStopped
	case "failed", "busy", "no-answer":
		e = transport.EventDialoutError
	default:
		return
	}
	t.handlersMu.Lock()
	handlers := append([]transport.EventHandler{}, t.handlers[e]...)
	t.handlersMu.Unlock()
	for _, h := range handlers {
		h(ctx, callStatus)
	}
}

// Close tears down the underlying media bridge, if attached. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.media != nil {
		return t.media.Close()
	}
	return nil
}
