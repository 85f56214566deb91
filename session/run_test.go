package session

import (
	"context"
	"testing"
	"time"

	"github.com/Adam-Behun/optimalbot-portal-sub000/flow"
	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

func TestRunDialOutAttemptsDialThenGreetsOnAnswer(t *testing.T) {
	tr := newFakeTransport()
	model := &sequenceModel{responses: []*schema.AIMessage{textResponse("Hi, this is a reminder call.")}}
	f := &stubFlow{initial: &flow.NodeConfig{
		Name:               "greeting",
		RespondImmediately: true,
	}}

	cs, err := New(
		WithTransport(tr),
		WithMainLLM(model),
		WithFlow(f),
		WithCallType(DialOut),
		WithPhoneNumber("+15551234567"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cs.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	tr.fire(context.Background(), transport.EventJoined, nil)
	time.Sleep(20 * time.Millisecond)
	if cs.dialout.AttemptCount() != 1 {
		t.Fatalf("expected one dial attempt after EventJoined, got %d", cs.dialout.AttemptCount())
	}

	tr.fire(context.Background(), transport.EventDialoutAnswered, nil)
	time.Sleep(20 * time.Millisecond)
	tr.fire(context.Background(), transport.EventDialoutStopped, nil)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after EventDialoutStopped")
	}

	var sawGreeting bool
	for _, fr := range tr.sentFrames() {
		if fr.Type == frame.TTSSpeak && fr.Text == "Hi, this is a reminder call." {
			sawGreeting = true
		}
	}
	if !sawGreeting {
		t.Fatalf("expected the opening line to have been sent: %+v", tr.sentFrames())
	}
	if !cs.dialout.IsConnected() {
		t.Fatal("expected the dialout manager to be marked connected")
	}
}

func TestRunExhaustsDialoutRetriesThenFinishesFailed(t *testing.T) {
	tr := newFakeTransport()
	tr.startDialoutErr = errDialStub
	model := &sequenceModel{responses: []*schema.AIMessage{textResponse("hi")}}
	f := &stubFlow{initial: &flow.NodeConfig{Name: "greeting"}}

	cs, err := New(
		WithTransport(tr),
		WithMainLLM(model),
		WithFlow(f),
		WithCallType(DialOut),
		WithPhoneNumber("+15551234567"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cs.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	tr.fire(context.Background(), transport.EventJoined, nil)

	for i := 0; i < transport.DialoutMaxRetries; i++ {
		time.Sleep(20 * time.Millisecond)
		tr.fire(context.Background(), transport.EventDialoutError, "connection refused")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after dialout retries were exhausted")
	}
}
