package frame

import "context"

// Hooks carries lifecycle callbacks a processor invokes as it observes
// pipeline events, mirroring the teacher's voice.Hooks shape. Any field may
// be nil; nil hooks are simply skipped.
type Hooks struct {
	OnSpeechStart func(ctx context.Context)
	OnSpeechEnd   func(ctx context.Context)
	OnTranscript  func(ctx context.Context, text, role string)
	OnResponse    func(ctx context.Context, text string)

	// OnError is consulted when a processor encounters a recoverable error.
	// Returning nil suppresses the error and processing continues; a
	// non-nil return propagates as fatal.
	OnError func(ctx context.Context, err error) error
}

// ComposeHooks merges multiple Hooks into one; for single-valued callbacks
// (OnError) the first non-nil hook's function is used, for others every
// non-nil hook's function is invoked in order.
func ComposeHooks(hooks ...Hooks) Hooks {
	var out Hooks
	for _, h := range hooks {
		if h.OnSpeechStart != nil {
			prev := out.OnSpeechStart
			cur := h.OnSpeechStart
			out.OnSpeechStart = func(ctx context.Context) {
				if prev != nil {
					prev(ctx)
				}
				cur(ctx)
			}
		}
		if h.OnSpeechEnd != nil {
			prev := out.OnSpeechEnd
			cur := h.OnSpeechEnd
			out.OnSpeechEnd = func(ctx context.Context) {
				if prev != nil {
					prev(ctx)
				}
				cur(ctx)
			}
		}
		if h.OnTranscript != nil {
			prev := out.OnTranscript
			cur := h.OnTranscript
			out.OnTranscript = func(ctx context.Context, text, role string) {
				if prev != nil {
					prev(ctx, text, role)
				}
				cur(ctx, text, role)
			}
		}
		if h.OnResponse != nil {
			prev := out.OnResponse
			cur := h.OnResponse
			out.OnResponse = func(ctx context.Context, text string) {
				if prev != nil {
					prev(ctx, text)
				}
				cur(ctx, text)
			}
		}
		if h.OnError != nil && out.OnError == nil {
			out.OnError = h.OnError
		}
	}
	return out
}
