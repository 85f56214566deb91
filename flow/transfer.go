package flow

import (
	"context"
	"strings"

	"github.com/Adam-Behun/optimalbot-portal-sub000/config"
	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

// skillKeywords maps a spoken keyword to the cold_transfer endpoint it
// routes to, generalizing the original's SKILL_KEYWORDS table beyond a
// single staff number (SPEC_FULL.md's supplemented keyword routing).
var skillKeywords = map[string]string{
	"billing":   "billing",
	"invoice":   "billing",
	"payment":   "billing",
	"insurance": "medical",
	"medical":   "medical",
	"doctor":    "medical",
	"nurse":     "medical",
}

// humanKeywords are utterances that ask for a human regardless of topic,
// routed to the general staff endpoint.
var humanKeywords = []string{"human", "person", "representative", "agent", "someone else"}

// ResolveTransferEndpoint picks the cold_transfer SIP endpoint matching
// utterance's keywords, falling back to the staff number when no skill or
// explicit human request is recognized.
func ResolveTransferEndpoint(cfg config.ColdTransferConfig, utterance string) string {
	lower := strings.ToLower(utterance)
	for keyword, skill := range skillKeywords {
		if strings.Contains(lower, keyword) {
			switch skill {
			case "billing":
				return cfg.BillingNumber
			case "medical":
				return cfg.MedicalNumber
			}
		}
	}
	for _, keyword := range humanKeywords {
		if strings.Contains(lower, keyword) {
			return cfg.StaffNumber
		}
	}
	return cfg.StaffNumber
}

// ColdTransfer performs a cold SIP transfer to the endpoint resolved from
// utterance, marking state's transfer_in_progress flag for the duration so
// other handlers suppress non-essential TTS (spec.md §3's invariant).
func ColdTransfer(ctx context.Context, tr transport.Transport, cfg config.ColdTransferConfig, state *State, utterance string) error {
	endpoint := ResolveTransferEndpoint(cfg, utterance)
	if endpoint == "" {
		return core.NewError("flow.transfer", core.ErrTransferFailed, "no cold_transfer endpoint configured", nil)
	}

	state.Set("transfer_in_progress", true)
	o11y.FromContext(ctx).Info(ctx, "initiating cold transfer", "endpoint", endpoint, "utterance", utterance)

	err := tr.SIPCallTransfer(ctx, endpoint)
	state.Set("transfer_in_progress", false)
	if err != nil {
		return core.NewError("flow.transfer", core.ErrTransferFailed, "SIP transfer failed", err)
	}
	state.Set("routed_to", endpoint)
	return nil
}
