// Package access decides whether an inbound request may proceed.
package access

import (
	"slices"

	"newsnow_bot/internal/config"
	"newsnow_bot/internal/model"
)

// ReasonSourceDisabled is the user-facing reason for a disabled source.
const ReasonSourceDisabled = "source not enabled"

// Verdict is the outcome of a policy decision.
type Verdict int

// Supported verdicts.
const (
	Allow Verdict = iota
	// DenySilent refuses without any reply, so unauthorized scopes learn nothing.
	DenySilent
	// DenyExplicit refuses with a reason shown to the caller.
	DenyExplicit
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case DenySilent:
		return "deny_silent"
	case DenyExplicit:
		return "deny_explicit"
	}
	return "unknown"
}

// Decision is the verdict plus, for DenyExplicit, the reason to show.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Lists holds the policy lists of one settings snapshot.
type Lists struct {
	Blacklist      []string
	Whitelist      []string
	GroupWhitelist []string
	Sources        []string
}

// ListsFrom extracts the policy lists from a settings snapshot.
func ListsFrom(s *config.Settings) Lists {
	if s == nil {
		return Lists{}
	}
	return Lists{
		Blacklist:      s.UserBlacklist,
		Whitelist:      s.UserWhitelist,
		GroupWhitelist: s.GroupWhitelist,
		Sources:        s.Sources,
	}
}

// Decide evaluates the policy for a request. Checks short-circuit in order:
// blacklist, user whitelist, group whitelist (group chats only), then the
// source allow list. Identity and group failures are silent; a disabled
// source is reported.
func Decide(ctx model.AccessContext, lists Lists) Decision {
	if d := DecideIdentity(ctx, lists); d.Verdict != Allow {
		return d
	}
	if len(lists.Sources) > 0 && !slices.Contains(lists.Sources, ctx.Source) {
		return Decision{Verdict: DenyExplicit, Reason: ReasonSourceDisabled}
	}
	return Decision{Verdict: Allow}
}

// DecideIdentity evaluates only the caller and group checks of Decide.
func DecideIdentity(ctx model.AccessContext, lists Lists) Decision {
	if slices.Contains(lists.Blacklist, ctx.CallerID) {
		return Decision{Verdict: DenySilent}
	}
	if len(lists.Whitelist) > 0 && !slices.Contains(lists.Whitelist, ctx.CallerID) {
		return Decision{Verdict: DenySilent}
	}
	if ctx.GroupID != "" {
		// An empty group whitelist keeps the bot out of every group.
		if len(lists.GroupWhitelist) == 0 || !slices.Contains(lists.GroupWhitelist, ctx.GroupID) {
			return Decision{Verdict: DenySilent}
		}
	}
	return Decision{Verdict: Allow}
}
