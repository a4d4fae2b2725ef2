package inbox

import "slices"

// ThreadScope selects how far a thread reaches.
type ThreadScope string

const (
	// ScopeListing limits a thread to one listing.
	ScopeListing ThreadScope = "listing"
	// ScopeCounterparty spans every listing shared with one counterparty.
	ScopeCounterparty ThreadScope = "counterparty"
)

// ParseThreadScope accepts "listing" and "counterparty"; empty means listing.
func ParseThreadScope(s string) (ThreadScope, bool) {
	switch ThreadScope(s) {
	case "", ScopeListing:
		return ScopeListing, true
	case ScopeCounterparty:
		return ScopeCounterparty, true
	default:
		return "", false
	}
}

// FilterThread returns the messages exchanged between me and other about
// listing, oldest first. Guests (empty me) get nothing back: history is only
// available to registered users.
func FilterThread(messages []Message, me, other Identity, listing ListingID) []Message {
	return filter(messages, me, other, func(m Message) bool { return m.ListingID == listing })
}

// FilterCounterparty is FilterThread across all listings.
func FilterCounterparty(messages []Message, me, other Identity) []Message {
	return filter(messages, me, other, func(Message) bool { return true })
}

// Thread dispatches to FilterThread or FilterCounterparty by scope.
func Thread(scope ThreadScope, messages []Message, me, other Identity, listing ListingID) []Message {
	if scope == ScopeCounterparty {
		return FilterCounterparty(messages, me, other)
	}
	return FilterThread(messages, me, other, listing)
}

func filter(messages []Message, me, other Identity, keep func(Message) bool) []Message {
	if me == "" {
		return nil
	}
	var out []Message
	for _, m := range messages {
		from := senderIdentity(m)
		between := (from == me && m.Receiver == other) || (from == other && m.Receiver == me)
		if between && keep(m) {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b Message) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})
	return out
}
