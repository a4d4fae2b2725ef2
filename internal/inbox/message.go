// Package inbox derives conversations, threads and unread counts from a flat
// snapshot of direct messages. Everything here is pure: no I/O, no clocks, no
// package-level state.
package inbox

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is a registered user identity. The zero value means "no identity"
// (an unauthenticated guest).
type Identity string

// ListingID identifies the listing a message is about.
type ListingID string

// DeletedPlaceholder replaces the content of tombstoned messages.
const DeletedPlaceholder = "This message was deleted"

const nanosPerMilli = 1_000_000

// SenderKind tags the Sender union.
type SenderKind uint8

const (
	SenderRegistered SenderKind = iota + 1
	SenderAnonymous
)

// Sender is either a registered identity or an anonymous guest known only by
// a self-reported display name. Build it with Registered or Anonymous.
type Sender struct {
	kind SenderKind
	id   Identity
	name string
	ref  string
}

// Registered returns a sender backed by a registered identity.
func Registered(id Identity) Sender {
	return Sender{kind: SenderRegistered, id: id}
}

// Anonymous returns a guest sender. ref is an optional stable reference shared
// by all messages of the same guest; leave it empty when none exists.
func Anonymous(displayName, ref string) Sender {
	return Sender{kind: SenderAnonymous, name: displayName, ref: ref}
}

// Kind reports which variant s holds.
func (s Sender) Kind() SenderKind { return s.kind }

// IsAnonymous reports whether s is a guest sender.
func (s Sender) IsAnonymous() bool { return s.kind == SenderAnonymous }

// Identity returns the registered identity, or false for anonymous senders.
func (s Sender) Identity() (Identity, bool) {
	if s.kind != SenderRegistered {
		return "", false
	}
	return s.id, true
}

// DisplayName returns the guest name for anonymous senders and the identity
// otherwise.
func (s Sender) DisplayName() string {
	if s.kind == SenderAnonymous {
		return s.name
	}
	return string(s.id)
}

// Ref returns the stable guest reference, if any.
func (s Sender) Ref() string { return s.ref }

// Message is one direct message as returned by the message service.
type Message struct {
	ID        string
	ListingID ListingID
	Sender    Sender
	Receiver  Identity
	Content   string
	// Timestamp is a wall-clock instant in nanoseconds.
	Timestamp int64
	IsDeleted bool
	IsEdited  bool
}

// TimestampMs converts the nanosecond timestamp to milliseconds. Every
// comparison against a watermark goes through here.
func (m Message) TimestampMs() int64 {
	return m.Timestamp / nanosPerMilli
}

// DisplayContent is what a UI may show for m.
func DisplayContent(m Message) string {
	if m.IsDeleted {
		return DeletedPlaceholder
	}
	return m.Content
}

// senderIdentity is the identity used for keying: the registered id, or a
// synthetic one for guests.
func senderIdentity(m Message) Identity {
	if id, ok := m.Sender.Identity(); ok {
		return id
	}
	return AnonymousIdentity(m)
}

// AnonymousPrefix starts every synthetic guest identity. Registered
// identities must not use it.
const AnonymousPrefix = "anon:"

// Reserved reports whether id falls in the synthetic guest namespace.
func Reserved(id Identity) bool {
	return strings.HasPrefix(string(id), AnonymousPrefix)
}

// AnonymousIdentity returns the synthetic counterparty identity of a guest
// message. Guests sharing a ref collapse into one counterparty; otherwise each
// message stands alone.
func AnonymousIdentity(m Message) Identity {
	if ref := m.Sender.Ref(); ref != "" {
		return Identity(AnonymousPrefix + ref)
	}
	return Identity(AnonymousPrefix + "msg:" + m.ID)
}

// counterparty returns the other party of m relative to me. ok is false when m
// does not involve me or is addressed to myself.
func counterparty(m Message, me Identity) (Identity, bool) {
	if me == "" {
		return "", false
	}
	from := senderIdentity(m)
	switch {
	case from == me && m.Receiver == me:
		return "", false
	case from == me:
		return m.Receiver, true
	case m.Receiver == me:
		return from, true
	default:
		return "", false
	}
}

// ConversationKey identifies a conversation relative to the current user.
type ConversationKey struct {
	ListingID    ListingID
	Counterparty Identity
}

// String serializes the key as "{listingId}-{counterpartyId}", the format used
// by the persisted watermark map.
func (k ConversationKey) String() string {
	return fmt.Sprintf("%s-%s", k.ListingID, k.Counterparty)
}

// compareIDs orders message ids: numerically when both parse as unsigned
// integers, lexicographically otherwise.
func compareIDs(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// newer reports whether a should replace b as the latest message of a
// conversation: greater timestamp, or equal timestamp and larger id.
func newer(a, b Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return compareIDs(a.ID, b.ID) > 0
}
