package inbox

import "slices"

// Conversation is a derived grouping of messages by (listing, counterparty).
type Conversation struct {
	Key           ConversationKey
	LatestMessage Message
	UnreadCount   int
}

// Reduce groups messages into conversations relative to me.
//
// Exactly one Conversation is returned per distinct (listing, counterparty)
// pair. The latest message of each group is the one with the greatest
// timestamp, ties going to the larger id. Conversations are ordered by latest
// timestamp descending; ties keep first-seen order. Messages not involving me
// and messages to myself are skipped.
func Reduce(messages []Message, me Identity) []Conversation {
	index := make(map[ConversationKey]int)
	var convs []Conversation

	for _, m := range messages {
		other, ok := counterparty(m, me)
		if !ok {
			continue
		}
		key := ConversationKey{ListingID: m.ListingID, Counterparty: other}
		i, seen := index[key]
		if !seen {
			index[key] = len(convs)
			convs = append(convs, Conversation{Key: key, LatestMessage: m})
			continue
		}
		if newer(m, convs[i].LatestMessage) {
			convs[i].LatestMessage = m
		}
	}

	slices.SortStableFunc(convs, func(a, b Conversation) int {
		ta, tb := a.LatestMessage.Timestamp, b.LatestMessage.Timestamp
		switch {
		case ta > tb:
			return -1
		case ta < tb:
			return 1
		default:
			return 0
		}
	})
	return convs
}

// Annotate fills UnreadCount on each conversation. convs is modified in place
// and returned for convenience.
func Annotate(convs []Conversation, messages []Message, me Identity, marks WatermarkReader) []Conversation {
	unread := UnreadByConversation(messages, me, marks)
	for i := range convs {
		convs[i].UnreadCount = unread[convs[i].Key]
	}
	return convs
}
