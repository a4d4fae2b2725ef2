package inbox

import "strconv"

// WatermarkReader exposes read watermarks in milliseconds. Unknown keys read
// as 0.
type WatermarkReader interface {
	Watermark(key ConversationKey) int64
}

// Watermarks is a plain map reader, handy for tests and snapshots.
type Watermarks map[ConversationKey]int64

// Watermark implements WatermarkReader.
func (w Watermarks) Watermark(key ConversationKey) int64 { return w[key] }

// CountUnread returns how many messages addressed to me are newer than the
// watermark of their conversation. The count is exact; see FormatBadge for
// display capping. marks is only read.
func CountUnread(messages []Message, me Identity, marks WatermarkReader) int {
	n := 0
	forEachUnread(messages, me, marks, func(ConversationKey) { n++ })
	return n
}

// UnreadByConversation returns the unread count per conversation key. Keys
// without unread messages are absent.
func UnreadByConversation(messages []Message, me Identity, marks WatermarkReader) map[ConversationKey]int {
	out := make(map[ConversationKey]int)
	forEachUnread(messages, me, marks, func(k ConversationKey) { out[k]++ })
	return out
}

func forEachUnread(messages []Message, me Identity, marks WatermarkReader, fn func(ConversationKey)) {
	if me == "" {
		return
	}
	for _, m := range messages {
		if m.Receiver != me {
			continue
		}
		from := senderIdentity(m)
		if from == me {
			continue
		}
		key := ConversationKey{ListingID: m.ListingID, Counterparty: from}
		var mark int64
		if marks != nil {
			mark = marks.Watermark(key)
		}
		if m.TimestampMs() > mark {
			fn(key)
		}
	}
}

// FormatBadge renders an unread count for a badge: empty for zero, "9+" above
// nine.
func FormatBadge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 9:
		return "9+"
	default:
		return strconv.Itoa(n)
	}
}
