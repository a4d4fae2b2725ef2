package bus

import "time"

// Event kinds. Subscribers filter on the part before the dot.
const (
	KindInboxSnapshot    = "poll.snapshot"
	KindThreadSnapshot   = "poll.thread"
	KindPollFailed       = "poll.failed"
	KindWatermarkUpdated = "watermark.updated"
	KindComposeState     = "compose.state_changed"
	KindLocalCleared     = "local.cleared"
	KindDaemonState      = "daemon.state_changed"
)

// Event is something that happened inside the daemon.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
