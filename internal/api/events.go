package api

import (
	"fmt"
	"strings"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/poll"
	"github.com/bazaarhq/inbox/internal/status"
	"github.com/bazaarhq/inbox/internal/watermark"
	"github.com/google/uuid"
	"google.golang.org/grpc"
)

var defaultWatchKinds = []string{"poll.", "compose.", "watermark.", "local.", "daemon."}

// WatchInbox forwards daemon events until the client goes away. Clients
// re-read whatever view the event affects.
func (s *Service) WatchInbox(req *WatchInboxRequest, stream grpc.ServerStreamingServer[Event]) error {
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = defaultWatchKinds
	}
	ch, unsub := s.d.Bus.Subscribe("", 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !matchesAny(evt.Kind, kinds) {
				continue
			}
			if err := stream.Send(&Event{
				ID:           uuid.NewString(),
				Kind:         evt.Kind,
				OccurredAtMs: evt.Timestamp.UnixMilli(),
				Summary:      summarize(evt),
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func matchesAny(kind string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}

func summarize(evt bus.Event) string {
	switch p := evt.Payload.(type) {
	case poll.Snapshot:
		return fmt.Sprintf("%d messages", len(p.Messages))
	case poll.ThreadSnapshot:
		return fmt.Sprintf("%s/%s: %d messages", p.Thread.ListingID, p.Thread.Counterparty, len(p.Messages))
	case poll.Failure:
		return p.Target + ": " + p.Err
	case compose.StateChange:
		return fmt.Sprintf("%s/%s: %s -> %s", p.Thread.ListingID, p.Thread.Receiver, p.From, p.To)
	case watermark.Update:
		return fmt.Sprintf("%s at %d", p.Key, p.At)
	case status.Change:
		if p.Reason != "" {
			return fmt.Sprintf("%s -> %s: %s", p.From, p.To, p.Reason)
		}
		return fmt.Sprintf("%s -> %s", p.From, p.To)
	}
	return ""
}
