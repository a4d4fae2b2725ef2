package remote_test

import (
	"context"
	"testing"
	"time"

	"github.com/bazaarhq/inbox/internal/identity"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/remote"
	"github.com/bazaarhq/inbox/internal/remote/remotetest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func startService(t *testing.T) (*remotetest.Service, string) {
	t.Helper()
	svc := remotetest.New()
	svc.Secret = []byte("s3cret")
	addr, stop, err := remotetest.Serve(svc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(stop)
	return svc, addr
}

func clientFor(t *testing.T, addr, subject string) *remote.Client {
	t.Helper()
	var token string
	if subject != "" {
		var err error
		token, err = identity.Sign([]byte("s3cret"), subject, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
	}
	c, err := remote.NewClient(remote.Config{Addr: addr, CallTimeout: 2 * time.Second, AccessToken: token}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSendAndListRoundTrip(t *testing.T) {
	_, addr := startService(t)
	alice := clientFor(t, addr, "A")
	bob := clientFor(t, addr, "B")
	ctx := context.Background()

	id, err := alice.SendMessage(ctx, "L1", "B", "is it available?")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty message id")
	}

	msgs, err := bob.GetMyConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	sender, ok := msgs[0].Sender.Identity()
	if !ok || sender != "A" || msgs[0].Receiver != "B" || msgs[0].ListingID != "L1" {
		t.Errorf("message = %+v", msgs[0])
	}
	if msgs[0].Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestAnonymousSendArrivesAsGuest(t *testing.T) {
	svc, addr := startService(t)
	guest := clientFor(t, addr, "")
	seller := clientFor(t, addr, "B")
	ctx := context.Background()

	if _, err := guest.SendMessageAnon(ctx, "Fatou", "hello", "L1", "B"); err != nil {
		t.Fatal(err)
	}
	msgs, err := seller.GetMessagesForListing(ctx, "L1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !msgs[0].Sender.IsAnonymous() || msgs[0].Sender.DisplayName() != "Fatou" {
		t.Fatalf("messages = %+v", msgs)
	}
	if svc.Calls("SendMessageAnon") != 1 {
		t.Errorf("SendMessageAnon calls = %d", svc.Calls("SendMessageAnon"))
	}
}

func TestGuestCannotListConversations(t *testing.T) {
	_, addr := startService(t)
	guest := clientFor(t, addr, "")

	_, err := guest.GetMyConversations(context.Background())
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}

	msgs, err := guest.GetMessagesForListing(context.Background(), "L1")
	if err != nil || len(msgs) != 0 {
		t.Errorf("guest listing fetch = %v, %v; want empty", msgs, err)
	}
}

func TestListingFetchOnlyShowsCallersMessages(t *testing.T) {
	svc, addr := startService(t)
	svc.Seed(
		inbox.Message{ID: "1", ListingID: "L1", Sender: inbox.Registered("A"), Receiver: "B", Content: "x", Timestamp: 1},
		inbox.Message{ID: "2", ListingID: "L1", Sender: inbox.Registered("C"), Receiver: "B", Content: "y", Timestamp: 2},
	)
	alice := clientFor(t, addr, "A")

	msgs, err := alice.GetMessagesForListing(context.Background(), "L1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "1" {
		t.Errorf("messages = %+v, want only message 1", msgs)
	}
}

func TestReservedIdentitiesAreDropped(t *testing.T) {
	svc, addr := startService(t)
	svc.Seed(
		inbox.Message{ID: "1", ListingID: "L1", Sender: inbox.Registered("anon:x"), Receiver: "A", Content: "spoof", Timestamp: 1},
		inbox.Message{ID: "2", ListingID: "L1", Sender: inbox.Registered("B"), Receiver: "A", Content: "real", Timestamp: 2},
	)
	alice := clientFor(t, addr, "A")

	msgs, err := alice.GetMyConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "2" {
		t.Errorf("messages = %+v, want only message 2", msgs)
	}
}

func TestInjectedFailureSurfaces(t *testing.T) {
	svc, addr := startService(t)
	svc.Fail(status.Error(codes.Unavailable, "maintenance"))
	alice := clientFor(t, addr, "A")

	if _, err := alice.SendMessage(context.Background(), "L1", "B", "hi"); status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable", status.Code(err))
	}
}

func TestWireConversionKeepsFlags(t *testing.T) {
	in := inbox.Message{ID: "9", ListingID: "L", Sender: inbox.Anonymous("Ama", "r1"), Receiver: "B", Content: "c", Timestamp: 5, IsDeleted: true, IsEdited: true}
	out := remote.ToDomain(remote.FromDomain(in))
	if out.ID != in.ID || !out.IsDeleted || !out.IsEdited || out.Sender.Ref() != "r1" || !out.Sender.IsAnonymous() {
		t.Errorf("round trip = %+v", out)
	}
}
