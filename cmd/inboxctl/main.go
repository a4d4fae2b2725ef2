package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/apperr"
	"github.com/bazaarhq/inbox/internal/config"
	"github.com/bazaarhq/inbox/internal/guest"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/profile"
	"github.com/skip2/go-qrcode"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := api.Dial(profile.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cmd := &command{ctx: ctx, c: c, json: *jsonFlag}
	cmdArgs := args[1:]
	switch args[0] {
	case "status":
		cmd.status()
	case "conversations":
		cmd.conversations()
	case "thread":
		cmd.thread(cmdArgs)
	case "unread":
		cmd.unread()
	case "mark-read":
		need(cmdArgs, 2, "mark-read <listing> <counterparty>")
		cmd.markRead(cmdArgs[0], cmdArgs[1])
	case "send":
		need(cmdArgs, 3, "send <listing> <receiver> <text...>")
		cmd.send(cmdArgs[0], cmdArgs[1], strings.Join(cmdArgs[2:], " "))
	case "guest-name":
		need(cmdArgs, 3, "guest-name <listing> <receiver> <name>")
		cmd.guestName(cmdArgs[0], cmdArgs[1], strings.Join(cmdArgs[2:], " "))
	case "retry":
		need(cmdArgs, 2, "retry <listing> <receiver>")
		cmd.retry(cmdArgs[0], cmdArgs[1])
	case "search":
		need(cmdArgs, 1, "search <query>")
		cmd.search(strings.Join(cmdArgs, " "))
	case "refresh":
		check(c.Refresh(ctx))
		fmt.Println("refresh requested")
	case "clear-local":
		check(c.ClearLocalData(ctx))
		fmt.Println("local data cleared")
	case "listing-qr":
		need(cmdArgs, 1, "listing-qr <listing>")
		listingQR(cmdArgs[0])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: inboxctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                               Show daemon status")
	fmt.Fprintln(os.Stderr, "  conversations                        List conversations, newest first")
	fmt.Fprintln(os.Stderr, "  thread [--no-mark] <listing> <who>   Show a thread and mark it read")
	fmt.Fprintln(os.Stderr, "  unread                               Show unread counts")
	fmt.Fprintln(os.Stderr, "  mark-read <listing> <who>            Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  send <listing> <receiver> <text...>  Send a message")
	fmt.Fprintln(os.Stderr, "  guest-name <listing> <receiver> <n>  Choose a guest name and send the pending draft")
	fmt.Fprintln(os.Stderr, "  retry <listing> <receiver>           Retry a failed send")
	fmt.Fprintln(os.Stderr, "  search <query>                       Search cached messages")
	fmt.Fprintln(os.Stderr, "  refresh                              Poll the inbox now")
	fmt.Fprintln(os.Stderr, "  clear-local                          Forget read state and cached messages")
	fmt.Fprintln(os.Stderr, "  listing-qr <listing>                 Print a QR code linking to a listing")
}

type command struct {
	ctx  context.Context
	c    *api.Client
	json bool
}

func (cmd *command) status() {
	resp, err := cmd.c.GetStatus(cmd.ctx)
	check(err)
	if cmd.json {
		outputJSON(resp)
		return
	}
	who := resp.Identity
	if resp.Guest {
		who = "guest"
		if resp.GuestName != "" {
			who += " (" + resp.GuestName + ")"
		}
	}
	fmt.Printf("Profile:       %s\n", resp.Profile)
	fmt.Printf("Identity:      %s\n", who)
	if resp.StateReason != "" {
		fmt.Printf("State:         %s (%s)\n", resp.State, resp.StateReason)
	} else {
		fmt.Printf("State:         %s\n", resp.State)
	}
	fmt.Printf("Thread scope:  %s\n", resp.ThreadScope)
	fmt.Printf("Conversations: %d\n", resp.Conversations)
	fmt.Printf("Unread:        %d\n", resp.Unread)
	fmt.Printf("Last fetch:    %s\n", formatMs(resp.FetchedAtMs))
	if resp.Stale {
		fmt.Printf("Stale:         yes (%s)\n", resp.LastError)
	}
	fmt.Printf("Uptime:        %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	for _, cs := range resp.Composers {
		fmt.Printf("Composer:      %s/%s %s\n", cs.ListingID, cs.Receiver, cs.State)
	}
}

func (cmd *command) conversations() {
	resp, err := cmd.c.ListConversations(cmd.ctx)
	check(err)
	if cmd.json {
		outputJSON(resp)
		return
	}
	if resp.Stale {
		fmt.Fprintln(os.Stderr, "warning: showing stale data")
	}
	for _, conv := range resp.Conversations {
		badge := conv.Badge
		if badge != "" {
			badge = "[" + badge + "]"
		}
		fmt.Printf("%-5s %-12s %-20s %s  %s\n", badge, conv.ListingID, conv.DisplayName,
			formatMs(conv.Latest.TimestampMs), preview(conv.Latest.Content))
	}
}

func (cmd *command) thread(args []string) {
	fs := flag.NewFlagSet("thread", flag.ExitOnError)
	noMark := fs.Bool("no-mark", false, "do not mark the thread read")
	_ = fs.Parse(args)
	need(fs.Args(), 2, "thread [--no-mark] <listing> <counterparty>")

	resp, err := cmd.c.GetThread(cmd.ctx, &api.GetThreadRequest{
		ListingID:    fs.Arg(0),
		Counterparty: fs.Arg(1),
		Mark:         !*noMark,
	})
	check(err)
	if cmd.json {
		outputJSON(resp)
		return
	}
	for _, m := range resp.Messages {
		who := m.SenderName
		if m.FromMe {
			who = "me"
		}
		suffix := ""
		if m.Edited && !m.Deleted {
			suffix = " (edited)"
		}
		fmt.Printf("%s  %-16s %s%s\n", formatMs(m.TimestampMs), who, m.Content, suffix)
	}
	if resp.Compose.Draft != "" {
		fmt.Printf("\ndraft (%s): %s\n", resp.Compose.State, resp.Compose.Draft)
	}
}

func (cmd *command) unread() {
	resp, err := cmd.c.UnreadCount(cmd.ctx)
	check(err)
	if cmd.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Unread: %d\n", resp.Total)
	for _, e := range resp.Entries {
		fmt.Printf("  %-12s %-20s %d\n", e.ListingID, e.Counterparty, e.Count)
	}
}

func (cmd *command) markRead(listing, counterparty string) {
	resp, err := cmd.c.MarkViewed(cmd.ctx, &api.MarkViewedRequest{ListingID: listing, Counterparty: counterparty})
	check(err)
	if cmd.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("marked read at %s\n", formatMs(resp.WatermarkMs))
}

func (cmd *command) send(listing, receiver, text string) {
	st, err := cmd.c.Compose(cmd.ctx, &api.ComposeRequest{ListingID: listing, Receiver: receiver, Content: text})
	if errors.Is(err, guest.ErrNameRequired) {
		fmt.Fprintf(os.Stderr, "a guest name is required: inboxctl guest-name %s %s <name>\n", listing, receiver)
		os.Exit(2)
	}
	cmd.composeResult(st, err, listing, receiver)
}

func (cmd *command) guestName(listing, receiver, name string) {
	st, err := cmd.c.ConfirmGuestName(cmd.ctx, &api.ConfirmGuestNameRequest{ListingID: listing, Receiver: receiver, Name: name})
	cmd.composeResult(st, err, listing, receiver)
}

func (cmd *command) retry(listing, receiver string) {
	st, err := cmd.c.RetrySend(cmd.ctx, &api.RetrySendRequest{ListingID: listing, Receiver: receiver})
	cmd.composeResult(st, err, listing, receiver)
}

func (cmd *command) composeResult(st *api.ComposeStatus, err error, listing, receiver string) {
	if apperr.CodeOf(err) == apperr.CodeUnavailable {
		fmt.Fprintf(os.Stderr, "error: %v\nthe draft was kept: inboxctl retry %s %s\n", err, listing, receiver)
		os.Exit(1)
	}
	check(err)
	if cmd.json {
		outputJSON(st)
		return
	}
	fmt.Printf("sent (id %s)\n", st.LastMessageID)
}

func (cmd *command) search(query string) {
	resp, err := cmd.c.SearchMessages(cmd.ctx, &api.SearchMessagesRequest{Query: query})
	check(err)
	if cmd.json {
		outputJSON(resp)
		return
	}
	for _, r := range resp.Results {
		fmt.Printf("%s  %-12s %-16s %s\n", formatMs(r.Message.TimestampMs), r.Message.ListingID, r.Message.SenderName, r.Snippet)
	}
}

func listingQR(listing string) {
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	check(err)
	out, err := renderListingQR(cfg, inbox.ListingID(listing))
	check(err)
	fmt.Print(out)
}

// renderListingQR returns the listing's share QR followed by its link.
func renderListingQR(cfg *config.Config, listing inbox.ListingID) (string, error) {
	link := cfg.ListingLink(listing)
	qr, err := qrcode.New(link, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", link, err)
	}
	return qr.ToSmallString(false) + link + "\n", nil
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: inboxctl %s\n", usage)
		os.Exit(1)
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return s
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
