package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/sbc/internal/lock"
	"github.com/matheus3301/sbc/internal/profile"
	"github.com/matheus3301/sbc/internal/rpc"
	"github.com/matheus3301/sbc/internal/transcript"
	"github.com/matheus3301/sbc/internal/tui/client"
	"github.com/matheus3301/sbc/internal/tui/views"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type cli struct {
	c       *client.Client
	jsonOut bool
}

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	profileName = profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(profile.SocketPath(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()
	app := &cli{c: c, jsonOut: *jsonFlag}

	if args[0] == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		app.watch(ctx, args[1:])
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		app.status(ctx)
	case "open":
		app.open(ctx, args[1:])
	case "close":
		app.call(ctx, app.c.Chat.Close, nil, func(*structpb.Struct) { fmt.Println("Conversation closed.") })
	case "log":
		app.log(ctx, args[1:])
	case "send":
		text := strings.Join(args[1:], " ")
		app.call(ctx, app.c.Chat.Send, rpc.Fields{"text": text}.Struct(), printCorrelation)
	case "attach":
		app.attach(ctx, args[1:])
	case "retry":
		app.call(ctx, app.c.Chat.Retry, correlationArg("retry", args), printCorrelation)
	case "dismiss":
		app.call(ctx, app.c.Chat.Dismiss, correlationArg("dismiss", args), func(*structpb.Struct) { fmt.Println("Dismissed.") })
	case "search":
		app.search(ctx, args[1:])
	case "outbox":
		app.outbox(ctx, args[1:])
	case "qr":
		app.qr(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: sbcctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                   Show daemon and conversation status")
	fmt.Fprintln(os.Stderr, "  open [group]             Open a group (default: chat.default_group)")
	fmt.Fprintln(os.Stderr, "  close                    Close the open conversation")
	fmt.Fprintln(os.Stderr, "  log [-n N]               Print the transcript")
	fmt.Fprintln(os.Stderr, "  send <text>              Send a message")
	fmt.Fprintln(os.Stderr, "  attach <path>            Upload a file")
	fmt.Fprintln(os.Stderr, "  retry <correlation-id>   Resend a failed message")
	fmt.Fprintln(os.Stderr, "  dismiss <correlation-id> Drop a failed message")
	fmt.Fprintln(os.Stderr, "  search [-n N] <query>    Search cached messages")
	fmt.Fprintln(os.Stderr, "  outbox [-status S]       List sent messages and their delivery state")
	fmt.Fprintln(os.Stderr, "  qr <message-id>          Show an attachment link as a QR code")
	fmt.Fprintln(os.Stderr, "  watch [namespace]        Stream daemon events until interrupted")
}

// profileName is the resolved profile, used for daemon hints.
var profileName string

func fatal(err error) {
	if st, ok := grpcstatus.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s (%s)\n", st.Message(), st.Code())
		if st.Code() == codes.Unavailable {
			daemonHint()
		}
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func daemonHint() {
	held, ok := lock.Holder(profile.Dir(profileName))
	if !ok {
		fmt.Fprintf(os.Stderr, "no daemon is running for profile %q; start it with: sbcd --profile %s\n", profileName, profileName)
		return
	}
	fmt.Fprintf(os.Stderr, "daemon pid %d holds profile %q but its socket is unreachable\n", held.PID, profileName)
}

type unaryFunc func(context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)

// call invokes fn and prints the response as JSON or through text.
func (a *cli) call(ctx context.Context, fn unaryFunc, req *structpb.Struct, text func(*structpb.Struct)) *structpb.Struct {
	resp, err := fn(ctx, req)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(resp)
	} else if text != nil {
		text(resp)
	}
	return resp
}

func correlationArg(cmd string, args []string) *structpb.Struct {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: sbcctl %s <correlation-id>\n", cmd)
		os.Exit(1)
	}
	return rpc.Fields{"correlation_id": args[1]}.Struct()
}

func printCorrelation(resp *structpb.Struct) {
	fmt.Printf("Queued %s in conversation %s\n", rpc.Str(resp, "correlation_id"), rpc.Str(resp, "conversation"))
}

func (a *cli) status(ctx context.Context) {
	a.call(ctx, a.c.Chat.Status, nil, func(st *structpb.Struct) {
		fmt.Printf("Profile: %s\n", rpc.Str(st, "profile"))
		fmt.Printf("User:    %s (#%d)\n", rpc.Str(st, "self_name"), rpc.Int(st, "self_id"))
		fmt.Printf("Backend: %s\n", rpc.Str(st, "backend"))
		fmt.Printf("Uptime:  %s\n", (time.Duration(rpc.Int(st, "uptime_ms")) * time.Millisecond).Truncate(time.Second))
		fmt.Printf("Events:  %d subscribers\n", rpc.Int(st, "subscribers"))
		if conv := rpc.Str(st, "conversation"); conv != "" {
			since := rpc.Time(rpc.Int(st, "state_since_unix_ms"))
			fmt.Printf("Group:   %s\n", conv)
			fmt.Printf("State:   %s since %s\n", rpc.Str(st, "state"), since.Format(time.TimeOnly))
			fmt.Printf("Msgs:    %d (%d pending, %d failed)\n", rpc.Int(st, "messages"), rpc.Int(st, "pending"), rpc.Int(st, "failed"))
		} else {
			fmt.Printf("State:   %s\n", rpc.Str(st, "state"))
		}
		if recent := rpc.List(st, "conversations"); len(recent) > 0 {
			fmt.Println("\nRecent conversations:")
			for _, c := range recent {
				fmt.Printf("  %-10s %4d msgs  %s\n", rpc.Str(c, "id"), rpc.Int(c, "message_count"), rpc.Str(c, "last_message_preview"))
			}
		}
	})
}

func (a *cli) open(ctx context.Context, args []string) {
	req := rpc.Fields{}
	if len(args) > 0 {
		req["conversation"] = args[0]
	}
	a.call(ctx, a.c.Chat.Open, req.Struct(), func(st *structpb.Struct) {
		fmt.Printf("Opened %s (%s, %d messages)\n", rpc.Str(st, "conversation"), rpc.Str(st, "state"), rpc.Int(st, "messages"))
	})
}

func (a *cli) log(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	limit := fs.Int("n", 0, "show only the last N messages")
	_ = fs.Parse(args)

	a.call(ctx, a.c.Chat.Snapshot, rpc.Fields{"limit": *limit}.Struct(), func(snap *structpb.Struct) {
		for _, m := range rpc.MessagesFrom(snap, "messages") {
			printMessage(m)
		}
	})
}

func printMessage(m transcript.Message) {
	ts := "--:--"
	if !m.CreatedAt.IsZero() {
		ts = m.CreatedAt.Local().Format("01/02 15:04")
	}
	sender := m.SenderName
	if m.FromMe {
		sender = "you"
	}
	id := m.ServerID
	if id == "" {
		id = m.CorrelationID
	}
	line := fmt.Sprintf("%s  %-8s %-12s %s", ts, id, sender, m.Content.Preview())
	switch m.Status {
	case transcript.StatusPending:
		line += "  (sending)"
	case transcript.StatusFailed:
		line += fmt.Sprintf("  (failed: %s; retry with: sbcctl retry %s)", m.Error, m.CorrelationID)
	}
	fmt.Println(line)
}

func (a *cli) attach(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sbcctl attach <path>")
		os.Exit(1)
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		fatal(err)
	}
	a.call(ctx, a.c.Chat.SendFile, rpc.Fields{"path": path}.Struct(), printCorrelation)
}

func (a *cli) search(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	limit := fs.Int("n", 20, "maximum results")
	conv := fs.String("conversation", "", "restrict to one group")
	_ = fs.Parse(args)
	query := strings.Join(fs.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: sbcctl search [-n N] <query>")
		os.Exit(1)
	}

	req := rpc.Fields{"query": query, "limit": *limit, "conversation": *conv}.Struct()
	a.call(ctx, a.c.Chat.Search, req, func(resp *structpb.Struct) {
		results := rpc.List(resp, "results")
		if len(results) == 0 {
			fmt.Println("No matches.")
			return
		}
		for _, r := range results {
			m := rpc.MessageFrom(rpc.Sub(r, "message"))
			fmt.Printf("[%s] %s %s: %s\n", m.ConversationID, m.CreatedAt.Local().Format("01/02 15:04"), m.SenderName, rpc.Str(r, "snippet"))
		}
		if rpc.Bool(resp, "has_more") {
			fmt.Println("(more results; raise -n)")
		}
	})
}

func (a *cli) outbox(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("outbox", flag.ExitOnError)
	status := fs.String("status", "", "filter by status (pending, sent, failed, dismissed)")
	conv := fs.String("conversation", "", "restrict to one group")
	limit := fs.Int("n", 50, "maximum entries")
	_ = fs.Parse(args)

	req := rpc.Fields{"status": *status, "conversation": *conv, "limit": *limit}.Struct()
	a.call(ctx, a.c.Chat.ListOutbox, req, func(resp *structpb.Struct) {
		entries := rpc.List(resp, "entries")
		if len(entries) == 0 {
			fmt.Println("Outbox is empty.")
			return
		}
		for _, e := range entries {
			line := fmt.Sprintf("%-24s %-6s %-9s %s", rpc.Str(e, "correlation_id"), rpc.Str(e, "conversation"), rpc.Str(e, "status"), rpc.Str(e, "preview"))
			if msg := rpc.Str(e, "error"); msg != "" {
				line += "  (" + msg + ")"
			}
			fmt.Println(line)
		}
	})
}

// qr prints the download link of an attachment in the open transcript as
// a terminal QR code.
func (a *cli) qr(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sbcctl qr <message-id>")
		os.Exit(1)
	}
	st, err := a.c.Chat.Status(ctx, nil)
	if err != nil {
		fatal(err)
	}
	snap, err := a.c.Chat.Snapshot(ctx, nil)
	if err != nil {
		fatal(err)
	}
	for _, m := range rpc.MessagesFrom(snap, "messages") {
		if m.ServerID != args[0] && m.CorrelationID != args[0] {
			continue
		}
		if !m.Content.IsFile() {
			fatal(fmt.Errorf("message %s is not an attachment", args[0]))
		}
		link := rpc.ResolveLink(rpc.Str(st, "backend"), m.Content.File.URL)
		if a.jsonOut {
			outputJSON(rpc.Fields{"url": link, "filename": m.Content.File.Filename}.Struct())
			return
		}
		fmt.Printf("%s (%s)\n\n%s\n%s\n", m.Content.File.Filename, m.Content.File.Mime, views.RenderQR(link), link)
		return
	}
	fatal(fmt.Errorf("message %s not in the open transcript", args[0]))
}

func (a *cli) watch(ctx context.Context, args []string) {
	req := rpc.Fields{}
	if len(args) > 0 {
		req["namespace"] = args[0]
	}
	stream, err := a.c.Chat.Watch(ctx, req.Struct())
	if err != nil {
		fatal(err)
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return
		}
		if err != nil {
			fatal(err)
		}
		if a.jsonOut {
			line, _ := protojson.Marshal(evt)
			fmt.Println(string(line))
			continue
		}
		at := rpc.Time(rpc.Int(evt, "occurred_at_unix_ms")).Local().Format(time.TimeOnly)
		detail := rpc.Str(evt, "to")
		if m := rpc.Sub(evt, "message"); m != nil {
			detail = rpc.MessageFrom(m).Content.Preview()
		}
		fmt.Printf("%s %-26s %-6s %s\n", at, rpc.Str(evt, "kind"), rpc.Str(evt, "conversation"), detail)
	}
}

func outputJSON(m *structpb.Struct) {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
