// Command chatctl talks to a chat-service from the terminal.
//
//	chatctl token -secret dev-secret -user B
//	chatctl rooms
//	chatctl open -product P1
//	chatctl chat -room <roomId>
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/pkg/chatclient"
	"github.com/cwrk-planet/chat-service/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	logger.Init(logger.Config{Service: "chatctl", Env: logger.DetectEnv(), Backend: logger.BackendStd, Level: slog.LevelWarn, Output: os.Stderr})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "token":
		err = runToken(args)
	case "rooms":
		err = runRooms(ctx, args)
	case "open":
		err = runOpen(ctx, args)
	case "chat":
		err = runChat(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "chatctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl token|rooms|open|chat [flags]")
}

// Connection flags fall back to CHAT_URL and CHAT_TOKEN.
func connFlags(fs *flag.FlagSet) (base, token *string) {
	base = fs.String("url", envOr("CHAT_URL", "http://localhost:8080"), "service base URL")
	token = fs.String("token", os.Getenv("CHAT_TOKEN"), "access token")
	return base, token
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("CHAT_AUTH_SECRET"), "HS256 secret")
	user := fs.String("user", "", "user id (sub)")
	name := fs.String("name", "", "display name")
	issuer := fs.String("issuer", "", "iss claim")
	audience := fs.String("audience", "", "aud claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if *secret == "" || *user == "" {
		return fmt.Errorf("token: -secret and -user are required")
	}
	tok, err := security.NewSigner(security.Keys{Secret: []byte(*secret)}, *issuer, *audience, *ttl).
		Sign(domain.User{ID: *user, DisplayName: *name}, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func runRooms(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	base, token := connFlags(fs)
	limit := fs.Int("limit", 20, "max rooms")
	_ = fs.Parse(args)

	rooms, err := chatclient.NewAPI(*base, chatclient.StaticToken(*token), nil).ListRooms(ctx, *limit)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		last := "-"
		if r.LastMessage != nil {
			last = render(*r.LastMessage)
		}
		fmt.Printf("%s  product=%s  as=%s  %s\n", r.Room.ID, r.Room.ProductID, r.ViewerRole, last)
	}
	return nil
}

func runOpen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	base, token := connFlags(fs)
	product := fs.String("product", "", "product id")
	_ = fs.Parse(args)

	roomID, created, err := chatclient.NewAPI(*base, chatclient.StaticToken(*token), nil).GetOrCreateRoom(ctx, *product)
	if err != nil {
		return err
	}
	fmt.Printf("%s created=%t\n", roomID, created)
	return nil
}

// runChat opens an interactive session. Plain lines are sent as TEXT;
// "/confirm [text]", "/image <ref>" and "/retry <tempId>" are commands.
func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	base, token := connFlags(fs)
	roomID := fs.String("room", "", "room id")
	poll := fs.Duration("poll", 2*time.Second, "fallback poll interval")
	noRealtime := fs.Bool("no-realtime", false, "poll only")
	_ = fs.Parse(args)

	api := chatclient.NewAPI(*base, chatclient.StaticToken(*token), nil)
	sess, err := chatclient.Open(ctx, api, *roomID, chatclient.SessionConfig{PollEvery: *poll, Realtime: !*noRealtime})
	if err != nil {
		return err
	}
	view := sess.View()
	fmt.Printf("room %s: you are the %s, talking to %s\n", view.Room.ID, view.ViewerRole, view.OtherID)

	go printUpdates(ctx, sess)
	go readInput(ctx, sess)

	err = sess.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printUpdates(ctx context.Context, sess *chatclient.Session) {
	printed := map[string]bool{}
	failed := map[string]bool{}
	online := false
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-sess.Updates():
			if snap.Realtime != online {
				online = snap.Realtime
				fmt.Printf("-- realtime %s\n", map[bool]string{true: "connected", false: "offline, polling"}[online])
			}
			for _, e := range snap.Entries {
				if e.Message == nil || printed[e.Message.ID] {
					continue
				}
				printed[e.Message.ID] = true
				who := e.Message.AuthorID
				if sess.View().IsOwn(*e.Message) {
					who = "you"
				}
				fmt.Printf("[%s] %s: %s\n", e.Message.CreatedAt.Local().Format("15:04:05"), who, render(*e.Message))
			}
			for _, p := range snap.Failed {
				if failed[p.TempID] {
					continue
				}
				failed[p.TempID] = true
				fmt.Printf("!! not sent (%v); /retry %s\n", p.Err, p.TempID)
			}
		}
	}
}

func readInput(ctx context.Context, sess *chatclient.Session) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var err error
		switch {
		case strings.HasPrefix(line, "/retry "):
			var ok bool
			_, ok, err = sess.Retry(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/retry ")))
			if err == nil && !ok {
				fmt.Println("!! nothing to retry")
			}
		case strings.HasPrefix(line, "/confirm"):
			d := chatclient.Draft{Kind: chatclient.KindConfirm}
			if rest := strings.TrimSpace(strings.TrimPrefix(line, "/confirm")); rest != "" {
				d.Content = &rest
			}
			_, err = sess.Send(ctx, d)
		case strings.HasPrefix(line, "/image "):
			ref := strings.TrimSpace(strings.TrimPrefix(line, "/image "))
			_, err = sess.Send(ctx, chatclient.Draft{Kind: chatclient.KindImage, Attachment: &ref})
		default:
			_, err = sess.Send(ctx, chatclient.Text(line))
		}
		if err != nil {
			return
		}
	}
}

func render(m chatclient.Message) string {
	switch m.Kind {
	case chatclient.KindImage:
		if m.Attachment != nil {
			return "[image] " + *m.Attachment
		}
	case chatclient.KindConfirm:
		return "[confirm] " + deref(m.Content)
	case chatclient.KindSystem:
		return "[system] " + deref(m.Content)
	}
	return deref(m.Content)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
