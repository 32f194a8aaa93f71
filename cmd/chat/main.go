// commchat CLI - command line client for the community chat backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"commchat/internal/api"
	"commchat/internal/config"
	"commchat/internal/credstore"
	"commchat/internal/model"
	"commchat/internal/realtime"
	"commchat/internal/roomsync"
	"commchat/internal/session"
	"commchat/internal/token"
)

type app struct {
	cfg     config.Config
	client  *api.Client
	factory *realtime.Factory
	session *session.Session
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	exitOnError(err)

	tokens := token.NewStore()
	creds := credstore.New(cfg.CredentialsDir)
	sess := session.New(tokens, creds)
	sess.Restore()

	a := &app{
		cfg:     cfg,
		client:  api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, tokens, creds),
		factory: &realtime.Factory{SocketURL: cfg.SocketURL, Creds: creds},
		session: sess,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a.run(ctx, os.Args[1], os.Args[2:])
}

func (a *app) run(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "login":
		requireArgs(args, 1, "login <google-id-token>")
		res, err := a.client.GoogleLogin(ctx, args[0])
		exitOnError(err)
		exitOnError(a.session.SetAuth(res.Token, res.User))
		a.greet(res.User)

	case "community-login":
		requireArgs(args, 2, "community-login <community-code> <email>")
		res, err := a.client.CommunityLogin(ctx, args[0], args[1])
		exitOnError(err)
		exitOnError(a.session.SetAuth(res.Token, res.User))
		a.greet(res.User)

	case "community-signup":
		requireArgs(args, 3, "community-signup <name> <email> <community-code>")
		res, err := a.client.CommunitySignup(ctx, args[0], args[1], args[2])
		exitOnError(err)
		exitOnError(a.session.SetAuth(res.Token, res.User))
		a.greet(res.User)

	case "logout":
		a.session.Logout()
		fmt.Println("Logged out")

	case "me":
		a.requireAuth()
		user, err := a.client.Me(ctx)
		exitOnError(err)
		a.session.SetUser(user)
		fmt.Printf("%s <%s> (%s)\n", user.Name, user.Email, user.ID)

	case "channels":
		a.requireAuth()
		channels, err := a.client.MyChannels(ctx)
		exitOnError(err)
		printChannels(channels)

	case "explore":
		a.requireAuth()
		channels, err := a.client.AllChannels(ctx)
		exitOnError(err)
		printChannels(channels)

	case "create":
		a.requireAuth()
		if len(args) < 1 {
			exitUsage("create <name> [--private]")
		}
		isPrivate := len(args) > 1 && args[1] == "--private"
		channel, err := a.client.CreateChannel(ctx, args[0], isPrivate)
		exitOnError(err)
		fmt.Printf("Created channel %s (%s)\n", channel.Name, channel.ID)

	case "join":
		a.requireAuth()
		requireArgs(args, 1, "join <channel-id>")
		exitOnError(a.client.JoinChannel(ctx, args[0]))
		fmt.Println("Joined")

	case "leave":
		a.requireAuth()
		requireArgs(args, 1, "leave <channel-id>")
		exitOnError(a.client.LeaveChannel(ctx, args[0]))
		fmt.Println("Left")

	case "delete-channel":
		a.requireAuth()
		requireArgs(args, 1, "delete-channel <channel-id>")
		exitOnError(a.client.DeleteChannel(ctx, args[0]))
		fmt.Println("Deleted")

	case "users":
		a.requireAuth()
		users, err := a.client.Users(ctx)
		exitOnError(err)
		for _, u := range users {
			fmt.Printf("  %s  %s <%s>\n", u.ID, u.Name, u.Email)
		}

	case "read":
		a.requireAuth()
		requireArgs(args, 1, "read <channel-id>")
		msgs, err := a.client.History(ctx, model.ChannelRoom(args[0]))
		exitOnError(err)
		printMessages(msgs)

	case "read-direct":
		a.requireAuth()
		requireArgs(args, 1, "read-direct <user-id>")
		msgs, err := a.client.History(ctx, model.DirectRoom(args[0]))
		exitOnError(err)
		printMessages(msgs)

	case "chat":
		a.requireAuth()
		requireArgs(args, 1, "chat <channel-id>")
		a.chat(ctx, model.ChannelRoom(args[0]))

	case "chat-direct":
		a.requireAuth()
		requireArgs(args, 1, "chat-direct <user-id>")
		a.chat(ctx, model.DirectRoom(args[0]))

	case "push-register":
		a.requireAuth()
		requireArgs(args, 1, "push-register <device-token>")
		exitOnError(a.client.RegisterPushToken(ctx, args[0], a.cfg.PushPlatform))
		fmt.Println("Push token registered")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// chat runs an interactive room view: history plus live tail, stdin sends.
func (a *app) chat(ctx context.Context, room model.Room) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dial := func(ctx context.Context) (roomsync.Channel, error) {
		conn, err := a.factory.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	ctrl := roomsync.NewController(room, a.client, dial, roomsync.NewLog())
	ctrl.Open(ctx)
	defer ctrl.Close()

	go func() {
		printed := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ctrl.Updates():
				msgs := ctrl.Messages()
				if len(msgs) < printed {
					printed = 0
				}
				for _, m := range msgs[printed:] {
					printMessage(m)
				}
				printed = len(msgs)
			}
		}
	}()

	fmt.Printf("-- %s -- type a message, /quit to leave\n", room)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" {
			return
		}
		if _, err := ctrl.Send(ctx, text); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
}

func (a *app) requireAuth() {
	if !a.session.IsAuthenticated() {
		fmt.Fprintln(os.Stderr, "Not logged in. Run: chat login | community-login | community-signup")
		os.Exit(1)
	}
}

func (a *app) greet(user *model.User) {
	if user != nil && user.Name != "" {
		fmt.Printf("Logged in as %s\n", user.Name)
		return
	}
	fmt.Println("Logged in")
}

func printChannels(channels []model.Channel) {
	for _, ch := range channels {
		visibility := "public"
		if ch.IsPrivate {
			visibility = "private"
		}
		fmt.Printf("  %s  %s (%s)\n", ch.ID, ch.Name, visibility)
	}
}

func printMessages(msgs []model.Message) {
	for _, m := range msgs {
		printMessage(m)
	}
}

func printMessage(m model.Message) {
	sender := m.SenderID
	if len(sender) > 8 {
		sender = sender[:8]
	}
	if m.CreatedAt > 0 {
		ts := time.UnixMilli(m.CreatedAt).Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %s: %s\n", ts, sender, m.Content)
		return
	}
	fmt.Printf("%s: %s\n", sender, m.Content)
}

func requireArgs(args []string, n int, usageLine string) {
	if len(args) < n {
		exitUsage(usageLine)
	}
}

func exitUsage(usageLine string) {
	fmt.Fprintln(os.Stderr, "Usage: chat "+usageLine)
	os.Exit(1)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`commchat - community chat client

Usage: chat <command> [options]

Commands:
  login <google-id-token>                     Sign in with Google
  community-login <code> <email>              Sign in with a community code
  community-signup <name> <email> <code>      Join a community
  logout                                      Clear the stored session
  me                                          Show the signed-in user
  channels                                    List my channels
  explore                                     List all channels
  create <name> [--private]                   Create a channel
  join <channel-id>                           Join a channel
  leave <channel-id>                          Leave a channel
  delete-channel <channel-id>                 Delete a channel
  users                                       List community members
  read <channel-id>                           Print channel history
  read-direct <user-id>                       Print a direct conversation
  chat <channel-id>                           Live channel chat
  chat-direct <user-id>                       Live direct chat
  push-register <device-token>                Register for push notifications

Environment:
  API_BASE_URL              backend REST base URL (required)
  SOCKET_URL                realtime endpoint (default: API_BASE_URL)
  CREDENTIALS_DIR           credential storage (default: ~/.commchat)
  REQUEST_TIMEOUT_SECONDS   per-request timeout (default: 10)
  PUSH_PLATFORM             platform reported to push registration`)
}
