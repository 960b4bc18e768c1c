package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/omochice/framechat/internal/client"
	"github.com/omochice/framechat/internal/client/tcp"
	"github.com/omochice/framechat/internal/client/ws"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/pkg/protocol"
)

const requestTimeout = 10 * time.Second

func main() {
	transport := flag.String("transport", "tcp", "Transport to use: tcp or ws")
	serverAddr := flag.String("server", "localhost:8080", "Server address (host:port for tcp, ws:// URL for ws)")
	token := flag.String("token", "", "Session token")
	username := flag.String("username", "", "Username for password login")
	password := flag.String("password", "", "Password for password login")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "Heartbeat interval")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", Output: os.Stderr})

	if *token == "" && (*username == "" || *password == "") {
		logging.Fatal().Msg("either -token or -username and -password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := dial(ctx, *transport, *serverAddr)
	if err != nil {
		logging.Fatal().Err(err).Str("server", *serverAddr).Msg("failed to connect")
	}
	defer c.Close()

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	var login *protocol.LoginResponse
	if *token != "" {
		login, err = c.Login(reqCtx, *token)
	} else {
		login, err = c.LoginPassword(reqCtx, *username, *password)
	}
	cancel()
	if err != nil {
		logging.Fatal().Err(err).Msg("login failed")
	}
	fmt.Printf("Logged in as %s (%s)\n", login.Username, login.UserID)
	if *token == "" {
		fmt.Printf("Token: %s\n", login.Token)
	}

	go c.KeepAlive(ctx, *heartbeat)
	go printMessages(c)

	sh := &shell{client: c, out: os.Stdout}
	fmt.Println("Commands: /create <room>, /join <room>, /leave, /rooms, /members, /dm <user> <text>, /history [n], /quit")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			fmt.Println("Connection closed by server")
			return
		case line, ok := <-lines:
			if !ok {
				sh.quit(ctx)
				return
			}
			if !sh.exec(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

func dial(ctx context.Context, transport, addr string) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	codec := protocol.NewCodec(nil)
	switch transport {
	case "tcp":
		return tcp.Dial(ctx, addr, codec)
	case "ws":
		if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
			addr = "ws://" + addr + "/ws"
		}
		return ws.Dial(ctx, addr, codec)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

func printMessages(c *client.Client) {
	for msg := range c.Messages() {
		switch p := msg.Payload.(type) {
		case *protocol.ChatDelivery:
			sender := p.SenderID
			if p.Sender != nil && p.Sender.Username != "" {
				sender = p.Sender.Username
			}
			when := time.UnixMilli(p.Timestamp).Format(time.Kitchen)
			if p.RoomID != "" {
				fmt.Printf("%s [%s] %s: %s\n", when, p.RoomID, sender, p.Content)
			} else {
				fmt.Printf("%s (private) %s: %s\n", when, sender, p.Content)
			}
		case *protocol.SystemMessage:
			fmt.Printf("*** %s ***\n", p.Message)
		case *protocol.NotificationMessage:
			fmt.Printf("!!! %s\n", p.Message)
		case *protocol.PresenceNotice:
			name := p.Username
			if name == "" {
				name = p.UserID
			}
			state := "offline"
			if p.Online {
				state = "online"
			}
			fmt.Printf("*** %s is %s ***\n", name, state)
		default:
			fmt.Printf("<%s>\n", msg.Type)
		}
	}
}
