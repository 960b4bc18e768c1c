package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/omochice/framechat/internal/client"
	"github.com/omochice/framechat/pkg/protocol"
)

// shell turns input lines into requests. Plain text goes to the current room.
type shell struct {
	client *client.Client
	out    io.Writer
	room   string
}

// exec runs one line and reports whether the client should keep running.
func (s *shell) exec(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		if s.room == "" {
			fmt.Fprintln(s.out, "Join a room first with /join <room>")
			return true
		}
		if _, err := s.client.SendRoom(ctx, s.room, line); err != nil {
			s.fail(err)
		}
		return true
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/quit", "/exit":
		s.quit(ctx)
		return false
	case "/create":
		if rest == "" {
			fmt.Fprintln(s.out, "Usage: /create <room>")
			return true
		}
		resp, err := s.client.RoomRequest(ctx, &protocol.RoomRequest{Action: protocol.RoomActionCreate, RoomName: rest})
		if err != nil {
			s.fail(err)
			return true
		}
		fmt.Fprintf(s.out, "Created %s (%s)\n", resp.RoomName, resp.RoomID)
		s.room = resp.RoomID
	case "/join":
		if rest == "" {
			fmt.Fprintln(s.out, "Usage: /join <room>")
			return true
		}
		resp, err := s.client.Room(ctx, protocol.RoomActionJoin, rest)
		if err != nil {
			s.fail(err)
			return true
		}
		fmt.Fprintf(s.out, "%s: %s\n", resp.Message, resp.RoomName)
		s.room = resp.RoomID
	case "/leave":
		if s.room == "" {
			fmt.Fprintln(s.out, "Not in a room")
			return true
		}
		if _, err := s.client.Room(ctx, protocol.RoomActionLeave, s.room); err != nil {
			s.fail(err)
			return true
		}
		s.room = ""
	case "/rooms":
		resp, err := s.client.Room(ctx, protocol.RoomActionList, "")
		if err != nil {
			s.fail(err)
			return true
		}
		for _, r := range resp.Rooms {
			fmt.Fprintf(s.out, "  %s  %s\n", r.RoomID, r.RoomName)
		}
	case "/members":
		if s.room == "" {
			fmt.Fprintln(s.out, "Not in a room")
			return true
		}
		resp, err := s.client.Room(ctx, protocol.RoomActionMembers, s.room)
		if err != nil {
			s.fail(err)
			return true
		}
		fmt.Fprintln(s.out, strings.Join(resp.Members, ", "))
	case "/dm":
		to, text, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(text) == "" {
			fmt.Fprintln(s.out, "Usage: /dm <user> <text>")
			return true
		}
		if _, err := s.client.SendPrivate(ctx, to, strings.TrimSpace(text)); err != nil {
			s.fail(err)
		}
	case "/history":
		if s.room == "" {
			fmt.Fprintln(s.out, "Not in a room")
			return true
		}
		limit, _ := strconv.Atoi(rest)
		resp, err := s.client.History(ctx, &protocol.HistoryRequest{RoomID: s.room, Limit: limit})
		if err != nil {
			s.fail(err)
			return true
		}
		for _, m := range resp.Messages {
			fmt.Fprintf(s.out, "  %s: %s\n", m.SenderID, m.Content)
		}
	default:
		fmt.Fprintf(s.out, "Unknown command %s\n", cmd)
	}
	return true
}

func (s *shell) quit(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_ = s.client.Logout(ctx)
}

func (s *shell) fail(err error) {
	fmt.Fprintf(s.out, "Error: %v\n", err)
}
