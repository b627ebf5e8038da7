package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/joho/godotenv"

	"github.com/Guizzs26/live_polling_system/internal/auth"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "ws://localhost:8081", "Server websocket address")
	group := flag.String("group", "", "Group code to join")
	participant := flag.String("as", "debug-client", "Participant id to sign a token for")
	flag.Parse()

	if *group == "" {
		fmt.Fprintln(os.Stderr, "Correct usage: go run ./cmd/client -group <code> [-as <participant>]")
		os.Exit(2)
	}
	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		slog.Error("TOKEN_SECRET required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	token := auth.NewVerifier(secret).Sign(*participant)
	url := fmt.Sprintf("%s/ws/groups/%s?token=%s", *addr, *group, token)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		slog.Error("Failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "client exit")

	slog.Info("Listening for events", "group", *group, "as", *participant)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("Connection closed")
				return
			}
			slog.Error("Read error", "error", err)
			return
		}
		fmt.Println(string(msg))
	}
}
