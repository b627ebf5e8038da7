package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Guizzs26/live_polling_system/internal/auth"
	"github.com/Guizzs26/live_polling_system/internal/simulation"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "ws://localhost:8081", "Server websocket address")
	group := flag.String("group", "", "Group code to join")
	members := flag.Int("members", 30, "Number of simulated members")
	think := flag.Duration("think", 3*time.Second, "Max delay before a member answers")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if *group == "" {
		logger.Error("-group required")
		os.Exit(2)
	}
	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		logger.Error("TOKEN_SECRET required")
		os.Exit(1)
	}

	sim := simulation.New(simulation.Config{
		ServerURL: *addr,
		GroupCode: *group,
		Members:   *members,
		Signer:    auth.NewVerifier(secret),
		MaxThink:  *think,
		Logger:    logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Simulator is running. Press Ctrl+C to exit", "group", *group, "members", *members)
	if err := sim.Run(ctx); err != nil {
		logger.Error("Error while running simulator", "error", err)
		os.Exit(1)
	}
	logger.Info("Simulator terminated", "stats", sim.Stats())
}
