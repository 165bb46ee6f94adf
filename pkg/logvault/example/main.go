package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coffersTech/logvault/pkg/logvault"
)

func main() {
	handler := logvault.NewHandler(logvault.Options{
		ServerURL:   "http://localhost:8088",
		APIKey:      "sk-dev-test-key",
		Service:     "go-example-service",
		Environment: "dev",
	})
	defer handler.Close()
	logger := slog.New(handler)

	logger.Info("Hello from Go SDK", "user_id", 42, "status", "active")
	logger.Warn("This is a warning", "retry_count", 3)
	logger.With("component", "db").Error("Something went wrong", "error", "connection refused")
	logger.Debug("cache miss", slog.Group("cache", "key", "user:42", "ttl", 30*time.Second))

	client := logvault.NewClient("http://localhost:8088", "sk-dev-test-key")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := client.Ingest(ctx, logvault.LogInput{
		Level:    logvault.LevelInfo,
		Message:  "direct ingest",
		Service:  "go-example-service",
		Tags:     []string{"example"},
		Metadata: map[string]any{"source": "client"},
	})
	if err != nil {
		fmt.Println("ingest failed:", err)
		return
	}
	fmt.Println("stored", rec.ID, "at", rec.Timestamp.Format(time.RFC3339))
}
