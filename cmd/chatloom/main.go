package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arkadyv/chatloom/internal/archive"
	"github.com/arkadyv/chatloom/internal/config"
	"github.com/arkadyv/chatloom/internal/jetstream"
	"github.com/arkadyv/chatloom/internal/message"
	"github.com/arkadyv/chatloom/internal/session"
	"github.com/arkadyv/chatloom/internal/storage"
	"github.com/arkadyv/chatloom/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	ctx := context.Background()
	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := storage.RunMigrations(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	natsServer, err := jetstream.NewServer(cfg.NATSStoreDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded NATS")
	}

	nc, err := natsServer.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to embedded NATS")
	}

	js, err := nc.JetStream()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get JetStream context")
	}
	if err := jetstream.EnsureStream(js); err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream stream")
	}

	writer := storage.NewBatchWriter(pool, cfg.WriterBufferSize, cfg.WriterBatchSize,
		time.Duration(cfg.WriterFlushMs)*time.Millisecond)
	archiver := archive.New(js, writer)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	go func() {
		if err := archiver.StartConsumer(consumerCtx); err != nil {
			log.Error().Err(err).Msg("archive consumer stopped")
		}
	}()

	conversationID := cfg.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	client := transport.New(cfg.BackendBaseURL, cfg.APIToken)
	manager := session.NewManager(client, archiver.Publish)
	sess := manager.Session(conversationID)

	var shutdownOnce sync.Once
	shutdown := func(code int) {
		shutdownOnce.Do(func() {
			log.Info().Msg("shutting down...")
			sess.Stop()
			consumerCancel()
			nc.Drain()
			natsServer.Shutdown()
			writer.Shutdown()
			log.Info().Msg("shutdown complete")
			os.Exit(code)
		})
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigs {
			// First Ctrl-C stops the active stream, second one exits.
			if sess.IsStreaming() {
				sess.Stop()
				continue
			}
			shutdown(0)
		}
	}()

	log.Info().
		Str("backend", cfg.BackendBaseURL).
		Str("conversation_id", conversationID).
		Msg("chatloom started")

	repl(ctx, sess)
	shutdown(0)
}

func repl(ctx context.Context, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}

		st, err := sess.Send(ctx, line, nil)
		if err != nil {
			log.Error().Err(err).Msg("send failed")
			continue
		}
		printStream(st)
	}
}

// printStream echoes tokens as they arrive, then the tool call and outcome
// summary once the message freezes.
func printStream(st *session.Stream) {
	printed := 0
	for snap := range st.Updates() {
		content := snap.Content()
		if len(content) > printed {
			fmt.Print(content[printed:])
			printed = len(content)
		}
	}
	<-st.Done()

	final := st.Message()
	if content := final.Content(); len(content) > printed {
		fmt.Print(content[printed:])
	}
	fmt.Println()

	for _, tc := range final.ToolCalls {
		fmt.Printf("  [tool %s: %s]\n", tc.Name, tc.Status)
	}
	switch final.Outcome {
	case message.OutcomeError:
		fmt.Printf("  [error: %s]\n", final.ErrorDetail)
	case message.OutcomeCancelled:
		fmt.Println("  [stopped]")
	}
}
