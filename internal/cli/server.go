package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aptitude-ace/internal/auth"
	"aptitude-ace/internal/config"
	"aptitude-ace/internal/flashcards"
	transport "aptitude-ace/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, false); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	deps := transport.RouterDeps{Service: rt.service, CurrentUser: rt.auth.UserID}
	if cfg.Gemini.APIKey != "" {
		gen, err := flashcards.NewGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			log.Printf("flashcards disabled: %v", err)
		} else {
			defer gen.Close()
			deps.Flashcards = gen
		}
	}

	runCtx, stopAuth := context.WithCancel(context.Background())
	defer stopAuth()
	go rt.auth.Run(runCtx, config.TTLDuration(cfg.Auth.CheckInterval, auth.DefaultCheckInterval))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(deps),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz session server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt.service.CloseAll()
	return server.Shutdown(shutdownCtx)
}
