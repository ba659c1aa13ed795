package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/foodgram/internal/catalog"
	"github.com/dukerupert/foodgram/internal/config"
	"github.com/dukerupert/foodgram/internal/database"
	"github.com/dukerupert/foodgram/internal/logging"
	"github.com/dukerupert/foodgram/internal/server"
	"github.com/dukerupert/foodgram/internal/shopping"
	"github.com/dukerupert/foodgram/internal/store"
	ws "github.com/dukerupert/foodgram/internal/websocket"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "foodgram: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "foodgram",
		Usage: "recipe sharing backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("FOODGRAM_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file exported before FOODGRAM_* variables are read",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			importIngredientsCmd(),
			shoppingListCmd(),
		},
	}
}

// setup loads configuration and builds the logger shared by every command.
func setup(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(cmd.String("env-file")); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, logging.Setup(cfg.Log.Level, cfg.Log.Format), nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hub := ws.NewHub(logger.With("component", "websocket"))
	var publisher ws.Publisher = hub
	var relay *ws.RedisRelay
	if cfg.Redis.URL != "" {
		relay, err = ws.NewRedisRelay(ctx, cfg.Redis.URL, cfg.Redis.Channel, hub, logger.With("component", "relay"))
		if err != nil {
			return err
		}
		defer relay.Close()
		publisher = relay
	}

	srv := server.New(db, cfg, hub, publisher, logger)
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("foodgram listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Session.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := srv.SessionStore().DeleteExpired()
				if err != nil {
					logger.Error("session cleanup", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("expired sessions removed", "count", n)
				}
				srv.RateLimiter().Cleanup(10 * time.Minute)
			}
		}
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(ctx)
		})
	}

	return g.Wait()
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "run database migrations",
		ArgsUsage: "[up|down|status|version]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			command := cmd.Args().First()
			if command == "" {
				command = "up"
			}
			if err := database.Migrate(cfg.Database.Path, command); err != nil {
				return err
			}
			logger.Info("migration finished", "command", command, "db", cfg.Database.Path)
			return nil
		},
	}
}

func importIngredientsCmd() *cli.Command {
	return &cli.Command{
		Name:  "import-ingredients",
		Usage: "load the ingredient catalog from a json, csv or xlsx file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "catalog file; the extension selects the format",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			path := cmd.String("file")
			format, err := catalog.FormatFromPath(path)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer f.Close()

			items, err := catalog.Import(f, format)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}

			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			added, err := store.NewIngredientStore(db).BulkUpsert(items)
			if err != nil {
				return err
			}
			logger.Info("ingredients imported", "file", path, "rows", len(items), "added", added)
			return nil
		},
	}
}

func shoppingListCmd() *cli.Command {
	return &cli.Command{
		Name:  "shopping-list",
		Usage: "render a user's shopping list",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "user id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "output format: pdf, txt or xlsx",
				Value: "txt",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output file (default stdout)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			format, err := shopping.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			agg := shopping.NewAggregator(store.NewCartStore(db), store.NewRecipeStore(db), logger)
			report, err := agg.BuildShoppingList(ctx, cmd.Int64("user"))
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if path := cmd.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return shopping.Render(w, report, format)
		},
	}
}
