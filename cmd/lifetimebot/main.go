// Command lifetimebot watches a club's class schedule and registers for
// matching classes the moment their registration window opens.
//
// Usage:
//
//	lifetimebot run                 # watch and register forever
//	lifetimebot once                # one fetch + one poll pass, then exit
//	lifetimebot fetch               # fetch, filter, snapshot, print, exit
//	lifetimebot register <eventID>  # one-shot registration for a known event
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lifetimebot/internal/api"
	"lifetimebot/internal/config"
	"lifetimebot/internal/lifetime"
	"lifetimebot/internal/notify"
	"lifetimebot/internal/register"
	"lifetimebot/internal/schedule"
	"lifetimebot/internal/scheduler"
	"lifetimebot/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "lifetimebot",
		Short: "Class registration scheduling bot",
	}

	root.AddCommand(runCmd())
	root.AddCommand(onceCmd())
	root.AddCommand(fetchCmd())
	root.AddCommand(registerCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// run / once commands
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the schedule and register as windows open (runs forever)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(false)
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "One schedule refresh and one registration pass, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(true)
		},
	}
}

func runLoop(singleCycle bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.RequireMembers(); err != nil {
		return err
	}
	echoConfig(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, err := store.Open(cfg.StateFile, logger)
	if err != nil {
		// A corrupt state file means re-registration risk; refuse to start.
		return fmt.Errorf("open processed-event store: %w", err)
	}
	logger.Info("Processed-event store opened", "path", cfg.StateFile, "records", st.Len())

	client := lifetime.NewClient(cfg.APIBaseURL, cfg.Username, cfg.Password, cfg.RequestsPerMinute, logger)
	attemptor := register.New(client, cfg.RetryCount, cfg.RetryBackoff, logger)

	loop := scheduler.New(scheduler.Deps{
		Fetcher:   client,
		Attemptor: attemptor,
		Store:     st,
		Notifier:  buildNotifier(cfg),
		Digest:    buildDigest(cfg),
	}, scheduler.Config{
		Rules:             cfg.Rules(),
		MemberIDs:         cfg.MemberIDs,
		LeadTime:          cfg.LeadTime,
		RefreshInterval:   cfg.RefreshInterval,
		PollInterval:      cfg.PollInterval,
		FetchOffsetDays:   cfg.FetchOffsetDays,
		FetchDurationDays: cfg.FetchDurationDays,
		Interest:          cfg.Interest,
		Club:              cfg.Club,
		SnapshotFile:      cfg.SnapshotFile,
		SingleCycle:       singleCycle,
	}, logger)

	// Optional read-only status server
	if cfg.StatusAddr != "" && !singleCycle {
		srv := api.NewServer(cfg.StatusAddr, api.NewRouter(loop, st, cfg), logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("Status server failed", "error", err)
			}
		}()
	}

	return loop.Run(ctx)
}

// --------------------------------------------------------------------------
// fetch command
// --------------------------------------------------------------------------

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and filter the schedule once, write the snapshot, exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			client := lifetime.NewClient(cfg.APIBaseURL, cfg.Username, cfg.Password, cfg.RequestsPerMinute, logger)
			sess, err := client.Login(ctx)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			logger.Info("Authenticated")

			raw, err := client.FetchSchedule(ctx, sess, lifetime.ScheduleQuery{
				Start:    time.Now().AddDate(0, 0, cfg.FetchOffsetDays),
				Days:     cfg.FetchDurationDays,
				Interest: cfg.Interest,
				Club:     cfg.Club,
			})
			if err != nil {
				return fmt.Errorf("fetch schedule: %w", err)
			}

			activities := schedule.Filter(raw, cfg.Rules())
			logger.Info("Schedule fetched and filtered", "matched", len(activities))
			for _, a := range activities {
				opens := "N/A"
				if !a.StartsAt.IsZero() {
					opens = schedule.RegistrationOpens(a.StartsAt, cfg.LeadTime).Format(time.RFC3339)
				}
				fmt.Printf("%-40s %s %s  reg opens %s\n", a.ClassName, a.Date, a.StartTime, opens)
			}

			if err := schedule.WriteSnapshot(cfg.SnapshotFile, activities); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			logger.Info("Snapshot written", "path", cfg.SnapshotFile)
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// register command
// --------------------------------------------------------------------------

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <eventID>",
		Short: "Attempt registration for a single known event ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if err := cfg.RequireMembers(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			client := lifetime.NewClient(cfg.APIBaseURL, cfg.Username, cfg.Password, cfg.RequestsPerMinute, logger)
			sess, err := client.Login(ctx)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			attemptor := register.New(client, cfg.RetryCount, cfg.RetryBackoff, logger)
			outcome, err := attemptor.Attempt(ctx, sess, eventID, cfg.MemberIDs)
			if err != nil {
				return fmt.Errorf("registration attempt: %w", err)
			}

			logger.Info("Registration attempt finished", "event_id", eventID, "outcome", outcome.String())
			fmt.Println(outcome.String())
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// echoConfig logs the effective non-secret configuration at startup so a
// misconfigured deployment is obvious from the first lines of output.
func echoConfig(cfg *config.Config) {
	logger.Info("Configuration loaded",
		"interest", cfg.Interest,
		"club", cfg.Club,
		"members", len(cfg.MemberIDs),
		"include_terms", cfg.IncludeTerms,
		"exclude_terms", cfg.ExcludeTerms,
		"weekend_days", cfg.WeekendDays,
		"weekday_parts", cfg.AllowedWeekdayParts,
		"lead_time", cfg.LeadTime,
		"refresh_interval", cfg.RefreshInterval,
		"poll_interval", cfg.PollInterval,
		"retry_count", cfg.RetryCount,
		"state_file", cfg.StateFile,
		"status_addr", cfg.StatusAddr)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var targets notify.Multi
	if sms := notify.NewSMSSender(cfg.SMSRecipient, cfg.EmailSender, cfg.EmailPassword, cfg.SMTPServer, cfg.SMTPPort, logger); sms != nil {
		targets = append(targets, sms)
	}
	if d := notify.NewDiscordSender(cfg.DiscordWebhookURL, logger); d != nil {
		targets = append(targets, d)
	}
	if len(targets) == 0 {
		logger.Warn("No notification transport configured, outcomes will only be logged")
	}
	return targets
}

// buildDigest returns the digest sender or nil, keeping the nil typed at the
// interface boundary.
func buildDigest(cfg *config.Config) scheduler.DigestSender {
	if d := notify.NewDiscordSender(cfg.DiscordWebhookURL, logger); d != nil {
		return d
	}
	return nil
}
