// cmd/tools/circulation-admin/commands.go
package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"circulation-workers/internal/common/config"
	"circulation-workers/internal/common/database"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/institution"
	"circulation-workers/internal/notify"
	"circulation-workers/internal/purge"
	"circulation-workers/internal/reconcile"
	"circulation-workers/internal/store"
)

var (
	ok   = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed).SprintFunc()
	bold = color.New(color.Bold).SprintFunc()
)

// env holds what a command needs. Close releases the connections.
type env struct {
	cfg   *config.Config
	log   logger.Logger
	pg    *database.PostgresClient
	redis *database.RedisClient
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func open(ctx context.Context, path string, withRedis bool) (*env, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg: cfg,
		log: logger.NewStructured(cfg.Logging.Level, "console"),
	}

	if e.pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
		return nil, err
	}
	if err := e.pg.Ping(ctx); err != nil {
		e.pg.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if withRedis {
		if e.redis, err = database.NewRedis(cfg.Database.Redis); err != nil {
			e.pg.Close()
			return nil, err
		}
		if err := e.redis.Ping(ctx); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *env) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.pg.Close()
}

type propertyStore interface {
	institution.ConfigSource
	institution.ConfigWriter
}

// properties is the same layered source the worker manager reads, so a write
// here invalidates the entry the workers cache.
func (e *env) properties() propertyStore {
	layered := institution.Layered{institution.NewPostgresSource(e.pg.DB), institution.NewStaticSource(e.cfg.ILS)}
	ttl := config.GetDuration(e.cfg.Database.Redis.PropertyCacheTTL)
	if ttl <= 0 {
		return layered
	}
	return institution.NewCachedSource(layered, e.redis.Client, ttl, e.log)
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the request store tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := store.NewRequestStore(e.pg.DB).Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(ok("✓"), "schema up to date")
			return nil
		},
	}
}

func identifyPendingCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "identify-pending",
		Short: "Escalate requests stuck in PENDING or LAS_ITEM_STATUS_PENDING",
		Long: `Runs one pending-request sweep. Escalations are recorded in the store
exactly as the scheduled sweep records them; the notification is printed
to the log instead of being emailed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			r := reconcile.New(store.NewRequestStore(e.pg.DB), notify.LogNotifier{Logger: e.log}, e.cfg.Reconciler, e.log)
			res, err := r.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			if !res.Escalated() {
				fmt.Println(ok("✓"), "no stale requests")
				return nil
			}
			fmt.Printf("%s batch %s\n", warn("!"), bold(res.BatchID))
			fmt.Printf("  PENDING:                 %d\n", len(res.Pending))
			fmt.Printf("  LAS_ITEM_STATUS_PENDING: %d\n", len(res.LAS))
			return nil
		},
	}
}

func purgeEmailCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-email",
		Short: "Scrub patron email addresses past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := purge.New(store.NewRequestStore(e.pg.DB), e.cfg.Purge, e.log).PurgeEmailAddress(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ok("✓"), "email addresses purged")
			fmt.Printf("  edd:      %d (older than %d days)\n", res.EDD, e.cfg.Purge.EmailEDDDayLimit)
			fmt.Printf("  physical: %d (older than %d days)\n", res.Physical, e.cfg.Purge.EmailPhysicalDayLimit)
			return nil
		},
	}
}

func purgeExceptionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-exceptions",
		Short: "Delete EXCEPTION requests past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			res := purge.New(store.NewRequestStore(e.pg.DB), e.cfg.Purge, e.log).PurgeExceptionRequests(cmd.Context())
			if res.Status != purge.StatusSuccess {
				return fmt.Errorf("exception purge failed: %s", res.Message)
			}
			fmt.Printf("%s %d exception requests purged\n", ok("✓"), res.Count)
			return nil
		},
	}
}

func pickupLocationCmd(configPath *string) *cobra.Command {
	var pickup, delivery string

	cmd := &cobra.Command{
		Use:   "pickup-location INSTITUTION",
		Short: "Show the pickup location a hold for INSTITUTION would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer e.Close()

			resolver := institution.NewResolver(e.properties(), e.log)
			location := resolver.PickupLocation(cmd.Context(), args[0], pickup, delivery)
			if location == "" {
				fmt.Println(warn("!"), "no pickup location resolved")
				return nil
			}
			fmt.Printf("%s %s\n", strings.ToUpper(args[0]), bold(location))
			return nil
		},
	}
	cmd.Flags().StringVar(&pickup, "pickup", "", "pickup location on the request")
	cmd.Flags().StringVar(&delivery, "delivery", "", "delivery location on the request")
	return cmd
}

func setPropertyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-property INSTITUTION KEY VALUE",
		Short: "Store an institution property and drop its cached value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.properties().SetValue(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Printf("%s %s %s = %s\n", ok("✓"), strings.ToUpper(args[0]), args[1], args[2])
			return nil
		},
	}
}

func institutionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "institutions",
		Short: "List configured institutions and their capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			codes := make([]string, 0, len(cfg.ILS.Institutions))
			for code := range cfg.ILS.Institutions {
				codes = append(codes, code)
			}
			sort.Strings(codes)

			fmt.Println()
			fmt.Println("Institution  Protocol  Timeout  Capabilities")
			fmt.Println("───────────────────────────────────────────────")
			for _, code := range codes {
				inst := cfg.ILS.Institutions[code]
				caps := strings.Join(inst.Capabilities, ",")
				if caps == "" {
					caps = bad("none")
				}
				fmt.Printf("%-12s %-9s %-8s %s\n", code, inst.Protocol, cfg.ILS.ConnectorTimeout(code), caps)
			}
			fmt.Println()
			return nil
		},
	}
}
