package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	cli "github.com/jawher/mow.cli"
	"go.uber.org/fx"

	"github.com/geniass/stockwatch/pkg/config"
	"github.com/geniass/stockwatch/pkg/monitor"
	"github.com/geniass/stockwatch/pkg/scraper"
	"github.com/geniass/stockwatch/pkg/store"
)

const commandTimeout = 2 * time.Minute

func main() {
	app := cli.App("stockwatch", "Watch catalog product pages for stock and price changes")

	app.Command("run", "Run the scheduler until interrupted", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			fx.New(
				Module,
				fx.NopLogger,
				fx.Invoke(RegisterScheduler),
			).Run()
		}
	})

	app.Command("migrate", "Create the database schema", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			var pool *pgxpool.Pool
			exitOnErr(withDeps(func(ctx context.Context) error {
				return store.Migrate(ctx, pool)
			}, &pool))
		}
	})

	app.Command("track", "Start tracking a product for an owner", func(cmd *cli.Cmd) {
		cmd.Spec = "[--no-check] OWNER PRODUCT"
		var (
			noCheck = cmd.BoolOpt("no-check", false, "do not fetch the product page right away")
			owner   = cmd.StringArg("OWNER", "", "owner identity notifications are sent to")
			product = cmd.StringArg("PRODUCT", "", "product link or catalog code")
		)
		cmd.Action = func() {
			var (
				cfg       config.Config
				st        store.Store
				checker   *monitor.Checker
				extractor *scraper.Extractor
			)
			exitOnErr(withDeps(func(ctx context.Context) error {
				code, ok := scraper.ParseCode(*product)
				if !ok {
					return errors.Newf("no catalog code in %q", *product)
				}
				url := scraper.ProductURL(cfg.Fetch.CatalogBaseURL, code)

				title := extractor.Fallback(code, url).Title
				if existing, err := st.FindProduct(ctx, *owner, code); err == nil {
					title = existing.Title
				}
				p, err := st.UpsertProduct(ctx, *owner, code, title, url)
				if err != nil {
					return err
				}
				if !*noCheck {
					if out, err := checker.Check(ctx, p); err != nil {
						slog.Warn("first check failed, the scheduler will retry", "code", code, "error", err)
					} else {
						p = out.Product
					}
				}
				printProducts([]store.Product{p})
				return nil
			}, &cfg, &st, &checker, &extractor))
		}
	})

	app.Command("untrack", "Stop tracking a product and drop its history", func(cmd *cli.Cmd) {
		owner, code := ownerCodeArgs(cmd)
		cmd.Action = func() {
			var st store.Store
			exitOnErr(withDeps(func(ctx context.Context) error {
				return st.RemoveProduct(ctx, *owner, normalizeCode(*code))
			}, &st))
		}
	})

	app.Command("pause", "Exclude a product from scheduled checks", func(cmd *cli.Cmd) {
		owner, code := ownerCodeArgs(cmd)
		cmd.Action = func() {
			var st store.Store
			exitOnErr(withDeps(func(ctx context.Context) error {
				return st.SetInactive(ctx, *owner, normalizeCode(*code))
			}, &st))
		}
	})

	app.Command("resume", "Schedule a paused product again", func(cmd *cli.Cmd) {
		owner, code := ownerCodeArgs(cmd)
		cmd.Action = func() {
			var st store.Store
			exitOnErr(withDeps(func(ctx context.Context) error {
				return st.Reactivate(ctx, *owner, normalizeCode(*code))
			}, &st))
		}
	})

	app.Command("list", "List an owner's products", func(cmd *cli.Cmd) {
		owner := cmd.StringArg("OWNER", "", "owner identity")
		cmd.Action = func() {
			var st store.Store
			exitOnErr(withDeps(func(ctx context.Context) error {
				ps, err := st.ListProducts(ctx, *owner)
				if err != nil {
					return err
				}
				printProducts(ps)
				return nil
			}, &st))
		}
	})

	app.Command("history", "Show the replaced prices of a product", func(cmd *cli.Cmd) {
		cmd.Spec = "[--limit] OWNER PRODUCT"
		limit := cmd.IntOpt("limit", store.DefaultHistoryLen, "number of samples")
		owner, code := ownerCodeArgs(cmd)
		cmd.Action = func() {
			var st store.Store
			exitOnErr(withDeps(func(ctx context.Context) error {
				p, err := st.FindProduct(ctx, *owner, normalizeCode(*code))
				if err != nil {
					return err
				}
				samples, err := st.PriceHistory(ctx, p.ID, *limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "REPLACED AT\tPRICE\tAVAILABILITY")
				for _, s := range samples {
					fmt.Fprintf(w, "%s\t%s\t%s\n", s.CheckedAt.Format(time.RFC3339), s.Price.StringFixed(2), s.Availability)
				}
				return w.Flush()
			}, &st))
		}
	})

	app.Command("check", "Check a product now", func(cmd *cli.Cmd) {
		owner, code := ownerCodeArgs(cmd)
		cmd.Action = func() {
			var checker *monitor.Checker
			exitOnErr(withDeps(func(ctx context.Context) error {
				out, err := checker.CheckNow(ctx, *owner, normalizeCode(*code))
				if err != nil {
					return err
				}
				printProducts([]store.Product{out.Product})
				fmt.Printf("cached=%v notifications=%d\n", out.Cached, out.Notified)
				return nil
			}, &checker))
		}
	})

	if err := app.Run(os.Args); err != nil {
		slog.Error("stockwatch failed", "error", err)
		os.Exit(1)
	}
}

func ownerCodeArgs(cmd *cli.Cmd) (*string, *string) {
	if cmd.Spec == "" {
		cmd.Spec = "OWNER PRODUCT"
	}
	owner := cmd.StringArg("OWNER", "", "owner identity")
	code := cmd.StringArg("PRODUCT", "", "product link or catalog code")
	return owner, code
}

func normalizeCode(s string) string {
	if code, ok := scraper.ParseCode(s); ok {
		return code
	}
	return s
}

// withDeps builds the dependency graph, fills targets and runs fn with a bounded context.
func withDeps(fn func(ctx context.Context) error, targets ...any) error {
	app := fx.New(Module, fx.NopLogger, fx.Populate(targets...))

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			slog.Warn("shutdown failed", "error", err)
		}
	}()

	ctx, cancelCmd := context.WithTimeout(context.Background(), commandTimeout)
	defer cancelCmd()
	return fn(ctx)
}

func exitOnErr(err error) {
	if err == nil {
		return
	}
	var limited *monitor.RefreshLimitedError
	switch {
	case errors.As(err, &limited):
		fmt.Fprintf(os.Stderr, "too many checks, try again in %s\n", limited.Wait.Round(time.Second))
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(os.Stderr, "product is not tracked")
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	cli.Exit(1)
}

func printProducts(ps []store.Product) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tAVAILABILITY\tPRICE\tPREVIOUS\tLAST CHECKED\tFAILS\tTITLE")
	for _, p := range ps {
		lastChecked := "never"
		if !p.LastChecked.IsZero() {
			lastChecked = p.LastChecked.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Code, p.Availability, formatPrice(p.CurrentPrice.Valid, p.CurrentPrice.Decimal.StringFixed(2)),
			formatPrice(p.PreviousPrice.Valid, p.PreviousPrice.Decimal.StringFixed(2)),
			lastChecked, p.FailCount, p.Title)
	}
	w.Flush()
}

func formatPrice(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}
