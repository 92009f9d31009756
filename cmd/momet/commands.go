package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/momet-screener/db"
	"github.com/your-org/momet-screener/internal/alert"
	"github.com/your-org/momet-screener/internal/backtest"
	"github.com/your-org/momet-screener/internal/datastore"
	"github.com/your-org/momet-screener/internal/http/handler"
	"github.com/your-org/momet-screener/internal/indicator"
	"github.com/your-org/momet-screener/internal/joblog"
	"github.com/your-org/momet-screener/internal/marketdata"
	"github.com/your-org/momet-screener/internal/scenario"
)

// withRepository opens the connection pool for the duration of one command.
func withRepository(cmd *cobra.Command, fn func(repo *datastore.Repository) error) error {
	pool, err := datastore.Connect(cmd.Context(), cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(datastore.NewRepository(pool))
}

func loadScenario(cmd *cobra.Command, repo *datastore.Repository, name string) (*scenario.Scenario, error) {
	if name == "" {
		return repo.DefaultScenario(cmd.Context())
	}
	return repo.ScenarioByName(cmd.Context(), name)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.MigrateUp(cfg.Database.DSN()); err != nil {
				return err
			}
			log.Info("database schema is up to date")
			return nil
		},
	}
}

func newFetchCmd() *cobra.Command {
	var symbolCode string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch daily bars from Twelve Data for active symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(repo *datastore.Repository) error {
				client, err := marketdata.NewTwelveDataClient(cfg.TwelveData)
				if err != nil {
					return err
				}

				symbols, err := repo.AllActiveSymbols(cmd.Context())
				if err != nil {
					return err
				}
				if symbolCode != "" {
					filtered := symbols[:0]
					for _, sym := range symbols {
						if sym.Code == symbolCode {
							filtered = append(filtered, sym)
						}
					}
					symbols = filtered
					if len(symbols) == 0 {
						return fmt.Errorf("no active symbol with code %q", symbolCode)
					}
				}

				jobs := joblog.New("fetch_market_data", log, repo)
				fetcher := marketdata.NewFetcher(client, repo, jobs)
				result := fetcher.FetchAll(cmd.Context(), symbols)
				if result.Failed > 0 {
					return fmt.Errorf("%d of %d symbols failed", result.Failed, len(symbols))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&symbolCode, "symbol", "", "Fetch a single symbol instead of all active ones")
	return cmd
}

func newImportCSVCmd() *cobra.Command {
	var symbolCode, exchange, filePath string
	cmd := &cobra.Command{
		Use:   "import-csv",
		Short: "Import daily bars for one symbol from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(repo *datastore.Repository) error {
				sym, err := repo.EnsureSymbol(cmd.Context(), symbolCode, exchange)
				if err != nil {
					return err
				}

				f, err := os.Open(filePath)
				if err != nil {
					return err
				}
				defer f.Close()

				bars, err := marketdata.ReadBarsCSV(f, sym.ID)
				if err != nil {
					return err
				}
				if err := repo.UpsertBars(cmd.Context(), bars); err != nil {
					return err
				}
				log.Info("CSV import finished",
					zap.String("symbol", sym.Code), zap.Int("bars", len(bars)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&symbolCode, "symbol", "", "Symbol code, e.g. AAPL")
	cmd.Flags().StringVar(&exchange, "exchange", "", "Exchange code, e.g. NASDAQ")
	cmd.Flags().StringVar(&filePath, "file", "", "Path to the CSV file")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newComputeCmd() *cobra.Command {
	var scenarioName string
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute indicator records for a scenario's active symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(repo *datastore.Repository) error {
				scn, err := loadScenario(cmd, repo, scenarioName)
				if err != nil {
					return err
				}

				jobs := joblog.New("compute_indicators", log, repo)
				pipeline, err := indicator.NewPipeline(scn, repo, jobs, cfg.Compute.Workers)
				if err != nil {
					return err
				}

				symbols, err := repo.ActiveSymbols(cmd.Context(), scn.ID)
				if err != nil {
					return err
				}
				summary := pipeline.ComputeAll(cmd.Context(), symbols)
				log.Info("indicator batch finished",
					zap.String("scenario", scn.Name),
					zap.Int("metrics", summary.MetricsComputed),
					zap.Int("skipped", summary.SymbolsSkipped),
					zap.Int("failed", summary.SymbolsFailed))
				if summary.SymbolsFailed > 0 {
					return fmt.Errorf("%d symbols failed", summary.SymbolsFailed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scenarioName, "scenario", "", "Scenario name (default scenario when omitted)")
	return cmd
}

func newBacktestCmd() *cobra.Command {
	var (
		name, scenarioName, strategyName string
		cpStr, ctStr, xStr               string
		ctOverrides                      []string
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Create and execute a backtest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := decimal.NewFromString(cpStr)
			if err != nil {
				return fmt.Errorf("parse --cp: %w", err)
			}
			ct, err := decimal.NewFromString(ctStr)
			if err != nil {
				return fmt.Errorf("parse --ct: %w", err)
			}
			x, err := decimal.NewFromString(xStr)
			if err != nil {
				return fmt.Errorf("parse --x: %w", err)
			}

			return withRepository(cmd, func(repo *datastore.Repository) error {
				scn, err := loadScenario(cmd, repo, scenarioName)
				if err != nil {
					return err
				}
				rules, strategyID, err := repo.RuleSetByStrategyName(cmd.Context(), strategyName)
				if err != nil {
					return err
				}

				run := &backtest.Run{
					Name:       name,
					ScenarioID: scn.ID,
					StrategyID: strategyID,
					CP:         cp,
					CT:         ct,
					X:          x,
				}
				if err := repo.CreateRun(cmd.Context(), run); err != nil {
					return err
				}
				fmt.Printf("run id: %s\n", run.ID)

				for _, override := range ctOverrides {
					symbolID, ct, err := parseCTOverride(override)
					if err != nil {
						return err
					}
					if err := repo.SetCTOverride(cmd.Context(), run.ID, symbolID, ct); err != nil {
						return err
					}
				}

				jobs := joblog.New("backtest", log, repo)
				engine := backtest.NewEngine(run, scn, rules, repo, jobs)
				if err := engine.Run(cmd.Context()); err != nil {
					return err
				}

				fmt.Printf("status: %s\n", run.Status)
				fmt.Printf("trades: %d over %d trading days\n", run.TotalTrades, run.TradingDays)
				if run.TotalBT.Valid {
					fmt.Printf("total BT: %s\n", run.TotalBT.Decimal.StringFixed(4))
				}
				if run.TotalBMJ.Valid {
					fmt.Printf("total BMJ: %s\n", run.TotalBMJ.Decimal.StringFixed(4))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Run name")
	cmd.Flags().StringVar(&scenarioName, "scenario", "", "Scenario name (default scenario when omitted)")
	cmd.Flags().StringVar(&strategyName, "strategy", "", "Strategy name")
	cmd.Flags().StringVar(&cpStr, "cp", "0", "Position size reference capital")
	cmd.Flags().StringVar(&ctStr, "ct", "1000", "Starting capital per symbol")
	cmd.Flags().StringVar(&xStr, "x", "50", "Tradability threshold on ratio_P, in percent")
	cmd.Flags().StringArrayVar(&ctOverrides, "ct-override", nil,
		"Per-symbol starting capital as symbolID=amount, repeatable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("strategy")
	return cmd
}

func parseCTOverride(s string) (int64, decimal.Decimal, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return 0, decimal.Decimal{}, fmt.Errorf("invalid --ct-override %q, want symbolID=amount", s)
	}
	symbolID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, decimal.Decimal{}, fmt.Errorf("invalid symbol id in --ct-override %q: %w", s, err)
	}
	ct, err := decimal.NewFromString(parts[1])
	if err != nil {
		return 0, decimal.Decimal{}, fmt.Errorf("invalid amount in --ct-override %q: %w", s, err)
	}
	return symbolID, ct, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the status and health HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(repo *datastore.Repository) error {
				r := chi.NewRouter()
				r.Get("/health", handler.HealthCheckHandler)
				r.Route("/api", func(r chi.Router) {
					handler.NewRunHandler(repo).RegisterRoutes(r)
				})

				log.Info("HTTP server starting", zap.String("addr", cfg.HTTP.ListenAddr))
				return http.ListenAndServe(cfg.HTTP.ListenAddr, r)
			})
		},
	}
}

func newNotifyCmd() *cobra.Command {
	var dateStr string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send the daily alert digest by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
			if err != nil {
				return fmt.Errorf("parse --date: %w", err)
			}

			return withRepository(cmd, func(repo *datastore.Repository) error {
				rows, err := repo.AlertDigestRows(cmd.Context(), date)
				if err != nil {
					return err
				}

				var notifier alert.Notifier
				if cfg.Email.Host != "" {
					notifier, err = alert.NewSMTPNotifier(cfg.Email)
					if err != nil {
						return err
					}
				} else {
					log.Warn("email not configured, digest will not be delivered")
					notifier = alert.NewNoOpNotifier()
				}

				jobs := joblog.New("send_digest", log, repo)
				if err := notifier.Send(alert.DigestSubject(date), alert.DigestBody(date, rows)); err != nil {
					jobs.Error(cmd.Context(), fmt.Sprintf("digest delivery failed: %v", err))
					return err
				}
				jobs.Info(cmd.Context(), fmt.Sprintf("digest for %s sent with %d signal(s)", dateStr, len(rows)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", time.Now().UTC().Format("2006-01-02"), "Digest date (YYYY-MM-DD)")
	return cmd
}

func newPruneLogsCmd() *cobra.Command {
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "prune-logs",
		Short: "Delete job log entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(repo *datastore.Repository) error {
				removed, err := repo.DeleteOldJobLogs(cmd.Context(), time.Duration(maxAgeDays)*24*time.Hour)
				if err != nil {
					return err
				}
				log.Info("job logs pruned", zap.Int64("removed", removed))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age", 30, "Retention window in days")
	return cmd
}
