package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"stock-autotrader/internal/marketdata/yahoo"
	"stock-autotrader/internal/optimizer"
	"stock-autotrader/internal/signal"
	"stock-autotrader/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	top := flag.Int("top", 10, "number of ranked combinations to print")
	out := flag.String("json", "", "write the full report to this file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	candles, err := yahoo.New("").Candles(ctx, cfg.Symbol, cfg.Candles.Interval, cfg.Candles.Period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch candles: %v\n", err)
		os.Exit(1)
	}

	grid := cfg.Grid()
	fmt.Printf("Backtesting %s on %d %s candles (%s), %d combinations\n\n",
		cfg.Symbol, len(candles), cfg.Candles.Interval, cfg.Candles.Period, grid.Combinations())

	start := time.Now()
	rep, err := optimizer.Optimize(candles, grid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Optimization failed: %v\n", err)
		os.Exit(1)
	}

	printReport(rep, *top, grid.InitialBalance, time.Since(start))

	if *out != "" {
		if err := saveReport(rep, *out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nFull report saved to %s\n", *out)
	}
}

func printReport(rep optimizer.Report, n int, initial float64, took time.Duration) {
	fmt.Printf("%-4s %-14s %7s %7s %12s %8s %7s\n", "#", "mode", "tp%", "sl%", "balance", "win%", "trades")
	for i, r := range rep.Top(n) {
		fmt.Printf("%-4d %-14s %7.2f %7.2f %12.2f %8.1f %7d\n",
			i+1, r.Mode, r.TakeProfitPct, r.StopLossPct, r.EndingBalance, r.WinRate*100, r.TradeCount)
	}

	best := rep.Best
	tp, sl := signal.TargetPrices(100, best.Thresholds())
	fmt.Println()
	fmt.Printf("Best: %s tp %.2f%% sl %.2f%% -> %.2f (%+.2f%% on %.0f)\n",
		best.Mode, best.TakeProfitPct, best.StopLossPct, best.EndingBalance,
		(best.EndingBalance/initial-1)*100, initial)
	fmt.Printf("Per 100.00 of entry: take profit at %.2f, stop loss at %.2f\n", tp, sl)
	fmt.Printf("Searched %d combinations in %s\n", len(rep.Results), took.Round(time.Millisecond))
}

func saveReport(rep optimizer.Report, filename string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
