// Package main replays a recorded price history through the engine and
// prints the resulting performance summary. Useful for parameter tuning
// without a live feed.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	auditmem "meanrev-engine/internal/audit/memory"
	"meanrev-engine/internal/config"
	"meanrev-engine/internal/domain"
	"meanrev-engine/internal/engine"
	"meanrev-engine/internal/feed/stub"
	"meanrev-engine/internal/gateway"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("ENGINE_CONFIG"), "Path to YAML config file")
	inputPath := flag.String("input", "", "CSV file with timestamp,price,volume rows")
	logLevel := flag.String("log-level", "warn", "Log level during replay")

	flag.Parse()

	logger := newLogger(*logLevel)

	if *inputPath == "" {
		logger.Fatal().Msg("--input is required")
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}

	samples, err := readSamples(*inputPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read price history")
	}
	if len(samples) == 0 {
		logger.Fatal().Msg("price history is empty")
	}

	replayFeed := stub.NewReplayFeed(samples)
	gw := gateway.NewSimulated(gateway.SimulatedOptions{
		SlippageBps: cfg.SlippageBps,
		Logger:      logger,
	})
	sink := auditmem.NewSink(cfg.AuditBuffer)

	eng, err := engine.New(engine.Options{
		Config:  cfg,
		Feed:    replayFeed,
		Gateway: gw,
		Audit:   sink,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create engine")
	}

	// Run returns once the replay feed drains and closes its channel.
	if err := eng.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("replay failed")
	}

	printSummary(eng, gw, len(samples))
}

// readSamples parses CSV rows of timestamp,price,volume. Timestamps may be
// RFC 3339 or unix seconds. A header row is skipped automatically.
func readSamples(path string) ([]domain.PriceSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3

	var samples []domain.PriceSample
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		ts, err := parseTimestamp(record[0])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse price: %w", line, err)
		}
		volume, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse volume: %w", line, err)
		}

		samples = append(samples, domain.PriceSample{
			Price:     price,
			Volume:    volume,
			Timestamp: ts,
		})
	}

	return samples, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

func printSummary(eng *engine.Engine, gw *gateway.Simulated, sampleCount int) {
	st := eng.Stats()

	fmt.Printf("Replay complete: %d samples\n", sampleCount)
	fmt.Printf("  Ticks processed:    %d\n", st.TicksProcessed)
	fmt.Printf("  Signals emitted:    %d\n", st.SignalsEmitted)
	fmt.Printf("  Orders executed:    %d\n", st.OrdersExecuted)
	fmt.Printf("  Fills recorded:     %d\n", len(gw.Fills()))
	fmt.Printf("  Trades closed:      %d (W %d / L %d, win rate %.1f%%)\n",
		st.Trades, st.Wins, st.Losses, st.WinRate*100)
	fmt.Printf("  Realized P&L:       %.2f\n", st.RealizedPnl)
	fmt.Printf("  Open position:      %s", st.Position.Side)
	if st.Position.Side != "FLAT" {
		fmt.Printf(" (size %.4f @ %.4f)", st.Position.Size, st.Position.EntryPrice)
	}
	fmt.Println()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
