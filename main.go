package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bhtaylor94/Stock-data/config"
	"github.com/bhtaylor94/Stock-data/engine"
	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/state"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the config.yaml file")
	mode := flag.String("mode", "", "Override trading_mode from the config file (paper or live)")
	showStatus := flag.Bool("status", false, "Print the last persisted status and exit")
	logLevel := flag.String("log-level", "", "Override logs.log_level from the config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: .env file not found, will continue using system environment variables.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Fatal error: Unable to load config file '%s': %v\n", *configPath, err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.TradingMode = config.TradingMode(*mode)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("Fatal error: %v\n", err)
			os.Exit(1)
		}
	}

	logFilename := filepath.Join(cfg.Normal.LogDirectory, fmt.Sprintf("engine_%s.log", cfg.TradingMode))
	stateFilename := filepath.Join(cfg.Normal.StateDirectory, fmt.Sprintf("%s_state.json", cfg.TradingMode))

	if *showStatus {
		if err := printStatus(stateFilename); err != nil {
			fmt.Printf("Fatal error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := logs.Init(cfg.Logs, logFilename); err != nil {
		fmt.Printf("Fatal error: Failed to initialize logging system: %v\n", err)
		os.Exit(1)
	}
	defer logs.Close()
	if *logLevel != "" {
		if err := logs.SetLevel(*logLevel); err != nil {
			logs.Fatalf("Invalid -log-level: %v", err)
		}
	}

	logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFilename)

	if cfg.TradingMode == config.ModeLive {
		logs.Warn("!!!!!!!!!! LIVE TRADING: real orders will be sent to the broker !!!!!!!!!!")
		for i := 5; i > 0; i-- {
			logs.Warnf("Starting live engine in %d... (Ctrl+C to abort)", i)
			time.Sleep(time.Second)
		}
	}

	orchestrator, err := NewOrchestrator(cfg, config.LoadEnvConfig(), stateFilename)
	if err != nil {
		logs.Fatalf("Failed to initialize Orchestrator: %v", err)
	}
	if err := orchestrator.Start(); err != nil {
		logs.Fatalf("Failed to start Orchestrator: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	orchestrator.Stop()
}

// printStatus reads the state file without starting the engine.
func printStatus(stateFilename string) error {
	st, err := state.LoadState(stateFilename)
	if err != nil {
		return fmt.Errorf("unable to read state file '%s': %w", stateFilename, err)
	}
	out, err := json.MarshalIndent(engine.StatusFromState(st), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
