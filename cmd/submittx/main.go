package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/arcsign/ethtxmgr/internal/cli"
	"github.com/arcsign/ethtxmgr/internal/config"
	"github.com/arcsign/txmgr"
	"github.com/arcsign/txmgr/chain"
	"github.com/arcsign/txmgr/metrics"
	"github.com/arcsign/txmgr/oracle"
	"github.com/arcsign/txmgr/rpc"
	"github.com/arcsign/txmgr/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const Version = "0.1.0"

func main() {
	mode := cli.DetectMode()

	if mode == cli.ModeDashboard {
		handleDashboardMode()
		return
	}
	handleInteractiveMode()
}

// handleDashboardMode drives one submission from environment variables,
// writing the single-line JSON cli.Response a dashboard frontend expects to
// stdout and logging progress to stderr.
func handleDashboardMode() {
	start := time.Now()
	requestID := uuid.NewString()
	cli.WriteLog(fmt.Sprintf("submittx v%s - dashboard mode, request %s", Version, requestID))

	cfgPath := os.Getenv("SUBMITTX_CONFIG")
	if cfgPath == "" {
		cfgPath = "submittx.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		respondError(requestID, start, cli.ErrInvalidSchema, err.Error())
		return
	}

	from := os.Getenv("SUBMITTX_FROM")
	to := os.Getenv("SUBMITTX_TO")
	valueStr := os.Getenv("SUBMITTX_VALUE")
	if from == "" {
		respondError(requestID, start, cli.ErrInvalidSchema, "SUBMITTX_FROM environment variable not set")
		return
	}

	req := txmgr.Request{From: common.HexToAddress(from)}
	if to != "" {
		toAddr := common.HexToAddress(to)
		req.To = &toAddr
	}
	if valueStr != "" {
		v, ok := new(big.Int).SetString(valueStr, 10)
		if !ok {
			respondError(requestID, start, cli.ErrInvalidSchema, "SUBMITTX_VALUE is not a base-10 integer")
			return
		}
		req.Value = v
	}

	receipt, err := submit(cfg, req)
	if err != nil {
		respondError(requestID, start, cli.ErrSubmission, err.Error())
		return
	}

	cli.WriteJSON(cli.Response{
		Success:    true,
		Data:       receipt,
		RequestID:  requestID,
		CliVersion: Version,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

func respondError(requestID string, start time.Time, code, message string) {
	cli.WriteLog(fmt.Sprintf("request %s failed: %s", requestID, message))
	cli.WriteJSON(cli.Response{
		Success:    false,
		Error:      cli.NewError(code, message),
		RequestID:  requestID,
		CliVersion: Version,
		DurationMs: time.Since(start).Milliseconds(),
	})
	os.Exit(1)
}

// handleInteractiveMode is the flag-driven human CLI: submit one
// transaction, log its progress through the state machine to stderr, and
// print the confirmed receipt to stdout.
func handleInteractiveMode() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "submit":
		runSubmitCommand(os.Args[2:])
	case "version":
		fmt.Printf("submittx v%s\n", Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runSubmitCommand(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	configPath := fs.String("config", "submittx.json", "path to the submittx config file")
	from := fs.String("from", "", "sending address (required)")
	to := fs.String("to", "", "recipient address (empty for contract creation)")
	value := fs.String("value", "0", "value to send, in wei, as a base-10 integer")
	priority := fs.String("priority", "normal", "lowest|low|normal|high|highest")
	fs.Parse(args)

	if *from == "" {
		fmt.Fprintln(os.Stderr, "submit: -from is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}

	v, ok := new(big.Int).SetString(*value, 10)
	if !ok {
		fmt.Fprintln(os.Stderr, "submit: -value is not a base-10 integer")
		os.Exit(1)
	}

	req := txmgr.Request{From: common.HexToAddress(*from), Value: v}
	if *to != "" {
		toAddr := common.HexToAddress(*to)
		req.To = &toAddr
	}

	prio, err := parsePriority(*priority)
	if err != nil {
		fmt.Fprintln(os.Stderr, "submit:", err)
		os.Exit(1)
	}

	receipt, err := submitWithPriority(cfg, req, prio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submission failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("confirmed: hash=%s block=%d status=%d gasUsed=%d\n", receipt.TxHash.Hex(), receipt.BlockNumber, receipt.Status, receipt.GasUsed)
}

func parsePriority(s string) (txmgr.Priority, error) {
	switch strings.ToLower(s) {
	case "lowest":
		return txmgr.PriorityLowest, nil
	case "low":
		return txmgr.PriorityLow, nil
	case "normal":
		return txmgr.PriorityNormal, nil
	case "high":
		return txmgr.PriorityHigh, nil
	case "highest":
		return txmgr.PriorityHighest, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

func submit(cfg *config.Config, req txmgr.Request) (*txmgr.Receipt, error) {
	return submitWithPriority(cfg, req, txmgr.PriorityNormal)
}

// submitWithPriority wires the concrete collaborators (metrics-recording
// RPC transport over a failover+rate-limited HTTP client, the chain-market
// fee oracle, file persistence, Prometheus metrics, an optional WebSocket
// newHeads feed) into a Manager and drives one submission. Recovery runs
// automatically inside txmgr.New: if submittx crashed mid-submission, this
// call resumes and finishes it before a new Request is ever considered.
func submitWithPriority(cfg *config.Config, req txmgr.Request, priority txmgr.Priority) (*txmgr.Receipt, error) {
	met := metrics.NewPrometheusMetrics()
	logger := log.New(os.Stderr, "submittx: ", log.LstdFlags)

	health := rpc.NewSimpleHealthTracker()
	httpClient, err := rpc.NewHTTPClient(cfg.RPCEndpoints, 30*time.Second, health, 20.0)
	if err != nil {
		return nil, fmt.Errorf("construct rpc client: %w", err)
	}
	client := rpc.NewMetricsClient(httpClient, met)
	defer client.Close()

	adapter := chain.NewRPCAdapter(client)
	orc := oracle.NewDefaultOracle(adapter)
	st, err := store.NewFileStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr, recovered, err := txmgr.New(ctx, req.From, cfg.ChainDescriptor(), adapter, orc, st, met, logger, cfg.ManagerConfig())
	if err != nil {
		return nil, fmt.Errorf("recover prior submission: %w", err)
	}
	if recovered != nil {
		return recovered, nil
	}

	// A WebSocket endpoint, when configured, feeds newHeads pushes into the
	// poll loop so ticks fire on real block arrival instead of only on the
	// interval timer. Subscription failure just means we poll.
	if cfg.WSEndpoint != "" {
		if ws, wsErr := rpc.NewWSClient(cfg.WSEndpoint); wsErr != nil {
			logger.Printf("newHeads feed unavailable: %v", wsErr)
		} else {
			defer ws.Close()
			if heads, subErr := ws.Subscribe(ctx, "eth_subscribe", []interface{}{"newHeads"}); subErr != nil {
				logger.Printf("newHeads subscription failed: %v", subErr)
			} else {
				mgr.WatchHeads(heads)
			}
		}
	}

	go func() {
		for ev := range mgr.Updates() {
			if ev.Record != nil {
				logger.Printf("state: %s nonce=%d attempts=%d", ev.Kind, ev.Record.Nonce, len(ev.Record.Attempts))
			} else {
				logger.Printf("state: %s", ev.Kind)
			}
		}
	}()

	receipt, err := mgr.Submit(ctx, req, cfg.Confirmations, priority)
	logger.Printf("rpc health: %s", met.GetHealthStatus().Message)
	return receipt, err
}

func printUsage() {
	fmt.Println("submittx - crash-safe Ethereum transaction submission")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  submittx submit -from 0x... [-to 0x...] [-value wei] [-priority normal] -config submittx.json")
	fmt.Println("  submittx version")
	fmt.Println("  submittx help")
	fmt.Println()
	fmt.Println("Dashboard mode: set SUBMITTX_MODE=dashboard and supply SUBMITTX_FROM, SUBMITTX_TO,")
	fmt.Println("SUBMITTX_VALUE, and SUBMITTX_CONFIG as environment variables.")
}
