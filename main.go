package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/swarmguard/dpi-sniffer/capture"
	"github.com/swarmguard/dpi-sniffer/internal/corelog"
	"github.com/swarmguard/dpi-sniffer/internal/otelinit"
	"github.com/swarmguard/dpi-sniffer/scanner"
)

const (
	defaultIface   = "en0"
	defaultCatalog = "SnortPatternsFull2.json"
)

type cliArgs struct {
	inIface  string
	outIface string
	rules    string
}

func parseArgs(argv []string) (cliArgs, error) {
	var args cliArgs
	for _, a := range argv {
		if a == "auto" {
			return cliArgs{inIface: defaultIface, outIface: defaultIface, rules: defaultCatalog}, nil
		}
		param, val, ok := strings.Cut(a, ":")
		if !ok {
			continue
		}
		switch param {
		case "in":
			args.inIface = val
		case "out":
			args.outIface = val
		case "rules":
			args.rules = val
		}
	}
	if args.inIface == "" || args.outIface == "" || args.rules == "" {
		return cliArgs{}, fmt.Errorf("missing required argument")
	}
	return args, nil
}

func usage(prog string) {
	fmt.Fprintf(os.Stderr, "Usage: %s in:<input-interface> out:<output-interface> rules:<rules file>\n", prog)
	fmt.Fprintf(os.Stderr, "   or: %s auto\n", prog)
	fmt.Fprintln(os.Stderr, "This tool may require root privileges.")
}

func main() {
	os.Exit(run())
}

func run() int {
	logger := corelog.Init("dpi-sniffer")

	args, err := parseArgs(os.Args[1:])
	if err != nil {
		usage(os.Args[0])
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	shutdownTracer := otelinit.InitTracer(ctx, "dpi-sniffer")
	defer otelinit.Flush(context.Background(), shutdownTracer)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, "dpi-sniffer")
	defer shutdownMetrics(context.Background())

	minLen := envInt("DPI_RULE_MIN_LEN", scanner.DefaultMinPatternLength)
	reportCap := envInt("DPI_REPORT_CAP", scanner.MaxReports)

	matcher, err := scanner.NewReloadableMatcher(args.rules, minLen, 30*time.Second)
	if err != nil {
		logger.Error("failed to load rule catalog", "path", args.rules, "error", err)
		return 1
	}
	defer matcher.Stop()

	rawRules, err := scanner.ReadCatalog(args.rules)
	if err != nil {
		logger.Warn("failed to read catalog for regex collaborator", "error", err)
	}
	regexCollab, err := scanner.NewRegexCollaborator(rawRules)
	if err != nil {
		logger.Warn("regex collaborator unavailable, continuing without it", "error", err)
	}
	defer regexCollab.Close()

	debugAddr := os.Getenv("DPI_DEBUG_ADDR")
	if debugAddr == "" {
		debugAddr = ":8090"
	}
	dbg := newDebugServer(debugAddr, regexCollab)
	dbg.start()
	defer dbg.shutdown(context.Background())
	logger.Info("debug server listening", "addr", debugAddr, "regex_rules", regexCollab.Count())

	alerts, err := capture.NewAlertPublisher(os.Getenv("DPI_ALERT_NATS_URL"), "dpi.matches")
	if err != nil {
		logger.Warn("alert publisher unavailable, continuing without it", "error", err)
	}
	defer alerts.Close()

	pipeline, err := capture.Open(capture.Config{
		InIface:   args.inIface,
		OutIface:  args.outIface,
		Promisc:   true,
		ReportCap: reportCap,
		OnInjectFail: func(err error) {
			logger.Warn("packet injection failed", "error", err)
		},
	}, matcher, alerts)
	if err != nil {
		logger.Error("failed to open capture pipeline", "error", err)
		return 1
	}
	defer pipeline.Close()

	logger.Info("sniffer running", "in", args.inIface, "out", args.outIface, "rules", args.rules)

	runErr := pipeline.Run(ctx)

	stats := pipeline.Stats()
	fmt.Fprintf(os.Stdout, "Total bytes: %d\n", stats.TotalBytesScanned)
	fmt.Fprintf(os.Stdout, "Total time: %d usec.\n", stats.Elapsed.Microseconds())
	fmt.Fprintf(os.Stdout, "Total throughput: %.3f Mbps\n", stats.ThroughputMbps)
	fmt.Fprintf(os.Stdout, "Packets dropped by injection breaker: %d\n", stats.TotalBreakerDrops)

	if runErr != nil {
		logger.Error("capture loop terminated abnormally", "error", runErr)
		return 1
	}
	return 0
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
