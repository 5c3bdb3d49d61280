package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tendermint/tendermint/libs/log"
)

var logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))

func main() {
	var (
		endpoints   string
		connections int
		rate        int
		size        int
		duration    int
		verbose     bool
	)

	flag.StringVar(&endpoints, "endpoints", "127.0.0.1:26657",
		"comma-separated list of node RPC endpoints")
	flag.IntVar(&connections, "c", 1, "websocket connections per endpoint")
	flag.IntVar(&rate, "r", 100, "transactions per second per connection")
	flag.IntVar(&size, "s", 250, "transaction payload size in bytes")
	flag.IntVar(&duration, "T", 10, "duration of the run in seconds")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	if !verbose {
		logger = log.NewFilter(logger, log.AllowError())
	}

	transacters := []*transacter{}
	for _, target := range strings.Split(endpoints, ",") {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		t := newTransacter(target, connections, rate, size)
		t.SetLogger(logger)
		if err := t.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start transacter for %s: %v\n", target, err)
			os.Exit(1)
		}
		transacters = append(transacters, t)
	}

	if len(transacters) == 0 {
		fmt.Fprintln(os.Stderr, "no endpoints given")
		os.Exit(1)
	}

	time.Sleep(time.Duration(duration) * time.Second)

	var total int64
	for _, t := range transacters {
		t.Stop()
		total += t.sent.Count()
		fmt.Printf("%s: sent %d txs, %.1f tx/s, batch send time mean %.2fms p95 %.2fms\n",
			t.Target,
			t.sent.Count(),
			t.sent.RateMean(),
			t.latency.Mean()/1000,
			t.latency.Percentile(0.95)/1000,
		)
	}
	fmt.Printf("total: %d txs over %ds\n", total, duration)
}
