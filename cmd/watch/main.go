// cmd/watch/main.go
//
// watch connects to the configured node, subscribes to both Raydium programs
// and prints every pool it can decode. It never trades.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raydium-sniper-bot/internal/client"
	"raydium-sniper-bot/internal/config"
	"raydium-sniper-bot/internal/logger"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/sniper"
)

var (
	network      = flag.String("network", "mainnet", "Network to watch (mainnet/devnet)")
	rpcURL       = flag.String("rpc", "", "RPC endpoint (defaults to the public endpoint of the network)")
	wsURL        = flag.String("ws", "", "WebSocket endpoint (defaults to the public endpoint of the network)")
	commitment   = flag.String("commitment", "confirmed", "Subscription commitment")
	verbose      = flag.Bool("v", false, "Log skipped and unrelated transactions")
	statsEvery   = flag.Duration("stats", 30*time.Second, "Status interval")
	solPairsOnly = flag.Bool("sol-only", false, "Only print pools paired with SOL")
)

func main() {
	flag.Parse()

	fmt.Println("🔍 Watching Raydium pool creation")
	fmt.Println("=================================")

	level := "info"
	if *verbose {
		level = "debug"
	}
	log, err := logger.NewLogger(logger.LogConfig{Level: level, Format: "custom"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if *rpcURL == "" {
		*rpcURL = config.GetRPCEndpoint(*network)
	}
	if *wsURL == "" {
		*wsURL = config.GetWSEndpoint(*network)
	}
	fmt.Printf("Network: %s\nRPC URL: %s\nWebSocket URL: %s\n\n", *network, *rpcURL, *wsURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("1️⃣ Testing RPC connection...")
	rpc := client.NewClient(client.ClientConfig{RPCEndpoint: *rpcURL, Commitment: *commitment}, log.WithComponent("rpc"))
	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	blockhash, err := rpc.GetLatestBlockhash(pingCtx)
	pingCancel()
	if err != nil {
		log.WithError(err).Fatal("❌ RPC connection failed")
	}
	fmt.Printf("✅ RPC connection successful! Latest blockhash: %s\n\n", blockhash)

	fmt.Println("2️⃣ Connecting WebSocket...")
	ws := client.NewWSClient(*wsURL, log.WithComponent("ws"))
	if err := ws.Connect(ctx); err != nil {
		log.WithError(err).Fatal("❌ WebSocket connection failed")
	}

	stats := sniper.NewStats()
	listener := sniper.NewListener(ws, rpc, sniper.ListenerConfig{Commitment: *commitment}, stats, log.WithComponent("listener"))
	if err := listener.Start(); err != nil {
		log.WithError(err).Fatal("❌ Failed to subscribe")
	}

	go func() {
		if err := ws.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("❌ WebSocket stopped")
			cancel()
		}
	}()
	go listener.Run(ctx)

	fmt.Println("3️⃣ Listening for new pools... (Press Ctrl+C to stop)")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*statsEvery)
	defer ticker.Stop()

	classifier := raydium.NewClassifier(log.WithComponent("classifier"))
	start := time.Now()
	pools := 0

	for {
		select {
		case <-sigChan:
			fmt.Println("\n🛑 Shutting down...")
			cancel()
			ws.Close()
			printSummary(start, pools, stats)
			return

		case <-ctx.Done():
			printSummary(start, pools, stats)
			return

		case tx := <-listener.Transactions():
			cls := classifier.Classify(tx)
			switch cls.Outcome {
			case raydium.OutcomeNewPool:
				stats.Decoded.Add(1)
				if *solPairsOnly && !cls.Event.IsSOLPair() {
					stats.Skipped.Add(1)
					continue
				}
				pools++
				log.LogPoolDetected(cls.Event)
				printPool(cls.Event)
			case raydium.OutcomeMalformed:
				stats.Malformed.Add(1)
				log.LogDecodeSkip(cls)
			default:
				stats.Unrelated.Add(1)
			}

		case <-ticker.C:
			elapsed := time.Since(start)
			fmt.Printf("📊 Status: %d pools, %d notifications in %v (%.2f pools/min)\n",
				pools, stats.Received.Load(), elapsed.Truncate(time.Second), float64(pools)/elapsed.Minutes())

			if stats.Received.Load() == 0 {
				fmt.Println("⚠️  No notifications received yet. This could mean:")
				fmt.Println("   - The node does not support logsSubscribe")
				fmt.Println("   - The subscription commitment is too strict")
				fmt.Println("   - The WebSocket URL points to another cluster")
			}
		}
	}
}

func printPool(ev raydium.PoolEvent) {
	fmt.Printf("🆕 %s pool %s\n", ev.Variant, ev.PoolAddress)
	fmt.Printf("   token: %s  sol pair: %v\n", ev.TokenMint(), ev.IsSOLPair())
	fmt.Printf("   base:  %s (vault %s)\n", ev.BaseMint, ev.BaseVault)
	fmt.Printf("   quote: %s (vault %s)\n", ev.QuoteMint, ev.QuoteVault)
	if ev.Raw.OpenTime > 0 {
		fmt.Printf("   opens: %s\n", time.Unix(int64(ev.Raw.OpenTime), 0).UTC().Format(time.RFC3339))
	}
	fmt.Printf("   tx:    %s (slot %d)\n", ev.Raw.Signature, ev.Raw.Slot)
}

func printSummary(start time.Time, pools int, stats *sniper.Stats) {
	elapsed := time.Since(start)
	fmt.Printf("📊 Statistics:\n")
	fmt.Printf("  - Running time: %v\n", elapsed.Truncate(time.Second))
	fmt.Printf("  - Pools printed: %d\n", pools)
	for k, v := range stats.Snapshot() {
		fmt.Printf("  - %s: %v\n", k, v)
	}
}
