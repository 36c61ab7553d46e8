package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/api"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/data"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/vm"
)

var cmdStress = &cobra.Command{
	Use:   "stress",
	Short: "Stress test a running Arrow server",
	Args:  cobra.NoArgs,
	Run:   stress,
}

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address     string
	Concurrency int
	Duration    time.Duration
	BlockSize   int
	Keys        int
	AuthToken   string
	ReportFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
	TxnsPerSec     float64
}

var flagStress StressTestConfig

func init() {
	cmdMain.AddCommand(cmdStress)
	cmdStress.Flags().StringVar(&flagStress.Address, "addr", "127.0.0.1:50051", "Arrow server address")
	cmdStress.Flags().IntVarP(&flagStress.Concurrency, "concurrency", "j", 10, "Number of concurrent connections")
	cmdStress.Flags().DurationVarP(&flagStress.Duration, "duration", "d", 30*time.Second, "Duration of test")
	cmdStress.Flags().IntVarP(&flagStress.BlockSize, "txns", "n", 100, "Transactions per block")
	cmdStress.Flags().IntVarP(&flagStress.Keys, "keys", "k", 1000, "Number of accounts")
	cmdStress.Flags().StringVar(&flagStress.AuthToken, "token", "", "Authentication token; empty skips the handshake")
	cmdStress.Flags().StringVarP(&flagStress.ReportFile, "output", "o", "", "Output report file (JSON)")
}

func stress(*cobra.Command, []string) {
	config := flagStress

	fmt.Println("=== HieraChain Arrow Server Stress Test ===")
	fmt.Printf("Target: %s\n", config.Address)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	fmt.Printf("Duration: %v\n", config.Duration)
	fmt.Printf("Block size: %d txns over %d keys\n", config.BlockSize, config.Keys)
	fmt.Println()

	result := runStressTest(config)
	printResults(result)

	if config.ReportFile != "" {
		check(saveReport(config, result))
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}

type stressCounters struct {
	total, success, failed atomic.Int64
	latencySum             atomic.Int64
	minLatency, maxLatency atomic.Int64
}

func (c *stressCounters) observe(lat time.Duration) {
	c.success.Add(1)
	c.latencySum.Add(int64(lat))
	for {
		old := c.minLatency.Load()
		if int64(lat) >= old || c.minLatency.CompareAndSwap(old, int64(lat)) {
			break
		}
	}
	for {
		old := c.maxLatency.Load()
		if int64(lat) <= old || c.maxLatency.CompareAndSwap(old, int64(lat)) {
			break
		}
	}
}

func runStressTest(config StressTestConfig) StressTestResult {
	var (
		counters stressCounters
		wg       sync.WaitGroup
		stop     = make(chan struct{})
	)
	counters.minLatency.Store(1<<63 - 1)

	startTime := time.Now()
	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(workerID, config, stop, &counters)
		}(i)
	}

	time.Sleep(config.Duration)
	close(stop)
	wg.Wait()

	duration := time.Since(startTime)
	success := counters.success.Load()
	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(counters.latencySum.Load() / success)
	}
	minLat := counters.minLatency.Load()
	if success == 0 {
		minLat = 0
	}

	return StressTestResult{
		TotalRequests:  counters.total.Load(),
		SuccessfulReqs: success,
		FailedReqs:     counters.failed.Load(),
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLat),
		MaxLatency:     time.Duration(counters.maxLatency.Load()),
		RequestsPerSec: float64(counters.total.Load()) / duration.Seconds(),
		TxnsPerSec:     float64(success*int64(config.BlockSize)) / duration.Seconds(),
	}
}

// runWorker keeps one connection open and sends generated blocks until
// stopped, reconnecting after failures.
func runWorker(id int, config StressTestConfig, stop chan struct{}, c *stressCounters) {
	rng := rand.New(rand.NewSource(int64(id) + 1))
	converter := data.NewConverter()
	codec := data.NewIPCCodec()

	var conn net.Conn
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if conn == nil {
			var err error
			if conn, err = dialServer(config); err != nil {
				c.total.Add(1)
				c.failed.Add(1)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		payload, err := encodeRandomBlock(rng, converter, codec, config)
		if err != nil {
			fatalf("encode block: %v", err)
		}

		start := time.Now()
		err = sendBlock(conn, payload)
		c.total.Add(1)
		if err != nil {
			c.failed.Add(1)
			_ = conn.Close()
			conn = nil
			time.Sleep(10 * time.Millisecond)
			continue
		}
		c.observe(time.Since(start))
	}
}

func dialServer(config StressTestConfig) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", config.Address, 5*time.Second)
	if err != nil {
		return nil, err
	}
	if config.AuthToken == "" {
		return conn, nil
	}

	frame, _ := json.Marshal(api.AuthMessage{Type: api.AuthMessageType, Token: config.AuthToken})
	var resp api.AuthResponse
	err = api.WriteMessage(conn, frame)
	if err == nil {
		var raw []byte
		if raw, err = api.ReadMessage(conn); err == nil {
			err = json.Unmarshal(raw, &resp)
		}
	}
	if err == nil && !resp.Success {
		err = errors.New(resp.Error)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func encodeRandomBlock(rng *rand.Rand, converter *data.Converter, codec *data.IPCCodec, config StressTestConfig) ([]byte, error) {
	record, err := converter.TransactionsToRecord(vm.RandomBlock(rng, config.BlockSize, config.Keys))
	if err != nil {
		return nil, err
	}
	defer record.Release()
	return codec.Serialize(record)
}

func sendBlock(conn net.Conn, payload []byte) error {
	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	if err := api.WriteMessage(conn, payload); err != nil {
		return err
	}
	resp, err := api.ReadMessage(conn)
	if err != nil {
		return err
	}
	if msg, isErr := api.ParseError(resp); isErr {
		return errors.New(msg)
	}
	return nil
}

func printResults(result StressTestResult) {
	pct := func(n int64) float64 {
		if result.TotalRequests == 0 {
			return 0
		}
		return float64(n) / float64(result.TotalRequests) * 100
	}
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", result.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, pct(result.SuccessfulReqs))
	fmt.Printf("Failed:          %d (%.2f%%)\n", result.FailedReqs, pct(result.FailedReqs))
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Txns/sec:        %.2f\n", result.TxnsPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) error {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":     config.Address,
			"concurrency": config.Concurrency,
			"duration":    config.Duration.String(),
			"block_size":  config.BlockSize,
			"keys":        config.Keys,
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"requests_per_sec": result.RequestsPerSec,
			"txns_per_sec":     result.TxnsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(config.ReportFile, raw, 0o644)
}
