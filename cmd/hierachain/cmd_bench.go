package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"reflect"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/state"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/vm"
)

var cmdBench = &cobra.Command{
	Use:   "bench",
	Short: "Compare parallel and sequential execution of generated blocks",
	Args:  cobra.NoArgs,
	Run:   bench,
}

var flagBench struct {
	Txns    int
	Keys    int
	Blocks  int
	Seed    int64
	Workers []int
	Deltas  bool
}

func init() {
	cmdMain.AddCommand(cmdBench)
	cmdBench.Flags().IntVarP(&flagBench.Txns, "txns", "n", 10000, "Transactions per block")
	cmdBench.Flags().IntVarP(&flagBench.Keys, "keys", "k", 1000, "Number of accounts; fewer keys mean more conflicts")
	cmdBench.Flags().IntVarP(&flagBench.Blocks, "blocks", "b", 5, "Blocks per configuration")
	cmdBench.Flags().Int64Var(&flagBench.Seed, "seed", 1, "Random seed")
	cmdBench.Flags().IntSliceVarP(&flagBench.Workers, "workers", "w", []int{1, 2, 4, 8}, "Worker counts to run")
	cmdBench.Flags().BoolVar(&flagBench.Deltas, "deltas", true, "Enable aggregator deltas")
}

func bench(*cobra.Command, []string) {
	logger := newLogger()
	config := core.DefaultConfig()
	config.EnableDeltas = flagBench.Deltas
	executor := core.NewBlockExecutor[*vm.Transaction](vm.Factory{}, config, core.WithLogger(logger))

	base := state.NewMapView(vm.Genesis(flagBench.Keys, 1_000_000))
	rng := rand.New(rand.NewSource(flagBench.Seed))
	blocks := make([][]*vm.Transaction, flagBench.Blocks)
	for i := range blocks {
		blocks[i] = vm.RandomBlock(rng, flagBench.Txns, flagBench.Keys)
	}

	ctx := context.Background()
	expected := make([]*core.BlockOutput, len(blocks))
	start := time.Now()
	for i, txns := range blocks {
		out, err := executor.ExecuteSequential(ctx, txns, base)
		check(err)
		expected[i] = out
	}
	seqElapsed := time.Since(start)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKERS\tTX/SEC\tSPEEDUP\tEXECUTIONS\tABORTS\tMODE")
	fmt.Fprintf(w, "seq\t%.0f\t1.00\t%d\t0\t%s\n", throughput(seqElapsed), flagBench.Txns*flagBench.Blocks, core.ModeSequential)

	for _, workers := range flagBench.Workers {
		var stats core.Stats
		var mode core.Mode
		start := time.Now()
		for i, txns := range blocks {
			out, err := executor.ExecuteBlock(ctx, txns, base, workers)
			check(err)
			if !reflect.DeepEqual(out.Results, expected[i].Results) {
				fatalf("block %d with %d workers diverged from sequential execution", i, workers)
			}
			stats.Executions += out.Stats.Executions
			stats.ValidationAborts += out.Stats.ValidationAborts
			mode = out.Mode
		}
		elapsed := time.Since(start)
		fmt.Fprintf(w, "%d\t%.0f\t%.2f\t%d\t%d\t%s\n",
			workers, throughput(elapsed), seqElapsed.Seconds()/elapsed.Seconds(),
			stats.Executions, stats.ValidationAborts, mode)
	}
	check(w.Flush())
}

func throughput(elapsed time.Duration) float64 {
	return float64(flagBench.Txns*flagBench.Blocks) / elapsed.Seconds()
}
