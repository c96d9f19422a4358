package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
	"unsafe"

	"github.com/orizon-lang/treealloc/internal/allocator"
)

func main() {
	var (
		showHelp     = flag.Bool("help", false, "show help information")
		count        = flag.Int("count", 10000, "number of alloc/free operations to drive")
		minSize      = flag.Int("min-size", 16, "minimum allocation size in bytes")
		maxSize      = flag.Int("max-size", 4096, "maximum allocation size in bytes")
		seed         = flag.Int64("seed", 1, "random seed for the workload")
		dump         = flag.Bool("dump", false, "print allocator stats as YAML when done")
		checkFlag    = flag.Bool("check", false, "run the free-block manager's consistency checker when done")
		canaryChoice = flag.String("canary", "none", "canary strength: none, xor, blake2b")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Drives a random alloc/free workload against treealloc.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s --count 100000 --dump          # Run a larger workload and print stats\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --canary blake2b --check       # Run with hardened canaries and a final consistency check\n", os.Args[0])
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	strength := allocator.CanaryNone

	switch *canaryChoice {
	case "none":
	case "xor":
		strength = allocator.CanaryXOR
	case "blake2b":
		strength = allocator.CanaryBlake2b
	default:
		fmt.Fprintf(os.Stderr, "unknown --canary value %q\n", *canaryChoice)
		os.Exit(1)
	}

	heap, err := allocator.NewHeap(allocator.WithCanaryStrength(strength))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create heap: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))

	live := make([]unsafe.Pointer, 0, *count)

	start := time.Now()

	for i := 0; i < *count; i++ {
		switch {
		case len(live) == 0 || rng.Intn(3) != 0:
			size := uintptr(*minSize + rng.Intn(*maxSize-*minSize+1))

			ptr, err := heap.Alloc(size)
			if err != nil {
				fmt.Fprintf(os.Stderr, "alloc failed at iteration %d: %v\n", i, err)
				os.Exit(1)
			}

			live = append(live, ptr)
		default:
			idx := rng.Intn(len(live))

			if err := heap.Free(live[idx]); err != nil {
				fmt.Fprintf(os.Stderr, "free failed at iteration %d: %v\n", i, err)
				os.Exit(1)
			}

			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	elapsed := time.Since(start)

	for _, ptr := range live {
		if err := heap.Free(ptr); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup free failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("completed %d operations in %s\n", *count, elapsed)

	if *checkFlag {
		if !heap.Check() {
			fmt.Fprintln(os.Stderr, "consistency check FAILED")
			os.Exit(1)
		}

		fmt.Println("consistency check passed")
	}

	if *dump {
		stats, err := heap.Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to snapshot stats: %v\n", err)
			os.Exit(1)
		}

		yamlOut, err := stats.DumpYAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to dump stats: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(yamlOut)
	}

	if err := heap.Destroy(); err != nil {
		fmt.Fprintf(os.Stderr, "destroy failed: %v\n", err)
		os.Exit(1)
	}
}
