package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	caramel "github.com/caramel-csf/caramel"
)

func main() {
	app := &cli.App{
		Name:        "caramelbench",
		Description: "Generate synthetic key/value data and benchmark a CSF build and query pass.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keys", Value: 1_000_000, Usage: "number of synthetic keys"},
			&cli.IntFlag{Name: "alphabet", Value: 8, Usage: "number of distinct values"},
			&cli.StringFlag{Name: "prefilter", Value: "none", Usage: "none|bloom|xor|binaryfuse"},
			&cli.IntFlag{Name: "fingerprint-bits", Value: 0, Usage: "xor/binaryfuse fingerprint width (0 = default 8)"},
			&cli.BoolFlag{Name: "verbose", Usage: "print build progress"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "caramelbench:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	n := c.Int("keys")
	alphabet := c.Int("alphabet")
	if alphabet < 1 {
		alphabet = 1
	}

	fmt.Printf("generating %d synthetic keys over a %d-value alphabet...\n", n, alphabet)
	rng := rand.New(rand.NewSource(1))
	keys := make([][]byte, n)
	values := make([]uint64, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key-%09d", i))
		values[i] = uint64(rng.Intn(alphabet))
	}

	kind, err := parsePrefilter(c.String("prefilter"))
	if err != nil {
		return err
	}

	opts := caramel.BuildOptions{
		Prefilter: caramel.PrefilterSpec{Kind: kind, FingerprintBits: c.Int("fingerprint-bits")},
		Workers:   runtime.NumCPU(),
		Verbose:   c.Bool("verbose"),
	}

	fmt.Println("building...")
	start := time.Now()
	csf, err := caramel.Build(keys, values, caramel.Uint64Codec(), opts)
	if err != nil {
		return err
	}
	buildElapsed := time.Since(start)

	fmt.Println("querying...")
	start = time.Now()
	var mismatches int
	for i := 0; i < n; i++ {
		if csf.Query(keys[i]) != values[i] {
			mismatches++
		}
	}
	queryElapsed := time.Since(start)

	fmt.Printf("\n--------------------------------------------------\n")
	fmt.Printf("build:  %v (%.0f keys/s)\n", buildElapsed, float64(n)/buildElapsed.Seconds())
	fmt.Printf("query:  %v (%.0f keys/s)\n", queryElapsed, float64(n)/queryElapsed.Seconds())
	fmt.Printf("mismatches: %d/%d\n", mismatches, n)
	fmt.Printf("--------------------------------------------------\n")
	fmt.Print(csf.GetStats().String())
	return nil
}

func parsePrefilter(s string) (caramel.PrefilterKind, error) {
	switch s {
	case "", "none":
		return caramel.PrefilterNone, nil
	case "bloom":
		return caramel.PrefilterBloom, nil
	case "xor":
		return caramel.PrefilterXor, nil
	case "binaryfuse":
		return caramel.PrefilterBinaryFuse, nil
	default:
		return caramel.PrefilterNone, fmt.Errorf("unrecognized prefilter %q", s)
	}
}
