package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	caramel "github.com/caramel-csf/caramel"
)

func main() {
	app := &cli.App{
		Name:        "caramelbuild",
		Description: "Build and query Compressed Static Function (.csf) files.",
		Commands: []*cli.Command{
			buildCmd(),
			queryCmd(),
			statsCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "caramelbuild:", err)
		os.Exit(1)
	}
}

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "build a .csf file from a key/value TSV input",
		ArgsUsage: "<input.tsv> <output.csf>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefilter", Value: "none", Usage: "none|bloom|xor|binaryfuse"},
			&cli.Float64Flag{Name: "fp-rate", Value: 0.01, Usage: "bloom false-positive rate"},
			&cli.IntFlag{Name: "fingerprint-bits", Value: 0, Usage: "xor/binaryfuse fingerprint width (0 = default 8)"},
			&cli.IntFlag{Name: "bucket-size", Value: 0, Usage: "target mean bucket size"},
			&cli.IntFlag{Name: "workers", Value: 0, Usage: "worker pool size"},
			&cli.Uint64Flag{Name: "seed", Value: 0, Usage: "master hasher seed"},
			&cli.BoolFlag{Name: "verbose", Usage: "print build progress"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return cli.Exit("usage: caramelbuild build <input.tsv> <output.csf>", 1)
			}
			keys, values, err := readTSV(c.Args().Get(0))
			if err != nil {
				return err
			}

			kind, err := parsePrefilter(c.String("prefilter"))
			if err != nil {
				return err
			}

			opts := caramel.BuildOptions{
				Prefilter:  caramel.PrefilterSpec{Kind: kind, FPRate: c.Float64("fp-rate"), FingerprintBits: c.Int("fingerprint-bits")},
				BucketSize: c.Int("bucket-size"),
				Workers:    c.Int("workers"),
				HasherSeed: c.Uint64("seed"),
				Verbose:    c.Bool("verbose"),
			}

			csf, err := caramel.Build(keys, values, caramel.Uint64Codec(), opts)
			if err != nil {
				return err
			}
			if err := csf.Save(c.Args().Get(1), opts); err != nil {
				return err
			}
			fmt.Print(csf.GetStats().String())
			return nil
		},
	}
}

func queryCmd() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "look up a key in a .csf file",
		ArgsUsage: "<input.csf> <key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "mmap", Usage: "load the container via a memory-mapped file"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return cli.Exit("usage: caramelbuild query <input.csf> <key>", 1)
			}
			csf, err := caramel.LoadWithOptions(c.Args().Get(0), caramel.Uint64Codec(), caramel.LoadOptions{Mmap: c.Bool("mmap")})
			if err != nil {
				return err
			}
			fmt.Println(csf.Query([]byte(c.Args().Get(1))))
			return nil
		},
	}
}

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "print the size/distribution breakdown of a .csf file",
		ArgsUsage: "<input.csf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "mmap", Usage: "load the container via a memory-mapped file"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return cli.Exit("usage: caramelbuild stats <input.csf>", 1)
			}
			csf, err := caramel.LoadWithOptions(c.Args().Get(0), caramel.Uint64Codec(), caramel.LoadOptions{Mmap: c.Bool("mmap")})
			if err != nil {
				return err
			}
			fmt.Print(csf.GetStats().String())
			return nil
		},
	}
}

func parsePrefilter(s string) (caramel.PrefilterKind, error) {
	switch strings.ToLower(s) {
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

// readTSV reads "key<TAB>value" lines, one per key, value parsed as
// uint64. This is ambient CLI plumbing, not part of the domain format
// (internal/serialize.Container), so it stays on bufio.Scanner rather
// than reaching for the teacher's mmap-based CSV scanner, which is
// built around a full table schema this single-column format doesn't
// have.
func readTSV(path string) ([][]byte, []uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var keys [][]byte
	var values []uint64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		tab := strings.IndexByte(text, '\t')
		if tab < 0 {
			return nil, nil, fmt.Errorf("%s:%d: missing tab separator", path, line)
		}
		v, err := strconv.ParseUint(text[tab+1:], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		keys = append(keys, []byte(text[:tab]))
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
