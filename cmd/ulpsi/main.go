// Command ulpsi drives the server preprocessing pipeline and a minimal
// client, per spec.md §6's stated CLI surface: setup, gen-client-set,
// start, and client query.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/Janmajayamall/ulpsi/internal/client"
	"github.com/Janmajayamall/ulpsi/internal/config"
	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/logging"
	"github.com/Janmajayamall/ulpsi/internal/params"
	"github.com/Janmajayamall/ulpsi/internal/preprocess"
	"github.com/Janmajayamall/ulpsi/internal/randset"
	"github.com/Janmajayamall/ulpsi/internal/transport"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "ulpsi",
		Usage:   "unbalanced labelled private set intersection over BFV",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "ulpsi.yaml", Usage: "path to a YAML config file"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Commands: []*cli.Command{
			setupCommand,
			genClientSetCommand,
			startCommand,
			clientCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ulpsi:", err)
		os.Exit(1)
	}
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, err
	}
	if cctx.Bool("debug") {
		cfg.Debug = true
	}
	return cfg, nil
}

func dataDirFor(cfg *config.Config, n int) string {
	return filepath.Join(cfg.DataDir, strconv.Itoa(n))
}

var setupCommand = &cli.Command{
	Name:      "setup",
	Usage:     "build a fresh random server set of size N and persist its serving layout",
	ArgsUsage: "N",
	Action: func(cctx *cli.Context) error {
		n, err := requireIntArg(cctx, 0, "N")
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		log := logging.New("setup", cfg.Debug)

		p := params.Default()
		if err := p.Randomize(); err != nil {
			return err
		}
		pb, err := p.MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
		var decoded params.PsiParams
		if err := decoded.UnmarshalBinary(pb); err != nil || !decoded.Equal(p) {
			return fmt.Errorf("params do not survive a binary round trip (err: %v)", err)
		}

		items, err := randset.ServerSet(n)
		if err != nil {
			return fmt.Errorf("generating server set: %w", err)
		}

		pp, err := preprocess.New(p, log)
		if err != nil {
			return err
		}
		boxes, err := pp.Build(context.Background(), items)
		if err != nil {
			return fmt.Errorf("building serving layout: %w", err)
		}

		fheP, err := p.FHEParameters()
		if err != nil {
			return err
		}
		enc := fhe.NewEncoder(fheP)
		layout, err := pp.BuildLayout(boxes, enc)
		if err != nil {
			return fmt.Errorf("encoding serving layout: %w", err)
		}

		dir := dataDirFor(cfg, n)
		if err := layout.Save(dir); err != nil {
			return err
		}
		if err := randset.SaveServerSet(filepath.Join(dir, "server_set.bin"), items); err != nil {
			return fmt.Errorf("saving server set: %w", err)
		}

		log.Infow("setup complete", "n", n, "dir", dir)
		return nil
	},
}

var genClientSetCommand = &cli.Command{
	Name:      "gen-client-set",
	Usage:     "sample a random client set against an existing server set, with overlap",
	ArgsUsage: "N CLIENT_SIZE [OVERLAP]",
	Action: func(cctx *cli.Context) error {
		n, err := requireIntArg(cctx, 0, "N")
		if err != nil {
			return err
		}
		clientSize, err := requireIntArg(cctx, 1, "CLIENT_SIZE")
		if err != nil {
			return err
		}
		overlap := clientSize
		if cctx.Args().Len() > 2 {
			overlap, err = strconv.Atoi(cctx.Args().Get(2))
			if err != nil {
				return fmt.Errorf("invalid OVERLAP: %w", err)
			}
		}

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		dir := dataDirFor(cfg, n)

		server, err := randset.LoadServerSet(filepath.Join(dir, "server_set.bin"))
		if err != nil {
			return err
		}
		items, err := randset.ClientSet(server, clientSize, overlap)
		if err != nil {
			return err
		}

		out := filepath.Join(dir, fmt.Sprintf("client_set_%d.bin", clientSize))
		if err := randset.SaveClientSet(out, items); err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var startCommand = &cli.Command{
	Name:      "start",
	Usage:     "serve queries against a previously built server set",
	ArgsUsage: "N",
	Action: func(cctx *cli.Context) error {
		n, err := requireIntArg(cctx, 0, "N")
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		log := logging.New("server", cfg.Debug)

		layout, err := preprocess.LoadServingLayout(dataDirFor(cfg, n))
		if err != nil {
			return err
		}
		srv, err := transport.NewServer(layout, log)
		if err != nil {
			return err
		}
		return srv.ListenAndServe(context.Background(), cfg.ListenAddr)
	},
}

var clientCommand = &cli.Command{
	Name:  "client",
	Usage: "client-side query commands",
	Subcommands: []*cli.Command{
		{
			Name:      "query",
			Usage:     "query a server with a client set file",
			ArgsUsage: "CLIENT_SET.bin SERVER_ADDR",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "n", Usage: "server-set size, to locate its params.bin", Required: true},
			},
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() < 2 {
					return fmt.Errorf("usage: client query CLIENT_SET.bin SERVER_ADDR --n N")
				}
				clientSetPath := cctx.Args().Get(0)
				addr := cctx.Args().Get(1)

				cfg, err := loadConfig(cctx)
				if err != nil {
					return err
				}
				dir := dataDirFor(cfg, cctx.Int("n"))

				layout, err := preprocess.LoadServingLayout(dir)
				if err != nil {
					return err
				}
				items, err := randset.LoadClientSet(clientSetPath)
				if err != nil {
					return err
				}

				c, err := client.New(layout.Params)
				if err != nil {
					return err
				}
				q, err := c.BuildQuery(items)
				if err != nil {
					return err
				}

				resp, err := transport.Query(addr, layout.Params, c.RelinearizationKey(), nil, q)
				if err != nil {
					return err
				}

				recovered, err := c.Recover(items, resp)
				if err != nil {
					return err
				}
				for _, r := range recovered {
					fmt.Printf("%x found=%v label_chunks=%v\n", r.Item.Bytes32(), r.Found, r.LabelChunks)
				}
				return nil
			},
		},
	},
}

func requireIntArg(cctx *cli.Context, idx int, name string) (int, error) {
	if cctx.Args().Len() <= idx {
		return 0, fmt.Errorf("missing required argument %s", name)
	}
	v, err := strconv.Atoi(cctx.Args().Get(idx))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
