package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"

	chainmod "github.com/filecoin-project/venus-chain/app/submodule/chain"
	"github.com/filecoin-project/venus-chain/pkg/config"
	"github.com/filecoin-project/venus-chain/pkg/repo"
	"github.com/filecoin-project/venus-chain/pkg/types"
)

var log = logging.Logger("venus-chain")

const (
	repoFlag   = "repo"
	heightFlag = "height"
	roundFlag  = "round"
	prevFlag   = "prev"
)

var repoPathFlag = &cli.StringFlag{
	Name:    repoFlag,
	Usage:   "the repo holding chain data",
	Value:   "~/.venus-chain",
	EnvVars: []string{"VENUS_CHAIN_PATH"},
}

func main() {
	app := &cli.App{
		Name:  "venus-chain",
		Usage: "filecoin chain head tracking and history index",
		Flags: []cli.Flag{repoPathFlag},
		Commands: []*cli.Command{
			initCmd,
			headCmd,
			tipsetCmd,
			lookbackCmd,
			daemonCmd,
			configCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) (string, error) {
	return homedir.Expand(cctx.String(repoFlag))
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "initialize a repo with a devnet genesis block",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "devnet",
			Usage: "activate every network upgrade at genesis",
		},
	},
	Action: func(cctx *cli.Context) error {
		p, err := repoPath(cctx)
		if err != nil {
			return err
		}

		cfg := config.NewDefaultConfig()
		if cctx.Bool("devnet") {
			upgrades := config.DevnetForkUpgrade
			cfg.NetworkParams.NetworkType = "devnet"
			cfg.NetworkParams.ForkUpgradeParam = &upgrades
		}
		if err := repo.InitFSRepo(p, repo.LatestVersion, cfg); err != nil {
			return err
		}

		r, err := repo.OpenFSRepo(p, repo.LatestVersion)
		if err != nil {
			return err
		}
		defer r.Close() // nolint: errcheck

		genesis, err := chainmod.MakeDevnetGenesis(cctx.Context, r.Blockstore(), uint64(time.Now().Unix()))
		if err != nil {
			return err
		}
		c, err := chainmod.ImportGenesis(cctx.Context, r.Blockstore(), r.ChainDatastore(), genesis)
		if err != nil {
			return err
		}
		fmt.Printf("initialized %s with genesis %s\n", p, c)
		return nil
	},
}

// withChain opens the repo and its chain submodule for the duration of f.
func withChain(cctx *cli.Context, f func(*chainmod.ChainSubmodule) error) error {
	p, err := repoPath(cctx)
	if err != nil {
		return err
	}
	r, err := repo.OpenFSRepo(p, repo.LatestVersion)
	if err != nil {
		return err
	}
	defer r.Close() // nolint: errcheck

	sub, err := chainmod.NewChainSubmodule(cctx.Context, r)
	if err != nil {
		return err
	}
	defer sub.Stop(cctx.Context)
	return f(sub)
}

func printTipSet(ts *types.TipSet) {
	fmt.Printf("%d: %s\n", ts.Height(), ts.Key())
}

var headCmd = &cli.Command{
	Name:  "head",
	Usage: "print the heaviest tipset",
	Action: func(cctx *cli.Context) error {
		return withChain(cctx, func(sub *chainmod.ChainSubmodule) error {
			head, err := sub.ChainReader.GetHeaviestTipSet(cctx.Context)
			if err != nil {
				return err
			}
			printTipSet(head)
			return nil
		})
	},
}

var tipsetCmd = &cli.Command{
	Name:  "tipset",
	Usage: "print the tipset of the heaviest chain at a height",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: heightFlag, Required: true},
		&cli.BoolFlag{Name: prevFlag, Usage: "on a null round return the tipset below instead of above"},
	},
	Action: func(cctx *cli.Context) error {
		return withChain(cctx, func(sub *chainmod.ChainSubmodule) error {
			ts, err := sub.ChainReader.GetTipSetByHeight(cctx.Context, nil, abi.ChainEpoch(cctx.Int64(heightFlag)), cctx.Bool(prevFlag))
			if err != nil {
				return err
			}
			printTipSet(ts)
			return nil
		})
	},
}

var lookbackCmd = &cli.Command{
	Name:  "lookback",
	Usage: "print the lookback tipset and state root for a round",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: roundFlag, Required: true},
	},
	Action: func(cctx *cli.Context) error {
		return withChain(cctx, func(sub *chainmod.ChainSubmodule) error {
			head, err := sub.ChainReader.GetHeaviestTipSet(cctx.Context)
			if err != nil {
				return err
			}
			ts, root, err := sub.ChainReader.GetLookbackTipSetForRound(cctx.Context, head, abi.ChainEpoch(cctx.Int64(roundFlag)))
			if err != nil {
				return err
			}
			printTipSet(ts)
			fmt.Printf("state root: %s\n", root)
			return nil
		})
	},
}

var daemonCmd = &cli.Command{
	Name:  "daemon",
	Usage: "serve metrics and log head changes until interrupted",
	Action: func(cctx *cli.Context) error {
		ctx, cancel := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return withChain(cctx, func(sub *chainmod.ChainSubmodule) error {
			if err := sub.Start(ctx); err != nil {
				return err
			}

			changes, err := sub.ChainReader.SubHeadChanges(ctx)
			if err != nil {
				return err
			}
			for hcs := range changes {
				for _, hc := range hcs {
					log.Infof("head change %s: %d %s", hc.Type, hc.Val.Height(), hc.Val.Key())
				}
			}
			log.Info("shutting down")
			return nil
		})
	},
}

var configCmd = &cli.Command{
	Name:      "config",
	Usage:     "get or set a config value, e.g. `config cache.skipCacheSize 1000`",
	ArgsUsage: "<key> [toml value]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 1 || cctx.NArg() > 2 {
			return fmt.Errorf("expected a key and an optional value")
		}
		p, err := repoPath(cctx)
		if err != nil {
			return err
		}
		r, err := repo.OpenFSRepo(p, repo.LatestVersion)
		if err != nil {
			return err
		}
		defer r.Close() // nolint: errcheck

		key := cctx.Args().Get(0)
		if cctx.NArg() == 1 {
			v, err := r.Config().Get(key)
			if err != nil {
				return err
			}
			fmt.Printf("%v\n", v)
			return nil
		}

		cfg := r.Config()
		if _, err := cfg.Set(key, cctx.Args().Get(1)); err != nil {
			return err
		}
		return r.ReplaceConfig(cfg)
	},
}
