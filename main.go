package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/escrow"
	"github.com/usdfg/arena/internal/pkg/matchmaker"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/receiver"
	"github.com/usdfg/arena/internal/pkg/scorer"
	"github.com/usdfg/arena/internal/pkg/session"
	"github.com/usdfg/arena/internal/pkg/store"
	"github.com/usdfg/arena/internal/pkg/trust"

	"github.com/urfave/cli/v3"
)

type ArenaService struct {
	EchoService     *common.EchoService     `do:""`
	DatabaseService *common.DatabaseService `do:""`
	NotifierService *notify.NotifierService `do:""`

	ChallengeService  *challenge.ChallengeService   `do:""`
	MatchmakerService *matchmaker.MatchmakerService `do:""`
	TrustService      *trust.TrustService           `do:""`
	ScorerService     *scorer.ScorerService         `do:""`
	ReceiverService   *receiver.ReceiverService     `do:""`
	SessionService    *session.SessionService       `do:""`
}

func newInjector(cmd *cli.Command) (*do.RootScope, error) {
	i := do.New()

	logger := common.NewLogger(cmd.String("log-level"))

	rules, err := common.LoadRules(cmd.String("rules"))
	if err != nil {
		return nil, err
	}

	do.ProvideNamedValue(i, "logger", logger)
	do.ProvideNamedValue(i, "rules", rules)

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))
	do.ProvideNamedValue(i, "tmp-dir", cmd.String("tmp-dir"))

	do.ProvideNamedValue(i, "solana-rpc-url", cmd.String("solana-rpc-url"))
	do.ProvideNamedValue(i, "token-mint", cmd.String("token-mint"))
	do.ProvideNamedValue(i, "valkey-address", cmd.String("valkey-address"))
	do.ProvideNamedValue(i, "sweep-interval", cmd.Duration("sweep-interval"))

	outcomeChan := make(chan scorer.Outcome, 1000)
	var outcomeSource <-chan scorer.Outcome = outcomeChan
	var outcomeSink chan<- scorer.Outcome = outcomeChan

	do.ProvideNamedValue(i, "outcome-source", outcomeSource)
	do.ProvideNamedValue(i, "outcome-sink", outcomeSink)

	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, common.NewEchoService)

	do.Provide(i, store.NewStore)
	do.Provide(i, escrow.NewEscrowService)
	do.Provide(i, notify.NewPublisher)
	do.Provide(i, notify.NewNotifierService)

	do.Provide(i, trust.NewTrustService)
	do.Provide(i, receiver.NewReceiverService)
	do.Provide(i, challenge.NewChallengeService)
	do.Provide(i, matchmaker.NewMatchmakerService)
	do.Provide(i, scorer.NewScorerService)
	do.Provide(i, session.NewSessionService)

	do.Provide(i, do.InvokeStruct[ArenaService])

	return i, nil
}

func runServer(_ context.Context, cmd *cli.Command) error {
	i, err := newInjector(cmd)
	if err != nil {
		return err
	}

	arenaService, err := do.Invoke[ArenaService](i)
	if err != nil {
		return fmt.Errorf("failed to create arena service: %w", err)
	}

	arenaService.ScorerService.Start()
	arenaService.ChallengeService.Start()
	arenaService.SessionService.Start()

	//nolint:wrapcheck
	return arenaService.EchoService.Start()
}

// runSweep performs a single maintenance pass and exits.
func runSweep(ctx context.Context, cmd *cli.Command) error {
	i, err := newInjector(cmd)
	if err != nil {
		return err
	}
	defer i.Shutdown()

	challengeService, err := do.Invoke[*challenge.ChallengeService](i)
	if err != nil {
		return fmt.Errorf("failed to create challenge service: %w", err)
	}

	logger := common.Logger(i)

	report, err := challengeService.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	logger.Info("sweep finished",
		"expired", report.Expired,
		"settled", report.Settled,
		"repaired", report.Repaired,
		"skipped", report.Skipped,
	)

	age := cmd.Duration("prune-after")
	if age <= 0 {
		return nil
	}

	pruned, err := challengeService.Prune(ctx, age)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	logger.Info("prune finished", "deleted", pruned)

	return nil
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data-dir",
			Value:   "./arena/data",
			Sources: cli.EnvVars("ARENA_DATA_DIR"),
		},
		&cli.StringFlag{
			Name:    "rules",
			Usage:   "path to a TOML rules file",
			Sources: cli.EnvVars("ARENA_RULES"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Sources: cli.EnvVars("ARENA_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "solana-rpc-url",
			Value:   "https://api.devnet.solana.com",
			Sources: cli.EnvVars("ARENA_SOLANA_RPC_URL"),
		},
		&cli.StringFlag{
			Name:    "token-mint",
			Sources: cli.EnvVars("ARENA_TOKEN_MINT"),
		},
		&cli.StringFlag{
			Name:    "valkey-address",
			Usage:   "fan notifications out over valkey when set",
			Sources: cli.EnvVars("ARENA_VALKEY_ADDRESS"),
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Value:   time.Minute,
			Sources: cli.EnvVars("ARENA_SWEEP_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   3000, //nolint:mnd
			Sources: cli.EnvVars("ARENA_PORT"),
		},
		&cli.StringFlag{
			Name:    "tmp-dir",
			Value:   "./arena/tmp",
			Sources: cli.EnvVars("ARENA_TMP_DIR"),
		},
	}
}

func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name: "arena",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Flags:  commonFlags(),
				Action: runServer,
			},
			{
				Name:  "sweep",
				Usage: "expire, settle and repair challenges once, then exit",
				Flags: append(commonFlags(),
					&cli.DurationFlag{
						Name:    "prune-after",
						Usage:   "delete finished challenges untouched for this long; 0 disables",
						Sources: cli.EnvVars("ARENA_PRUNE_AFTER"),
					},
				),
				Action: runSweep,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
