package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/bitfsorg/libstake-go/config"
	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/metrics"
	"github.com/bitfsorg/libstake-go/runtime"
	"github.com/bitfsorg/libstake-go/staking"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"init-config":           {"write a default configuration file", cmdInitConfig},
		"keygen":                {"generate a private key file", cmdKeygen},
		"address":               {"print the signing key's address", cmdAddress},
		"create-mint":           {"create a token mint owned by the signer", cmdCreateMint},
		"mint-to":               {"mint tokens to an owner's account", cmdMintTo},
		"init-stake-vault":      {"create the registry and stake vault", cmdInitStakeVault},
		"init-reward-vault":     {"create the reward vault and stakes index", cmdInitRewardVault},
		"toggle":                {"create and fund an epoch, or flip its active flag", cmdToggle},
		"stake":                 {"lock stake tokens for an epoch", cmdStake},
		"settle":                {"settle one participant, or every participant, for an epoch", cmdSettle},
		"withdraw":              {"withdraw unlocked principal", cmdWithdraw},
		"claim":                 {"claim accrued reward", cmdClaim},
		"update-epoch-duration": {"change the duration of future epochs", cmdUpdateEpochDuration},
		"transfer-admin":        {"hand the administrator role to another address", cmdTransferAdmin},
		"show":                  {"print the registry, vaults and epochs, or one stake", cmdShow},
		"preview":               {"compute an epoch's settlement without applying it", cmdPreview},
		"audit":                 {"verify ledger invariants", cmdAudit},
		"journal":               {"list executed instructions", cmdJournal},
		"serve-metrics":         {"export Prometheus metrics until interrupted", cmdServeMetrics},
	}
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func parseAddress(name, value string) (identity.Address, error) {
	if value == "" {
		return identity.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := identity.ParseAddress(value)
	if err != nil {
		return identity.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

func cmdInitConfig(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("init-config")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(a.cfgPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force)", a.cfgPath)
	}
	if err := config.SaveConfig(a.cfgPath, a.cfg); err != nil {
		return err
	}
	a.printf("wrote %s\n", a.cfgPath)
	return nil
}

func cmdKeygen(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("keygen")
	out := fs.String("out", "", "key file to write (default admin_key_file)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = a.cfg.AdminKeyPath()
	}
	if path == "" {
		return errors.New("--out is required when admin_key_file is not set")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	kp, err := identity.NewKeypair()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(kp.Hex()+"\n"), 0600); err != nil {
		return err
	}
	a.printf("%s\n", kp.Address())
	return nil
}

func cmdAddress(_ context.Context, a *app, args []string) error {
	kp, err := a.signer()
	if err != nil {
		return err
	}
	a.printf("%s\n", kp.Address())
	return nil
}

func cmdCreateMint(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("create-mint")
	seed := fs.String("seed", "", "name the mint address is derived from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seed == "" {
		return errors.New("--seed is required")
	}
	mint := identity.AddressOfSeed(*seed)
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		if err := l.store.Update(func(tx store.Tx) error {
			return token.CreateMint(tx, mint, kp.Address())
		}); err != nil {
			return err
		}
		a.printf("%s\n", mint)
		return nil
	})
}

func cmdMintTo(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("mint-to")
	mintFlag := fs.String("mint", "", "mint address")
	toFlag := fs.String("to", "", "owner address")
	amount := fs.Uint64("amount", 0, "amount to mint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mint, err := parseAddress("mint", *mintFlag)
	if err != nil {
		return err
	}
	owner, err := parseAddress("to", *toFlag)
	if err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		var bal uint64
		err := l.store.Update(func(tx store.Tx) error {
			acct, err := token.EnsureAssociatedAccount(tx, owner, mint)
			if err != nil {
				return err
			}
			if err := token.MintTo(tx, mint, acct.Address, *amount, kp.Address()); err != nil {
				return err
			}
			bal, err = token.Balance(tx, acct.Address)
			return err
		})
		if err != nil {
			return err
		}
		a.printf("balance %d\n", bal)
		return nil
	})
}

func cmdInitStakeVault(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("init-stake-vault")
	mintFlag := fs.String("stake-mint", "", "stake token mint address")
	rate := fs.Uint64("rate-bps", 10, "annual rate in basis points")
	duration := fs.Duration("epoch-duration", 24*time.Hour, "epoch duration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mint, err := parseAddress("stake-mint", *mintFlag)
	if err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		_, err := a.submit(ctx, l, kp, runtime.Instruction{
			Kind:     runtime.KindInitializeStakeVault,
			Mint:     mint,
			RateBps:  *rate,
			Duration: int64(duration.Seconds()),
		})
		if err != nil {
			return err
		}
		a.printf("stake vault %s\n", l.program.StakeVault())
		return nil
	})
}

func cmdInitRewardVault(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("init-reward-vault")
	mintFlag := fs.String("reward-mint", "", "reward token mint address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mint, err := parseAddress("reward-mint", *mintFlag)
	if err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		if _, err := a.submit(ctx, l, kp, runtime.Instruction{Kind: runtime.KindInitializeRewardVault, Mint: mint}); err != nil {
			return err
		}
		a.printf("reward vault %s\n", l.program.RewardVault())
		return nil
	})
}

func cmdToggle(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("toggle")
	epoch := fs.Uint64("epoch", 0, "epoch index")
	reward := fs.Uint64("reward", 0, "reward allotment moved into the vault when the epoch is created")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		rcpt, err := a.submit(ctx, l, kp, runtime.Instruction{Kind: runtime.KindToggle, EpochIndex: *epoch, Amount: *reward})
		if err != nil {
			return err
		}
		a.printEpoch(rcpt.Epoch)
		return nil
	})
}

func cmdStake(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("stake")
	epoch := fs.Uint64("epoch", 0, "epoch index")
	amount := fs.Uint64("amount", 0, "amount to stake")
	tierFlag := fs.String("tier", "week", "lock tier: week, month, quarter or year")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tier, err := staking.ParseLockTier(*tierFlag)
	if err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		_, err := a.submit(ctx, l, kp, runtime.Instruction{
			Kind:       runtime.KindStake,
			EpochIndex: *epoch,
			Amount:     *amount,
			Tier:       tier,
		})
		if err != nil {
			return err
		}
		return a.printStake(l.program, kp.Address())
	})
}

func cmdSettle(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("settle")
	epoch := fs.Uint64("epoch", 0, "epoch index")
	participantFlag := fs.String("participant", "", "settle only this participant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		if *participantFlag != "" {
			participant, err := parseAddress("participant", *participantFlag)
			if err != nil {
				return err
			}
			rcpt, err := a.submit(ctx, l, kp, runtime.Instruction{
				Kind:       runtime.KindManageStakerReward,
				EpochIndex: *epoch,
				Target:     participant,
			})
			if err != nil {
				return err
			}
			s := rcpt.Settlement
			a.printf("%s weight %d/%d credited %d accrued %d\n", s.Participant, s.Weight, s.TotalWeight, s.Credited, s.Accrued)
			return nil
		}

		rep, err := l.rt.SettleEpoch(ctx, kp, *epoch)
		if rep != nil {
			for _, s := range rep.Settled {
				a.printf("%s weight %d/%d credited %d\n", s.Participant, s.Weight, s.TotalWeight, s.Credited)
			}
			a.printf("epoch %d: settled %d, skipped %d, credited %d, complete %t\n",
				rep.Epoch, len(rep.Settled), len(rep.Skipped), rep.Credited, rep.Done)
		}
		return err
	})
}

func cmdWithdraw(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("withdraw")
	amount := fs.Uint64("amount", 0, "amount to withdraw")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		if _, err := a.submit(ctx, l, kp, runtime.Instruction{Kind: runtime.KindWithdraw, Amount: *amount}); err != nil {
			return err
		}
		return a.printStake(l.program, kp.Address())
	})
}

func cmdClaim(ctx context.Context, a *app, args []string) error {
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		rcpt, err := a.submit(ctx, l, kp, runtime.Instruction{Kind: runtime.KindClaim})
		if err != nil {
			return err
		}
		a.printf("claimed %d\n", rcpt.Claimed)
		return nil
	})
}

func cmdUpdateEpochDuration(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("update-epoch-duration")
	duration := fs.Duration("duration", 0, "new epoch duration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		_, err := a.submit(ctx, l, kp, runtime.Instruction{
			Kind:     runtime.KindUpdateEpochDuration,
			Duration: int64(duration.Seconds()),
		})
		return err
	})
}

func cmdTransferAdmin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("transfer-admin")
	newAdminFlag := fs.String("new-admin", "", "address of the new administrator")
	if err := fs.Parse(args); err != nil {
		return err
	}
	newAdmin, err := parseAddress("new-admin", *newAdminFlag)
	if err != nil {
		return err
	}
	return a.withLedger(ctx, func(l *ledger, kp *identity.Keypair) error {
		_, err := a.submit(ctx, l, kp, runtime.Instruction{Kind: runtime.KindTransferAdmin, Target: newAdmin})
		return err
	})
}

func cmdShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("show")
	participantFlag := fs.String("participant", "", "show this participant's stake")
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	if *participantFlag != "" {
		participant, err := parseAddress("participant", *participantFlag)
		if err != nil {
			return err
		}
		return a.printStake(l.program, participant)
	}

	cfg, err := l.program.Config()
	if err != nil {
		return err
	}
	vb, err := l.program.VaultBalances()
	if err != nil {
		return err
	}
	a.printf("admin           %s\n", cfg.Admin)
	a.printf("stake mint      %s\n", cfg.StakeMint)
	a.printf("reward mint     %s\n", cfg.RewardMint)
	a.printf("rate            %d bps\n", cfg.RateBps)
	a.printf("epoch duration  %s\n", time.Duration(cfg.EpochDuration)*time.Second)
	a.printf("total staked    %d\n", cfg.TotalStaked)
	a.printf("stake vault     %s (%d)\n", cfg.StakeVault, vb.Stake)
	a.printf("reward vault    %s (%d)\n", cfg.RewardVault, vb.Reward)

	epochs, err := l.program.Epochs()
	if err != nil {
		return err
	}
	for _, ep := range epochs {
		a.printEpoch(ep)
	}
	return nil
}

func cmdPreview(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("preview")
	epoch := fs.Uint64("epoch", 0, "epoch index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	dists, dust, err := l.program.PreviewSettlement(*epoch)
	if err != nil {
		return err
	}
	for _, d := range dists {
		a.printf("%s weight %d amount %d\n", d.Participant, d.Weight, d.Amount)
	}
	a.printf("dust %d\n", dust)
	return nil
}

func cmdAudit(ctx context.Context, a *app, args []string) error {
	l, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	rep, err := l.program.Audit()
	if err != nil {
		return err
	}
	a.printf("ok: %d participants, principal %d, accrued %d, stake vault %d, reward vault %d\n",
		rep.Participants, rep.TotalPrincipal, rep.TotalAccrued, rep.Vaults.Stake, rep.Vaults.Reward)
	return nil
}

func cmdJournal(ctx context.Context, a *app, args []string) error {
	l, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.rt.Journal()
	if err != nil {
		return err
	}
	for _, e := range entries {
		a.printf("%s %s %-24s %s\n", e.ExecutedAt.UTC().Format(time.RFC3339), e.ID, e.Kind, e.Caller)
	}
	return nil
}

func cmdServeMetrics(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("serve-metrics")
	addr := fs.String("metrics-addr", a.cfg.MetricsAddr, "listen address")
	interval := fs.Duration("interval", 15*time.Second, "vault balance refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" {
		return errors.New("--metrics-addr is required when metrics_addr is not set")
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("prometheus metrics server listening", "address", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "error", err)
		}
	}()
	defer srv.Close()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		a.refreshVaultGauges(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// refreshVaultGauges opens the ledger briefly so other commands are not
// locked out between refreshes.
func (a *app) refreshVaultGauges(ctx context.Context) {
	l, err := a.openLedger(ctx)
	if err != nil {
		a.log.Warn("metrics refresh: open ledger", "error", err)
		return
	}
	defer l.Close()

	vb, err := l.program.VaultBalances()
	if err != nil {
		a.log.Warn("metrics refresh: vault balances", "error", err)
		return
	}
	metrics.VaultBalance.WithLabelValues("stake").Set(float64(vb.Stake))
	metrics.VaultBalance.WithLabelValues("reward").Set(float64(vb.Reward))
}

func (a *app) printEpoch(ep *staking.Epoch) {
	state := "closed"
	if ep.Active {
		state = "active"
	}
	a.printf("epoch %d %s allotment %d distributed %d settled %d/%d complete %t\n",
		ep.Index, state, ep.RewardAllotment, ep.Distributed, ep.SettledCount, ep.SnapshotStakers, ep.Settled)
}

func (a *app) printStake(p *staking.Program, participant identity.Address) error {
	us, err := p.UserStake(participant)
	if err != nil {
		return err
	}
	unlockAt, err := p.UnlockTime(participant)
	if err != nil {
		return err
	}
	a.printf("%s principal %d tier %s entry epoch %d accrued %d claimed %d unlocks %s\n",
		participant, us.Principal, us.Tier, us.EntryEpoch, us.AccruedReward, us.TotalClaimed,
		unlockAt.UTC().Format(time.RFC3339))
	return nil
}
