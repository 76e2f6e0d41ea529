package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bitfsorg/libstake-go/config"
	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/retry"
	"github.com/bitfsorg/libstake-go/runtime"
	"github.com/bitfsorg/libstake-go/staking"
	"github.com/bitfsorg/libstake-go/store"
)

type app struct {
	cfg          config.Config
	cfgPath      string
	log          *slog.Logger
	out          io.Writer
	keyFile      string
	genesisAdmin string
}

// ledger is an open database with the program and runtime bound to it.
type ledger struct {
	store   *store.BoltStore
	program *staking.Program
	rt      *runtime.Runtime
}

func (l *ledger) Close() error { return l.store.Close() }

// openLedger opens the database, retrying while another stakectl holds it.
func (a *app) openLedger(ctx context.Context) (*ledger, error) {
	programID, err := a.cfg.Program()
	if err != nil {
		return nil, err
	}
	genesis, err := a.genesis()
	if err != nil {
		return nil, err
	}

	var s *store.BoltStore
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		var openErr error
		s, openErr = store.OpenBoltStore(a.cfg.DBPath(), store.DefaultOpenTimeout)
		return openErr
	})
	if err != nil {
		return nil, err
	}

	p, err := staking.New(staking.ProgramConfig{ProgramID: programID, GenesisAdmin: genesis, Store: s})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	rt, err := runtime.New(runtime.Config{Program: p, Logger: a.log})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	a.log.Debug("ledger opened", "path", s.Path(), "program", programID)
	return &ledger{store: s, program: p, rt: rt}, nil
}

// signer loads the caller key: --key, else the configured admin key.
func (a *app) signer() (*identity.Keypair, error) {
	path := a.keyFile
	if path == "" {
		path = a.cfg.AdminKeyPath()
	}
	if path == "" {
		return nil, fmt.Errorf("no signing key: pass --key or set admin_key_file")
	}
	return readKey(path)
}

// genesis returns the genesis administrator: --genesis-admin, else the
// address of the configured admin key.
func (a *app) genesis() (identity.Address, error) {
	if a.genesisAdmin != "" {
		return identity.ParseAddress(a.genesisAdmin)
	}
	path := a.cfg.AdminKeyPath()
	if path == "" {
		return identity.Address{}, fmt.Errorf("genesis administrator unknown: pass --genesis-admin or set admin_key_file")
	}
	kp, err := readKey(path)
	if err != nil {
		return identity.Address{}, err
	}
	return kp.Address(), nil
}

// submit signs ins with kp and executes it.
func (a *app) submit(ctx context.Context, l *ledger, kp *identity.Keypair, ins runtime.Instruction) (*runtime.Receipt, error) {
	ins.Nonce = l.rt.NextNonce()
	tx, err := runtime.Sign(l.program.ID(), kp, ins)
	if err != nil {
		return nil, err
	}
	return l.rt.Submit(ctx, tx)
}

// withLedger opens the ledger, loads the signer and runs fn.
func (a *app) withLedger(ctx context.Context, fn func(l *ledger, kp *identity.Keypair) error) error {
	kp, err := a.signer()
	if err != nil {
		return err
	}
	l, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l, kp)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func readKey(path string) (*identity.Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	return identity.KeypairFromHex(strings.TrimSpace(string(data)))
}
