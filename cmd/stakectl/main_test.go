package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libstake-go/config"
	"github.com/bitfsorg/libstake-go/staking"
)

type cli struct {
	t   *testing.T
	dir string
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--data-dir", c.dir}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "stakectl %s", strings.Join(args, " "))
	return strings.TrimSpace(out)
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	c := &cli{t: t, dir: dir}

	adminAddr := c.mustRun("keygen", "--out", filepath.Join(dir, "admin.key"))
	aliceKey := filepath.Join(dir, "alice.key")
	aliceAddr := c.mustRun("keygen", "--out", aliceKey)

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.AdminKeyFile = "admin.key"
	require.NoError(t, config.SaveConfig(config.ConfigPath(dir), cfg))

	assert.Equal(t, adminAddr, c.mustRun("address"))
	assert.Equal(t, aliceAddr, c.mustRun("--key", aliceKey, "address"))

	stakeMint := c.mustRun("create-mint", "--seed", "stake")
	rewardMint := c.mustRun("create-mint", "--seed", "reward")
	c.mustRun("mint-to", "--mint", rewardMint, "--to", adminAddr, "--amount", "1000")
	assert.Equal(t, "balance 100", c.mustRun("mint-to", "--mint", stakeMint, "--to", aliceAddr, "--amount", "100"))

	c.mustRun("init-stake-vault", "--stake-mint", stakeMint, "--epoch-duration", "1h")
	c.mustRun("init-reward-vault", "--reward-mint", rewardMint)
	assert.Contains(t, c.mustRun("toggle", "--epoch", "0", "--reward", "500"), "epoch 0 active allotment 500")

	out := c.mustRun("--key", aliceKey, "stake", "--epoch", "0", "--amount", "100", "--tier", "month")
	assert.Contains(t, out, "principal 100 tier month")

	out = c.mustRun("preview", "--epoch", "0")
	assert.Contains(t, out, "amount 500")
	assert.Contains(t, out, "dust 0")

	out = c.mustRun("settle", "--epoch", "0")
	assert.Contains(t, out, "credited 500")
	assert.Contains(t, out, "complete true")

	assert.Equal(t, "claimed 500", c.mustRun("--key", aliceKey, "claim"))

	_, err := c.run("--key", aliceKey, "withdraw", "--amount", "1")
	assert.ErrorIs(t, err, staking.ErrLockActive)

	assert.Contains(t, c.mustRun("audit"), "ok: 1 participants, principal 100, accrued 0")

	out = c.mustRun("show")
	assert.Contains(t, out, "admin           "+adminAddr)
	assert.Contains(t, out, "epoch duration  1h0m0s")

	journal := strings.Split(c.mustRun("journal"), "\n")
	// init x2, toggle, stake, settle, claim.
	assert.Len(t, journal, 6)
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	c := &cli{t: t, dir: dir}

	_, err := c.run()
	assert.Error(t, err)

	_, err = c.run("bogus")
	assert.ErrorContains(t, err, "unknown command")

	_, err = c.run("claim")
	assert.ErrorContains(t, err, "no signing key")

	_, err = c.run("--key", filepath.Join(dir, "missing.key"), "claim")
	assert.Error(t, err)

	_, err = c.run("stake", "--tier", "decade")
	assert.ErrorIs(t, err, staking.ErrInvalidLockTier)
}

func TestRun_InitConfig(t *testing.T) {
	dir := t.TempDir()
	c := &cli{t: t, dir: dir}

	c.mustRun("init-config")
	cfg, err := config.LoadConfig(config.ConfigPath(dir))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)

	_, err = c.run("init-config")
	assert.ErrorContains(t, err, "already exists")
	c.mustRun("init-config", "--force")
}
