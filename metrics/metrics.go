// Package metrics holds the Prometheus collectors for the staking runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libstake_build_info",
			Help: "Build information of the staking ledger",
		},
		[]string{"version", "commit", "date"},
	)

	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libstake_instructions_total",
			Help: "Total number of submitted instructions",
		},
		[]string{"kind", "status"},
	)

	InstructionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libstake_instruction_duration_seconds",
			Help:    "Duration of instruction execution",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~0.8s
		},
		[]string{"kind"},
	)

	SettlementCreditedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "libstake_settlement_credited_total",
			Help: "Total reward units credited by settlement",
		},
	)

	ClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "libstake_claimed_total",
			Help: "Total reward units paid out by claims",
		},
	)

	VaultBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "libstake_vault_balance",
			Help: "Token balance held by each vault",
		},
		[]string{"vault"},
	)

	IntegrityFaultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "libstake_integrity_faults_total",
			Help: "Total number of claims that found the reward vault short",
		},
	)
)
