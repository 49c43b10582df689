// Package metrics exposes the Prometheus series named in the keeper's
// external interface contract. Shape follows the teacher's
// faucet/backend/pkg/metrics package: package-level promauto collectors
// plus small Record*/Update* helpers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AppVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_version",
			Help: "Static build version info, one series per network.",
		},
		[]string{"network"},
	)

	KeeperAccount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_account",
			Help: "Keeper signing account, labeled by network.",
		},
		[]string{"network", "address"},
	)

	Epoch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epoch",
		Help: "Latest observed consensus epoch.",
	})

	ConsensusBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "consensus_block",
		Help: "Latest observed consensus slot.",
	})

	ExecutionBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execution_block",
		Help: "Latest observed execution block number.",
	})

	ExecutionTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execution_ts",
		Help: "Latest observed execution block timestamp.",
	})

	KeeperBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_balance",
		Help: "Current keeper account native-token balance, in wei.",
	})

	ProcessedExits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "processed_exits",
		Help: "Total number of validator voluntary exits submitted.",
	})

	OracleAvgRewardsPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_avg_rewards_per_second",
			Help: "Last reported avg_reward_per_second per oracle.",
		},
		[]string{"oracle_address"},
	)

	OracleUpdateTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_update_timestamp",
			Help: "Last reported update_timestamp per oracle.",
		},
		[]string{"oracle_address"},
	)
)

// RecordOracleVote records the per-oracle reward vote series.
func RecordOracleVote(oracleAddress string, avgRewardPerSecond int64, updateTimestamp int64) {
	OracleAvgRewardsPerSecond.WithLabelValues(oracleAddress).Set(float64(avgRewardPerSecond))
	OracleUpdateTimestamp.WithLabelValues(oracleAddress).Set(float64(updateTimestamp))
}

// UpdateKeeperBalance sets the keeper_balance gauge.
func UpdateKeeperBalance(weiBalance float64) {
	KeeperBalance.Set(weiBalance)
}

// UpdateChainHead sets epoch/consensus_block/execution_block/execution_ts together.
func UpdateChainHead(epoch, consensusSlot, executionBlock, executionTimestamp int64) {
	Epoch.Set(float64(epoch))
	ConsensusBlock.Set(float64(consensusSlot))
	ExecutionBlock.Set(float64(executionBlock))
	ExecutionTimestamp.Set(float64(executionTimestamp))
}
