package duties

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
)

type exitRequestWire struct {
	PositionTicket string  `json:"positionTicket"`
	Timestamp      string  `json:"timestamp"`
	ExitQueueIndex *string `json:"exitQueueIndex"`
	IsClaimed      bool    `json:"isClaimed"`
	IsClaimable    bool    `json:"isClaimable"`
	ExitedAssets   string  `json:"exitedAssets"`
	TotalAssets    string  `json:"totalAssets"`
}

func (w *exitRequestWire) toExitRequest() (ExitRequest, error) {
	ticket, ok := new(big.Int).SetString(w.PositionTicket, 10)
	if !ok {
		return ExitRequest{}, fmt.Errorf("invalid positionTicket %q", w.PositionTicket)
	}
	ts, ok := new(big.Int).SetString(w.Timestamp, 10)
	if !ok {
		return ExitRequest{}, fmt.Errorf("invalid timestamp %q", w.Timestamp)
	}
	exited, ok := new(big.Int).SetString(w.ExitedAssets, 10)
	if !ok {
		return ExitRequest{}, fmt.Errorf("invalid exitedAssets %q", w.ExitedAssets)
	}
	total, ok := new(big.Int).SetString(w.TotalAssets, 10)
	if !ok {
		return ExitRequest{}, fmt.Errorf("invalid totalAssets %q", w.TotalAssets)
	}

	var queueIndex *big.Int
	if w.ExitQueueIndex != nil {
		queueIndex, ok = new(big.Int).SetString(*w.ExitQueueIndex, 10)
		if !ok {
			return ExitRequest{}, fmt.Errorf("invalid exitQueueIndex %q", *w.ExitQueueIndex)
		}
	} else {
		queueIndex = big.NewInt(0)
	}

	return ExitRequest{
		PositionTicket: ticket,
		Timestamp:      ts,
		ExitQueueIndex: queueIndex,
		IsClaimed:      w.IsClaimed,
		IsClaimable:    w.IsClaimable,
		ExitedAssets:   exited,
		TotalAssets:    total,
	}, nil
}

type leveragePositionWire struct {
	User      string           `json:"user"`
	Proxy     string           `json:"proxy"`
	BorrowLTV string           `json:"borrowLtv"`
	Vault     struct{ ID string `json:"id"` } `json:"vault"`
	ExitRequest *exitRequestWire `json:"exitRequest"`
}

const leveragePositionsQuery = `
query PositionsQuery($block: Int, $first: Int!, $skip: Int!) {
  leverageStrategyPositions(
    block: { number: $block }
    orderBy: borrowLtv
    orderDirection: desc
    first: $first
    skip: $skip
  ) {
    user
    proxy
    borrowLtv
    vault { id }
    exitRequest {
      positionTicket
      timestamp
      exitQueueIndex
      isClaimed
      isClaimable
      exitedAssets
      totalAssets
    }
  }
}`

func (d *ForceExit) graphLeveragePositions(ctx context.Context, block ethchain.BlockIdentifier) ([]LeveragePosition, error) {
	pages, err := d.graph.FetchPages(ctx, leveragePositionsQuery, map[string]interface{}{"block": blockNumberArg(block)}, "leverageStrategyPositions")
	if err != nil {
		return nil, err
	}

	positions := make([]LeveragePosition, 0, len(pages))
	for _, raw := range pages {
		var wire leveragePositionWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("decode leverage position: %w", err)
		}

		borrowLtv, ok := new(big.Float).SetString(wire.BorrowLTV)
		if !ok {
			return nil, fmt.Errorf("invalid borrowLtv %q", wire.BorrowLTV)
		}
		borrowLtvFloat, _ := borrowLtv.Float64()

		pos := LeveragePosition{
			User:      common.HexToAddress(wire.User),
			Proxy:     common.HexToAddress(wire.Proxy),
			Vault:     common.HexToAddress(wire.Vault.ID),
			BorrowLTV: borrowLtvFloat,
		}
		if wire.ExitRequest != nil {
			req, err := wire.ExitRequest.toExitRequest()
			if err != nil {
				return nil, fmt.Errorf("decode exit request: %w", err)
			}
			pos.ExitRequest = &req
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

type allocatorWire struct {
	Address string `json:"address"`
	Vault   struct {
		OsTokenConfig struct {
			LiqThresholdPercent string `json:"liqThresholdPercent"`
		} `json:"osTokenConfig"`
	} `json:"vault"`
}

const allocatorsAboveLtvQuery = `
query AllocatorsQuery($ltv: String, $addresses: [String], $block: Int, $first: Int!, $skip: Int!) {
  allocators(
    block: { number: $block }
    where: { ltv_gt: $ltv, address_in: $addresses }
    orderBy: ltv
    orderDirection: desc
    first: $first
    skip: $skip
  ) {
    address
    vault { osTokenConfig { liqThresholdPercent } }
  }
}`

// graphAllocatorsAboveLtv returns the proxy addresses whose allocator LTV
// exceeds ltv, dropping any whose vault has liquidation disabled.
func (d *ForceExit) graphAllocatorsAboveLtv(ctx context.Context, ltv float64, proxies []common.Address, block ethchain.BlockIdentifier) ([]common.Address, error) {
	addrs := make([]string, len(proxies))
	for i, p := range proxies {
		addrs[i] = p.Hex()
	}

	pages, err := d.graph.FetchPages(ctx, allocatorsAboveLtvQuery, map[string]interface{}{
		"ltv":       fmt.Sprintf("%v", ltv),
		"addresses": addrs,
		"block":     blockNumberArg(block),
	}, "allocators")
	if err != nil {
		return nil, err
	}

	out := make([]common.Address, 0, len(pages))
	for _, raw := range pages {
		var wire allocatorWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("decode allocator: %w", err)
		}
		threshold, ok := new(big.Int).SetString(wire.Vault.OsTokenConfig.LiqThresholdPercent, 10)
		if !ok {
			return nil, fmt.Errorf("invalid liqThresholdPercent %q", wire.Vault.OsTokenConfig.LiqThresholdPercent)
		}
		if contracts.LiquidationDisabled(threshold) {
			continue
		}
		out = append(out, common.HexToAddress(wire.Address))
	}
	return out, nil
}

type osTokenExitRequestWire struct {
	ID          string          `json:"id"`
	Proxy       string          `json:"owner"`
	LTV         string          `json:"ltv"`
	Vault       struct{ ID string `json:"id"` } `json:"vault"`
	ExitRequest exitRequestWire `json:"exitRequest"`
}

const osTokenExitRequestsQuery = `
query ExitRequestsQuery($ltv: String, $block: Int, $first: Int!, $skip: Int!) {
  osTokenExitRequests(
    block: { number: $block }
    where: { ltv_gt: $ltv }
    first: $first
    skip: $skip
  ) {
    id
    owner
    ltv
    vault { id }
    exitRequest {
      positionTicket
      timestamp
      exitQueueIndex
      isClaimed
      isClaimable
      exitedAssets
      totalAssets
    }
  }
}`

func (d *ForceExit) graphOsTokenExitRequests(ctx context.Context, ltv float64, block ethchain.BlockIdentifier) ([]OsTokenExitRequest, error) {
	pages, err := d.graph.FetchPages(ctx, osTokenExitRequestsQuery, map[string]interface{}{
		"ltv":   fmt.Sprintf("%v", ltv),
		"block": blockNumberArg(block),
	}, "osTokenExitRequests")
	if err != nil {
		return nil, err
	}

	out := make([]OsTokenExitRequest, 0, len(pages))
	for _, raw := range pages {
		var wire osTokenExitRequestWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("decode ostoken exit request: %w", err)
		}
		ltv, ok := new(big.Int).SetString(wire.LTV, 10)
		if !ok {
			return nil, fmt.Errorf("invalid ltv %q", wire.LTV)
		}
		req, err := wire.ExitRequest.toExitRequest()
		if err != nil {
			return nil, fmt.Errorf("decode exit request: %w", err)
		}
		out = append(out, OsTokenExitRequest{
			ID:          wire.ID,
			Vault:       common.HexToAddress(wire.Vault.ID),
			Proxy:       common.HexToAddress(wire.Proxy),
			LTV:         ltv,
			ExitRequest: req,
		})
	}
	return out, nil
}

const leveragePositionOwnerQuery = `
query PositionOwnerQuery($proxy: Bytes) {
  leverageStrategyPositions(where: { proxy: $proxy }) {
    user
  }
}`

func (d *ForceExit) graphLeveragePositionOwner(ctx context.Context, proxy common.Address) (common.Address, error) {
	var out struct {
		LeverageStrategyPositions []struct {
			User string `json:"user"`
		} `json:"leverageStrategyPositions"`
	}
	if err := d.graph.RunQuery(ctx, leveragePositionOwnerQuery, map[string]interface{}{"proxy": proxy.Hex()}, &out); err != nil {
		return common.Address{}, err
	}
	if len(out.LeverageStrategyPositions) == 0 {
		return common.Address{}, fmt.Errorf("no leverage position found for proxy %s", proxy.Hex())
	}
	return common.HexToAddress(out.LeverageStrategyPositions[0].User), nil
}

type vaultHarvestParamsWire struct {
	ID                string   `json:"id"`
	RewardsRoot       string   `json:"rewardsRoot"`
	Reward            string   `json:"proofReward"`
	UnlockedMevReward string   `json:"proofUnlockedMevReward"`
	Proof             []string `json:"proof"`
}

const vaultsHarvestParamsQuery = `
query VaultsQuery($vaults: [String], $first: Int!, $skip: Int!) {
  vaults(first: $first, skip: $skip, where: { id_in: $vaults }) {
    id
    rewardsRoot
    proofReward
    proofUnlockedMevReward
    proof
  }
}`

// fetchVaultHarvestParams resolves the merkle-proof harvest parameters a
// vault needs for updateVaultState, one batched query across every vault
// a position touches. A vault with no proof yet (nothing harvested)
// decodes to the zero-value harvest params.
func (d *ForceExit) fetchVaultHarvestParams(ctx context.Context, vaults []common.Address) (map[common.Address]contracts.HarvestParams, error) {
	out := make(map[common.Address]contracts.HarvestParams, len(vaults))
	if len(vaults) == 0 {
		return out, nil
	}

	ids := make([]string, len(vaults))
	for i, v := range vaults {
		ids[i] = v.Hex()
		out[v] = contracts.ZeroHarvestParams()
	}

	pages, err := d.graph.FetchPages(ctx, vaultsHarvestParamsQuery, map[string]interface{}{"vaults": ids}, "vaults")
	if err != nil {
		return nil, err
	}

	for _, raw := range pages {
		var wire vaultHarvestParamsWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("decode vault harvest params: %w", err)
		}
		if wire.RewardsRoot == "" {
			continue
		}

		params, err := wire.toHarvestParams()
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", wire.ID, err)
		}
		out[common.HexToAddress(wire.ID)] = params
	}
	return out, nil
}

func (w *vaultHarvestParamsWire) toHarvestParams() (contracts.HarvestParams, error) {
	reward, ok := new(big.Int).SetString(w.Reward, 10)
	if !ok {
		return contracts.HarvestParams{}, fmt.Errorf("invalid proofReward %q", w.Reward)
	}
	unlocked, ok := new(big.Int).SetString(w.UnlockedMevReward, 10)
	if !ok {
		return contracts.HarvestParams{}, fmt.Errorf("invalid proofUnlockedMevReward %q", w.UnlockedMevReward)
	}

	proof := make([][32]byte, len(w.Proof))
	for i, p := range w.Proof {
		proof[i] = [32]byte(common.HexToHash(p))
	}

	return contracts.HarvestParams{
		RewardsRoot:       [32]byte(common.HexToHash(w.RewardsRoot)),
		Reward:            reward,
		UnlockedMevReward: unlocked,
		Proof:             proof,
	}, nil
}

// blockNumberArg converts a BlockIdentifier into the int the graph's
// `block: { number: $block }` argument expects, nil for unpinned reads.
func blockNumberArg(block ethchain.BlockIdentifier) interface{} {
	if block.Number == nil {
		return nil
	}
	return block.Number.Int64()
}
