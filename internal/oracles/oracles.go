// Package oracles materializes the OracleCommittee from the Keeper
// contract's last ConfigUpdated event and the IPFS document it points to.
package oracles

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ipfsfetch"
)

// Oracle is a single committee member: its signing address and the HTTP
// endpoints it may be reached at (redundant gateways for the same oracle).
type Oracle struct {
	Address   common.Address
	Endpoints []string
}

// Committee is the set of oracles plus the quorum/threshold parameters
// read from the protocol config document.
type Committee struct {
	Oracles                       []Oracle
	ExitSignatureRecoverThreshold int
}

// ErrEmptyCommittee is returned when the loaded document names no oracles;
// callers MUST skip the tick with a logged error (spec §3 OracleCommittee).
var ErrEmptyCommittee = fmt.Errorf("empty oracle committee")

// configDocument is the IPFS document's shape: `{oracles: [{public_key,
// endpoints|endpoint}], exit_signature_recover_threshold}`.
type configDocument struct {
	Oracles []struct {
		PublicKey string   `json:"public_key"`
		Endpoint  string   `json:"endpoint"`
		Endpoints []string `json:"endpoints"`
	} `json:"oracles"`
	ExitSignatureRecoverThreshold int `json:"exit_signature_recover_threshold"`
}

// Loader reads the Keeper contract's last ConfigUpdated event and
// materializes the committee it points to.
type Loader struct {
	keeper          *contracts.Keeper
	ipfs            *ipfsfetch.Client
	secondsPerBlock float64
}

// NewLoader builds a protocol config loader.
func NewLoader(keeper *contracts.Keeper, ipfs *ipfsfetch.Client, secondsPerBlock float64) *Loader {
	return &Loader{keeper: keeper, ipfs: ipfs, secondsPerBlock: secondsPerBlock}
}

// Load scans for the last ConfigUpdated event and fetches+parses the
// document it references. Returns ErrEmptyCommittee if the document names
// no oracles.
func (l *Loader) Load(ctx context.Context) (Committee, error) {
	cid, found, err := l.keeper.GetLastConfigUpdateEvent(ctx, l.secondsPerBlock)
	if err != nil {
		return Committee{}, fmt.Errorf("scan for ConfigUpdated event: %w", err)
	}
	if !found {
		return Committee{}, ErrEmptyCommittee
	}

	var doc configDocument
	if err := l.ipfs.FetchJSON(ctx, cid, &doc); err != nil {
		return Committee{}, fmt.Errorf("fetch protocol config %s: %w", cid, err)
	}

	committee := parseConfigDocument(doc)
	if len(committee.Oracles) == 0 {
		return Committee{}, ErrEmptyCommittee
	}
	return committee, nil
}

// parseConfigDocument maps the IPFS document's oracle list (each entry
// using either a single `endpoint` or an `endpoints` array) into a Committee.
func parseConfigDocument(doc configDocument) Committee {
	committee := Committee{ExitSignatureRecoverThreshold: doc.ExitSignatureRecoverThreshold}
	for _, o := range doc.Oracles {
		endpoints := o.Endpoints
		if len(endpoints) == 0 && o.Endpoint != "" {
			endpoints = []string{o.Endpoint}
		}
		committee.Oracles = append(committee.Oracles, Oracle{
			Address:   common.HexToAddress(o.PublicKey),
			Endpoints: endpoints,
		})
	}
	return committee
}
