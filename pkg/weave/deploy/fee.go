package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sort"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/logging"
)

// ErrNoHolders is returned when the community state lists no balances.
var ErrNoHolders = errors.New("community has no token holders")

// FeeNetwork is what the fee selector needs from the gateway.
type FeeNetwork interface {
	Pricer
	DataJSON(ctx context.Context, id string, v any) error
	PostTransaction(ctx context.Context, tx *arweave.Transaction) error
}

// Payment is a platform fee transfer that was posted.
type Payment struct {
	ID       string
	Target   string
	Quantity string
	Reward   string
}

// FeeSelector pays the platform fee to a token holder of the community
// contract, chosen with probability proportional to its balance.
type FeeSelector struct {
	Client      FeeNetwork
	Wallet      *arweave.Wallet
	CommunityTx string
	Rate        float64
	Version     string

	// pick returns a uniform value in [0, n).
	pick   func(n *big.Int) *big.Int
	logger *logging.Logger
}

// NewFeeSelector returns a selector paying rate of each deploy's reward.
func NewFeeSelector(client FeeNetwork, wallet *arweave.Wallet, communityTx string, rate float64) *FeeSelector {
	return &FeeSelector{
		Client:      client,
		Wallet:      wallet,
		CommunityTx: communityTx,
		Rate:        rate,
		pick:        randomBelow,
		logger:      logging.Get("deploy"),
	}
}

type communityState struct {
	Balances map[string]json.Number `json:"balances"`
}

// Holder returns a token-weighted random holder.
func (f *FeeSelector) Holder(ctx context.Context) (string, error) {
	var state communityState
	if err := f.Client.DataJSON(ctx, f.CommunityTx, &state); err != nil {
		return "", fmt.Errorf("reading community state: %w", err)
	}

	addrs := make([]string, 0, len(state.Balances))
	total := new(big.Int)
	weights := make(map[string]*big.Int, len(state.Balances))
	for addr, raw := range state.Balances {
		n, ok := new(big.Int).SetString(raw.String(), 10)
		if !ok || n.Sign() <= 0 {
			continue
		}
		addrs = append(addrs, addr)
		weights[addr] = n
		total.Add(total, n)
	}
	if len(addrs) == 0 {
		return "", ErrNoHolders
	}
	sort.Strings(addrs)

	pick := f.pick
	if pick == nil {
		pick = randomBelow
	}
	r := pick(total)
	for _, addr := range addrs {
		if r.Cmp(weights[addr]) < 0 {
			return addr, nil
		}
		r.Sub(r, weights[addr])
	}
	return addrs[len(addrs)-1], nil
}

// Pay posts one transfer of Rate * reward to a selected holder. It returns
// nil without error when the holder is the publisher or the amount is zero.
func (f *FeeSelector) Pay(ctx context.Context, reward *big.Int, message string) (*Payment, error) {
	quantity := arweave.Percent(reward, f.Rate)
	if quantity.Sign() <= 0 {
		return nil, nil
	}

	target, err := f.Holder(ctx)
	if err != nil {
		return nil, err
	}
	if target == f.Wallet.Address() {
		return nil, nil
	}

	version := f.Version
	if version == "" {
		version = "dev"
	}
	tx := arweave.NewTransaction([]arweave.Tag{
		{Name: "Action", Value: "Deploy"},
		{Name: "Message", Value: message},
		{Name: "Service", Value: AgentName},
		{Name: "App-Name", Value: AgentName},
		{Name: "App-Version", Value: version},
	})
	tx.Target = target
	tx.Quantity = quantity.String()
	tx.DataSize = "0"

	factory := Factory{Client: f.Client, Wallet: f.Wallet}
	if err := factory.Finalize(ctx, tx, 1); err != nil {
		return nil, fmt.Errorf("signing fee transfer: %w", err)
	}
	if err := f.Client.PostTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("posting fee transfer: %w", err)
	}

	if f.logger != nil {
		f.logger.Debug("platform fee paid", "id", tx.ID, "target", target, "quantity", tx.Quantity)
	}
	return &Payment{ID: tx.ID, Target: target, Quantity: tx.Quantity, Reward: tx.Reward}, nil
}

func randomBelow(n *big.Int) *big.Int {
	if n.IsUint64() {
		return new(big.Int).SetUint64(rand.Uint64N(n.Uint64()))
	}
	// Balances beyond 64 bits: scale a uniform float.
	f := new(big.Float).SetInt(n)
	f.Mul(f, big.NewFloat(rand.Float64()))
	out, _ := f.Int(nil)
	return out
}
