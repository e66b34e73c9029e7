package deploy

import (
	"math/big"
	"strings"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/output"
	"github.com/jamesainslie/weave/pkg/weave/upload"
)

// SummaryInfo is the context a summary is rendered in.
type SummaryInfo struct {
	Gateway string
	Address string
	// Balance is the wallet balance in winston. Empty when unknown.
	Balance string
	// FeeRate is the platform fee share. Zero when the fee is disabled.
	FeeRate float64
}

// Summarize converts a plan, and the report of its deploy when there is
// one, into a renderable result.
func Summarize(plan *Plan, report *Report, info SummaryInfo) *output.Result {
	res := &output.Result{
		Source:          plan.Request.Path,
		Gateway:         info.Gateway,
		Address:         info.Address,
		AlreadyDeployed: plan.AlreadyDeployed,
		FreeBundler:     plan.FreeBundler(),
	}
	for _, dup := range plan.Duplicates {
		res.Items = append(res.Items, output.Item{
			Path:  dup.RelPath,
			ID:    dup.ID,
			Type:  "file",
			Size:  dup.Size,
			State: output.StateCached,
		})
	}

	for i, item := range plan.Items {
		row := output.Item{
			Path:  item.RelPath,
			ID:    item.ID(),
			Type:  item.Record.Tag("Type"),
			Size:  item.Record.DataSize(),
			State: output.StatePlanned,
		}
		if item.Record.Kind == RecordTransaction {
			row.Reward = item.Record.Reward()
		}
		if report != nil && i < len(report.Results) {
			applyResult(&row, report.Results[i])
		}
		res.Items = append(res.Items, row)
	}

	if plan.BundleTx != nil {
		row := output.Item{
			ID:     plan.BundleTx.ID,
			Type:   "bundle",
			Size:   plan.BundleTx.Chunks.DataSize,
			Reward: plan.BundleTx.Reward,
			State:  output.StatePlanned,
		}
		if report != nil && report.Bundle != nil {
			applyResult(&row, *report.Bundle)
		}
		res.Items = append(res.Items, row)
		res.BundleID = plan.BundleTx.ID
	}

	reward := plan.Reward()
	res.Reward = reward.String()

	fee := new(big.Int)
	if info.FeeRate > 0 && !res.FreeBundler {
		fee = arweave.Percent(reward, info.FeeRate)
		if fee.Sign() > 0 {
			res.ServiceFee = fee.String()
		}
	}
	if report != nil && report.Fee != nil {
		res.ServiceFee = report.Fee.Quantity
		fee = arweave.SumWinston(report.Fee.Quantity, report.Fee.Reward)
	}

	if info.Balance != "" {
		res.Balance = info.Balance
		after := arweave.SumWinston(info.Balance)
		after.Sub(after, reward)
		after.Sub(after, fee)
		res.BalanceAfter = after.String()
	}

	if id := plan.TargetID(); id != "" {
		if m := plan.ManifestItem(); m != nil {
			res.ManifestID = id
		}
		res.ManifestURL = strings.TrimRight(info.Gateway, "/") + "/" + id
	}

	for _, empty := range plan.Empty {
		res.Warnings = append(res.Warnings, "skipped empty file "+empty)
	}
	if report != nil {
		res.Duration = report.Duration
		res.Warnings = append(res.Warnings, report.Warnings...)
	}
	return res
}

// CanAfford reports whether balance covers the plan reward plus the
// platform fee at rate.
func CanAfford(plan *Plan, balance string, rate float64) bool {
	have, err := arweave.ParseWinston(balance)
	if err != nil {
		return false
	}
	reward := plan.Reward()
	need := new(big.Int).Add(reward, arweave.Percent(reward, rate))
	return have.Cmp(need) >= 0
}

func applyResult(row *output.Item, res ItemResult) {
	row.Strategy = string(res.Strategy)
	switch res.State {
	case upload.StateUploaded:
		row.State = output.StateUploaded
	case upload.StateFailed:
		row.State = output.StateFailed
		if res.Err != nil {
			row.Error = res.Err.Error()
		}
	case upload.StatePending, upload.StateUploading:
		row.State = output.StatePlanned
	}
}
