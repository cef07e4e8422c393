// Package normalizer maps raw provider records into canonical
// transactions. Malformed records are skipped individually, never failing
// the batch: upstream providers do not guarantee uniformly well-formed
// records across a paginated fetch, and one bad record must not block
// ingestion of the rest.
package normalizer

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/rwx610/QuestMe-Dashboard/internal/chain/evm"
	"github.com/rwx610/QuestMe-Dashboard/internal/chain/ton"
	"github.com/rwx610/QuestMe-Dashboard/internal/decode"
	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/metrics"
)

// Skip reports one raw record that was dropped and why. Skips are
// observable (logged and counted) but do not change control flow.
type Skip struct {
	Index  int
	Reason string
}

const (
	skipMissingHash  = "missing_hash"
	skipBadTimestamp = "bad_timestamp"
	skipBadBlock     = "bad_block"
	skipBadValue     = "bad_value"
	skipMissingInMsg = "missing_in_msg"
)

const (
	evmNativeDecimals = 1e18
	tonNanoDecimals   = 1e9
	usdtNanoDecimals  = 1e6
)

// NormalizeEVM maps explorer records for one tracked contract. When the
// contract carries a calldata extraction rule the value comes from the
// configured ABI word (extraction failures degrade to 0.0, not to the
// native value); otherwise the native value field scaled by 1e18 applies.
func NormalizeEVM(raw []evm.Transaction, contract *model.ContractRef) ([]model.Transaction, []Skip) {
	stored := contract.StoredContract()

	txs := make([]model.Transaction, 0, len(raw))
	var skips []Skip
	for i, tx := range raw {
		if tx.Hash == "" {
			skips = append(skips, Skip{Index: i, Reason: skipMissingHash})
			continue
		}
		ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
		if err != nil {
			skips = append(skips, Skip{Index: i, Reason: skipBadTimestamp})
			continue
		}
		block, err := strconv.ParseInt(tx.BlockNumber, 10, 64)
		if err != nil {
			skips = append(skips, Skip{Index: i, Reason: skipBadBlock})
			continue
		}

		var value float64
		if contract.ValueWordIndex != nil {
			value = decode.AmountFromCalldata(tx.Input, *contract.ValueWordIndex, contract.ValueDecimals)
		} else {
			wei, ok := new(big.Int).SetString(tx.Value, 10)
			if !ok {
				skips = append(skips, Skip{Index: i, Reason: skipBadValue})
				continue
			}
			f, _ := new(big.Float).SetInt(wei).Float64()
			value = f / evmNativeDecimals
		}

		txs = append(txs, model.Transaction{
			TxHash:      tx.Hash,
			Timestamp:   ts,
			Block:       block,
			FromAddress: strings.ToLower(tx.From),
			ToAddress:   strings.ToLower(tx.To),
			Value:       value,
			Network:     model.NetworkBase,
			Contract:    stored,
			Type:        operationFromFunctionName(tx.FunctionName),
			RawPayload:  tx.Input,
		})
	}

	record(model.NetworkBase, len(txs), skips)
	return txs, skips
}

// operationFromFunctionName truncates the explorer's human-readable
// label at the argument signature: "mint(address to)" -> "mint".
func operationFromFunctionName(name string) string {
	op, _, _ := strings.Cut(name, "(")
	return op
}

// NormalizeTON maps ledger records for one tracked contract. Addresses
// keep their mixed-case form: TON addresses are base64url and
// case-sensitive.
func NormalizeTON(raw []ton.Transaction, contract *model.ContractRef) ([]model.Transaction, []Skip) {
	txs := make([]model.Transaction, 0, len(raw))
	var skips []Skip
	for i, tx := range raw {
		if tx.InMsg == nil {
			skips = append(skips, Skip{Index: i, Reason: skipMissingInMsg})
			continue
		}
		if tx.TransactionID.Hash == "" {
			skips = append(skips, Skip{Index: i, Reason: skipMissingHash})
			continue
		}
		lt, err := strconv.ParseInt(tx.TransactionID.LT, 10, 64)
		if err != nil {
			skips = append(skips, Skip{Index: i, Reason: skipBadBlock})
			continue
		}
		nano, err := strconv.ParseFloat(tx.InMsg.Value, 64)
		if err != nil {
			skips = append(skips, Skip{Index: i, Reason: skipBadValue})
			continue
		}

		txs = append(txs, model.Transaction{
			TxHash:      tx.TransactionID.Hash,
			Timestamp:   tx.UTime,
			Block:       lt,
			FromAddress: tx.InMsg.Source,
			ToAddress:   tx.InMsg.Destination,
			Value:       nano / tonNanoDecimals,
			Network:     model.NetworkTON,
			Contract:    contract.StoredContract(),
			Type:        decode.OperationType(tx.InMsg.MsgData.Type, tx.InMsg.MsgData.Body),
			RawPayload:  tx.Data,
		})
	}

	record(model.NetworkTON, len(txs), skips)
	return txs, skips
}

// ExtractRewardWithdrawals keeps only outgoing messages sent by the
// contract's reward jetton wallet that carry the jetton transfer opcode;
// each match becomes one "withdraw" row in USDT display units. All other
// outgoing messages on the transaction are discarded.
func ExtractRewardWithdrawals(raw []ton.Transaction, contract *model.ContractRef) ([]model.Transaction, []Skip) {
	var txs []model.Transaction
	var skips []Skip
	for i, tx := range raw {
		for _, msg := range tx.OutMsgs {
			if msg.Source != contract.RewardWallet {
				continue
			}
			if !decode.IsJettonTransfer(msg.MsgData.Body) {
				continue
			}

			lt, err := strconv.ParseInt(tx.TransactionID.LT, 10, 64)
			if err != nil {
				skips = append(skips, Skip{Index: i, Reason: skipBadBlock})
				continue
			}
			nano, err := strconv.ParseFloat(msg.Value, 64)
			if err != nil {
				skips = append(skips, Skip{Index: i, Reason: skipBadValue})
				continue
			}

			txs = append(txs, model.Transaction{
				TxHash:      tx.TransactionID.Hash,
				Timestamp:   tx.UTime,
				Block:       lt,
				FromAddress: msg.Source,
				ToAddress:   msg.Destination,
				Value:       nano / usdtNanoDecimals,
				Network:     model.NetworkTON,
				Contract:    contract.StoredContract(),
				Type:        model.OpWithdraw,
				RawPayload:  msg.MsgData.Body,
			})
		}
	}

	record(model.NetworkTON, len(txs), skips)
	return txs, skips
}

func record(network model.Network, produced int, skips []Skip) {
	metrics.NormalizedRecords.WithLabelValues(network.String()).Add(float64(produced))
	for _, s := range skips {
		metrics.SkippedRecords.WithLabelValues(network.String(), s.Reason).Inc()
	}
}
