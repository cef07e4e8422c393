// Package decode holds the pure payload decoders: EVM calldata word
// extraction and TON BOC opcode classification. Nothing here performs I/O
// and nothing here is allowed to panic; every malformed input degrades to
// a sentinel value.
package decode

import (
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultTokenDecimals matches the USDC/USDT display precision used by
// the tracked contracts.
const DefaultTokenDecimals = 6

const (
	selectorHexChars = 8
	wordHexChars     = 64
)

// AmountFromCalldata reads the 32-byte ABI word at wordIndex (zero-based,
// counted after the 4-byte function selector) from "0x"-prefixed calldata
// and scales it down by 10^decimals. decimals <= 0 falls back to
// DefaultTokenDecimals.
//
// Only the requested word is decoded: garbage elsewhere in the payload
// does not affect an intact target word. Every failure path (missing
// prefix, word out of bounds, non-hex word) returns 0.0. Callers treat
// 0.0 as "no extractable amount".
func AmountFromCalldata(input string, wordIndex, decimals int) float64 {
	if !strings.HasPrefix(input, "0x") || wordIndex < 0 {
		return 0.0
	}
	if decimals <= 0 {
		decimals = DefaultTokenDecimals
	}

	start := len("0x") + selectorHexChars + wordIndex*wordHexChars
	end := start + wordHexChars
	if len(input) < end {
		return 0.0
	}

	wordBytes, err := hexutil.Decode("0x" + input[start:end])
	if err != nil {
		return 0.0
	}

	word := new(big.Int).SetBytes(wordBytes)
	value, _ := new(big.Float).SetInt(word).Float64()
	return value / math.Pow10(decimals)
}
