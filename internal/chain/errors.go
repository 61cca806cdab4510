package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrTransferFalse means a simulated token transfer returned false
// without reverting.
var ErrTransferFalse = errors.New("chain: token transfer returned false")

// Revert kinds, from most to least specific.
const (
	RevertNamed  = "named"  // a declared custom error on the escrow contract
	RevertReason = "reason" // Error(string) with a decoded reason
	RevertPanic  = "panic"  // Panic(uint256)
	RevertRaw    = "raw"    // revert data present but not decodable
	RevertOpaque = "opaque" // no revert data at all
)

// RevertError is a normalized contract revert. Message is always safe
// to show to a user; Raw keeps the original hex data for logs.
type RevertError struct {
	Kind    string
	Message string
	Raw     string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("chain: revert (%s): %s", e.Kind, e.Message)
}

// escrowErrorNames are the zero-argument custom errors the escrow
// contract declares. Selectors are derived at init.
var escrowErrorNames = []string{
	"BadStatus",
	"NoTrade",
	"NotSeller",
	"NotBuyer",
	"NotParty",
	"TooEarly",
	"AlreadyRegistered",
	"NotRegistered",
	"TokenZero",
	"AmountZero",
	"FeeTooHigh",
	"ParamTooSmall",
	"NotArbitrator",
	"FlushZero",
	"VetBankNotSet",
	"UsdtNotSet",
	"ZeroAddress",
	"Reentrancy",
	"NotOwner",
}

const (
	errorStringSelector = "08c379a0" // Error(string)
	panicSelector       = "4e487b71" // Panic(uint256)
)

var errorSelectors map[string]string

func init() {
	errorSelectors = make(map[string]string, len(escrowErrorNames))
	for _, name := range escrowErrorNames {
		sig := crypto.Keccak256([]byte(name + "()"))
		errorSelectors[hex.EncodeToString(sig[:4])] = name
	}
}

// dataError is the interface geth's JSON-RPC errors implement when the
// node attached revert data.
type dataError interface {
	ErrorData() interface{}
}

// DecodeRevert normalizes an eth_call or eth_estimateGas error into a
// RevertError. Errors without revert data pass through verbatim so RPC
// transport failures stay distinguishable from contract rejections.
func DecodeRevert(err error) error {
	if err == nil {
		return nil
	}

	var de dataError
	if !errors.As(err, &de) {
		if strings.Contains(err.Error(), "execution reverted") {
			return &RevertError{Kind: RevertOpaque, Message: err.Error()}
		}
		return err
	}

	raw, ok := de.ErrorData().(string)
	if !ok || raw == "" {
		return &RevertError{Kind: RevertOpaque, Message: err.Error()}
	}

	if rev := decodeRevertData(raw); rev != nil {
		return rev
	}
	return &RevertError{Kind: RevertRaw, Message: err.Error(), Raw: raw}
}

// decodeRevertData interprets hex revert data. Returns nil when the
// data is too short or malformed to interpret.
func decodeRevertData(raw string) *RevertError {
	data, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil || len(data) < 4 {
		return nil
	}
	selector := hex.EncodeToString(data[:4])

	if name, ok := errorSelectors[selector]; ok {
		return &RevertError{Kind: RevertNamed, Message: name, Raw: raw}
	}

	switch selector {
	case errorStringSelector:
		if msg, ok := unpackErrorString(data[4:]); ok {
			return &RevertError{Kind: RevertReason, Message: msg, Raw: raw}
		}
	case panicSelector:
		if len(data) >= 36 {
			code := new(big.Int).SetBytes(data[4:36])
			return &RevertError{Kind: RevertPanic, Message: fmt.Sprintf("panic 0x%02x", code), Raw: raw}
		}
	}
	return nil
}

// unpackErrorString decodes the ABI-encoded string payload of
// Error(string): a 32-byte offset, a 32-byte length, then the bytes.
func unpackErrorString(data []byte) (string, bool) {
	if len(data) < 64 {
		return "", false
	}
	offset := new(big.Int).SetBytes(data[:32])
	if !offset.IsUint64() || offset.Uint64()+32 > uint64(len(data)) {
		return "", false
	}
	off := offset.Uint64()
	length := new(big.Int).SetBytes(data[off : off+32])
	if !length.IsUint64() || off+32+length.Uint64() > uint64(len(data)) {
		return "", false
	}
	return string(data[off+32 : off+32+length.Uint64()]), true
}

// RefBytes converts a user-supplied payment reference to the bytes32
// form the contract stores. A 0x-prefixed 64-hex string is taken
// verbatim; anything else is hashed so arbitrary memos fit.
func RefBytes(ref string) [32]byte {
	var out [32]byte
	if ref == "" {
		return out
	}
	if strings.HasPrefix(ref, "0x") && len(ref) == 66 {
		if data, err := hex.DecodeString(ref[2:]); err == nil {
			copy(out[:], data)
			return out
		}
	}
	copy(out[:], crypto.Keccak256([]byte(ref)))
	return out
}

// RevertName returns the named custom error inside err, or "" when err
// is not a named revert.
func RevertName(err error) string {
	var rev *RevertError
	if errors.As(err, &rev) && rev.Kind == RevertNamed {
		return rev.Message
	}
	return ""
}

// UserMessage renders an error for display. Named reverts map to short
// human sentences; everything else falls back to the error text.
func UserMessage(err error) string {
	var rev *RevertError
	if !errors.As(err, &rev) {
		return err.Error()
	}
	switch rev.Kind {
	case RevertNamed:
		if msg, ok := namedErrorMessages[rev.Message]; ok {
			return msg
		}
		return "contract rejected the call: " + rev.Message
	case RevertReason:
		return "contract rejected the call: " + rev.Message
	default:
		return "transaction would revert"
	}
}

var namedErrorMessages = map[string]string{
	"BadStatus":         "trade is not in the right status for this action",
	"NoTrade":           "no trade exists with this id",
	"NotSeller":         "only the seller can do this",
	"NotBuyer":          "only the buyer can do this",
	"NotParty":          "only a party to the trade can do this",
	"TooEarly":          "the waiting period has not elapsed",
	"AlreadyRegistered": "contact is already registered",
	"NotRegistered":     "seller contact is not registered",
	"TokenZero":         "token address must not be zero",
	"AmountZero":        "amount must be greater than zero",
	"FeeTooHigh":        "fee exceeds the allowed maximum",
	"ParamTooSmall":     "parameter below the allowed minimum",
	"NotArbitrator":     "only the arbitrator can do this",
	"FlushZero":         "nothing to withdraw",
	"ZeroAddress":       "address must not be zero",
	"Reentrancy":        "reentrant call rejected",
	"NotOwner":          "only the owner can do this",
}
