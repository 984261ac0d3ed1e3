package chain

import (
	"errors"
	"fmt"
	"strings"

	"ticket-backend/internal/wallet"
)

var (
	// ErrChainUnavailable no RPC endpoint answered
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrCallReverted the contract rejected a read (unknown token, missing method)
	ErrCallReverted = errors.New("contract call reverted")
)

// ErrorKind classifies write failures
type ErrorKind string

const (
	KindWrongNetwork       ErrorKind = "wrong_network"
	KindWalletNotConnected ErrorKind = "wallet_not_connected"
	KindInsufficientValue  ErrorKind = "insufficient_value"
	KindReverted           ErrorKind = "reverted"
	KindTimeout            ErrorKind = "timeout"
	KindInvalidRecipient   ErrorKind = "invalid_recipient"
	KindSelfTransfer       ErrorKind = "self_transfer"
)

// MintError is returned by Gateway.Mint.
// KindTimeout means the outcome is unknown and chain state must be re-read before retrying.
type MintError struct {
	Kind   ErrorKind
	Reason string
	TxHash string
	Err    error
}

func (e *MintError) Error() string {
	msg := "mint " + string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TxHash != "" {
		msg += " (tx " + e.TxHash + ")"
	}
	return msg
}

func (e *MintError) Unwrap() error {
	return e.Err
}

// TransferError is returned by Gateway.Transfer
type TransferError struct {
	Kind   ErrorKind
	Reason string
	TxHash string
	Err    error
}

func (e *TransferError) Error() string {
	msg := "transfer " + string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TxHash != "" {
		msg += " (tx " + e.TxHash + ")"
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a MintError or TransferError in err's chain, "" otherwise
func KindOf(err error) ErrorKind {
	var mintErr *MintError
	if errors.As(err, &mintErr) {
		return mintErr.Kind
	}
	var transferErr *TransferError
	if errors.As(err, &transferErr) {
		return transferErr.Kind
	}
	return ""
}

// isRevert reports whether an eth_call/eth_estimateGas error is an execution revert
func isRevert(err error) bool {
	if wallet.ErrorCode(err) == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// classifySendError maps a submission failure to a write error kind
func classifySendError(err error) (ErrorKind, string) {
	lower := strings.ToLower(err.Error())
	switch {
	case wallet.ErrorCode(err) == wallet.CodeUserRejected:
		return KindReverted, "rejected in wallet"
	case strings.Contains(lower, "insufficient funds"):
		return KindInsufficientValue, err.Error()
	case isRevert(err):
		return KindReverted, err.Error()
	}
	return KindReverted, fmt.Sprintf("submission failed: %v", err)
}
