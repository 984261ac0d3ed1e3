package utils

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var evmHexPattern = regexp.MustCompile("^(0x|0X)?[0-9a-fA-F]{40}$")

// IsEvmAddress check whether address is a well-formed 20-byte EVM address
func IsEvmAddress(address string) bool {
	if address == "" {
		return false
	}
	return evmHexPattern.MatchString(address)
}

// NormalizeAddress lowercases an EVM address and adds the 0x prefix if missing.
// Addresses that are not well-formed are returned trimmed but otherwise untouched.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !IsEvmAddress(address) {
		return address
	}
	if strings.HasPrefix(strings.ToLower(address), "0x") {
		return strings.ToLower(address)
	}
	return "0x" + strings.ToLower(address)
}

// SameAddress compares two addresses ignoring case and 0x prefix
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// IsZeroAddress reports whether address is the zero address
func IsZeroAddress(address string) bool {
	return IsEvmAddress(address) && common.HexToAddress(address) == (common.Address{})
}

// ShortAddress formats an address for display: 0x1234...abcd
func ShortAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
