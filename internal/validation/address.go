// Package validation checks payout wallet addresses
package validation

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stakevault/backend/internal/apperrors"
)

// Network is the USDT network a wallet address belongs to
type Network string

const (
	NetworkTRC20 Network = "TRC20"
	// NetworkEVM covers ERC20 and BEP20, which share the address format
	NetworkEVM Network = "EVM"
)

var trc20Pattern = regexp.MustCompile(`^T[A-Za-z1-9]{33}$`)

// AddressValidator decides whether an address can receive payouts
type AddressValidator interface {
	Validate(address string) (Network, error)
}

// Validator accepts the networks listed in Networks
type Validator struct {
	Networks []Network
}

// NewValidator accepts every supported network when none are given
func NewValidator(networks ...Network) *Validator {
	if len(networks) == 0 {
		networks = []Network{NetworkTRC20, NetworkEVM}
	}
	return &Validator{Networks: networks}
}

// IsTRC20 reports whether address is a base58 Tron address
func IsTRC20(address string) bool {
	return trc20Pattern.MatchString(address)
}

// IsEVM reports whether address is a 0x-prefixed 20 byte hex address
func IsEVM(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// Validate returns the network of address or a validation error
func (v *Validator) Validate(address string) (Network, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", apperrors.Validation("wallet address is required")
	}

	for _, n := range v.Networks {
		switch n {
		case NetworkTRC20:
			if IsTRC20(address) {
				return n, nil
			}
		case NetworkEVM:
			if IsEVM(address) {
				return n, nil
			}
		}
	}
	return "", apperrors.Validation("invalid wallet address %q", address)
}
