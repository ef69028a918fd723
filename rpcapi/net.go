package rpcapi

import (
	"strconv"

	"github.com/cloudwalk/stratus/chainspec"
)

// NetService implements net_version.
type NetService struct{}

// Version returns the network id as a decimal string, per the standard
// net_version contract (distinct from eth_chainId's hex encoding).
func (NetService) Version() string {
	return strconv.Itoa(chainspec.ChainID)
}
