package chain

import (
	"fmt"
	"strings"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// Network names a Sui deployment.
type Network string

const (
	Mainnet  Network = "mainnet"
	Testnet  Network = "testnet"
	Devnet   Network = "devnet"
	Localnet Network = "localnet"
)

func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(s)); n {
	case Mainnet, Testnet, Devnet, Localnet:
		return n, nil
	default:
		return "", fmt.Errorf("%w: unknown network %q", interfaces.ErrConfiguration, s)
	}
}

// FullnodeURL is the public RPC endpoint of the network.
func (n Network) FullnodeURL() string {
	if n == Localnet {
		return "http://127.0.0.1:9000"
	}
	return fmt.Sprintf("https://fullnode.%s.sui.io:443", n)
}

// FaucetURL is the gas faucet of the network. Mainnet has none.
func (n Network) FaucetURL() string {
	switch n {
	case Mainnet:
		return ""
	case Localnet:
		return "http://127.0.0.1:9123/gas"
	default:
		return fmt.Sprintf("https://faucet.%s.sui.io/gas", n)
	}
}
