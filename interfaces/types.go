package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the byte length of account addresses and object ids.
const AddressLength = 32

// Address identifies an account on chain.
type Address [AddressLength]byte

// ObjectID identifies an on-chain object. It shares the address encoding.
type ObjectID = Address

var ErrInvalidAddress = errors.New("invalid address")

// ParseAddress decodes a 0x-prefixed hex address. Short forms such as "0x6"
// are left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(clean) == 0 || len(clean) > 2*AddressLength {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if len(clean)%2 == 1 {
		clean = "0" + clean
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	var addr Address
	copy(addr[AddressLength-len(raw):], raw)
	return addr, nil
}

// MustParseAddress is ParseAddress for constants.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// NewAddressFromBytes copies a 32-byte slice into an Address.
func NewAddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	var addr Address
	copy(addr[:], b)
	return addr, nil
}

// String returns the full 0x-prefixed hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Provider is one of the supported OAuth identity providers.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderApple    Provider = "apple"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderGoogle, ProviderFacebook, ProviderApple}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown provider %q", ErrConfiguration, s)
}

func (p Provider) String() string {
	return string(p)
}
