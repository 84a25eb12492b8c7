package zklogin

import (
	"fmt"
	"time"

	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// Signer is the signing capability of an active session.
type Signer struct {
	session *interfaces.AuthSession
	key     cryptoutils.KeyPair
	address interfaces.Address
	inputs  cryptoutils.ZkLoginInputs
	now     func() time.Time
}

var _ interfaces.TransactionSigner = (*Signer)(nil)

// NewSigner builds the signing capability of s. now defaults to time.Now.
func NewSigner(s *interfaces.AuthSession, now func() time.Time) (*Signer, error) {
	if now == nil {
		now = time.Now
	}
	if !IsSessionValid(s, now()) {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrSigning, interfaces.ErrSessionExpired)
	}

	key, err := cryptoutils.ImportKeyPair(s.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %v", interfaces.ErrSigning, err)
	}
	address, err := interfaces.ParseAddress(s.UserAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigning, err)
	}
	claims, err := ParseJWT(s.JWT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigning, err)
	}
	seed, err := cryptoutils.AddressSeed(s.Salt, claims.Subject, claims.Aud())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigning, err)
	}
	inputs, err := cryptoutils.ParseZkLoginInputs(s.ZkProof, cryptoutils.AddressSeedString(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigning, err)
	}
	seedAddress, err := cryptoutils.AddressFromSeedString(inputs.AddressSeed)
	if err != nil || seedAddress != address {
		return nil, fmt.Errorf("%w: proof address seed does not match session address %s", interfaces.ErrSigning, address)
	}

	return &Signer{
		session: s.Clone(),
		key:     key,
		address: address,
		inputs:  inputs,
		now:     now,
	}, nil
}

func (s *Signer) Address() interfaces.Address {
	return s.address
}

// MaxEpoch is the last epoch the signatures are accepted in.
func (s *Signer) MaxEpoch() uint64 {
	return s.session.MaxEpoch
}

// SignTransaction signs BCS transaction bytes and returns the base64 zkLogin signature.
func (s *Signer) SignTransaction(txBytes []byte) (string, error) {
	return s.sign(cryptoutils.TransactionDigest(txBytes))
}

// Sign signs an arbitrary payload as a personal message.
func (s *Signer) Sign(payload []byte) (string, error) {
	return s.sign(cryptoutils.PersonalMessageDigest(payload))
}

func (s *Signer) sign(digest [32]byte) (string, error) {
	if !IsSessionValid(s.session, s.now()) {
		return "", fmt.Errorf("%w: %w", interfaces.ErrSigning, interfaces.ErrSessionExpired)
	}
	userSig, err := cryptoutils.SignDigest(s.key, digest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSigning, err)
	}
	sig := &cryptoutils.ZkLoginSignature{
		Inputs:        s.inputs,
		MaxEpoch:      s.session.MaxEpoch,
		UserSignature: userSig,
	}
	return cryptoutils.EncodeSignature(sig.Marshal()), nil
}
