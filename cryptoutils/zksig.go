package cryptoutils

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ruteri/sui-escrow-gateway/bcs"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidZkLoginSignature = errors.New("invalid zklogin signature")

// ZkLoginInputs is the proof object returned by the prover, extended with the address seed.
type ZkLoginInputs struct {
	ProofPoints      ProofPoints      `json:"proofPoints"`
	IssBase64Details IssBase64Details `json:"issBase64Details"`
	HeaderBase64     string           `json:"headerBase64"`
	AddressSeed      string           `json:"addressSeed"`
}

type ProofPoints struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

type IssBase64Details struct {
	Value     string `json:"value"`
	IndexMod4 uint8  `json:"indexMod4"`
}

// ZkLoginSignature binds an ephemeral signature to a proof and a max epoch.
type ZkLoginSignature struct {
	Inputs   ZkLoginInputs
	MaxEpoch uint64
	// UserSignature is the serialized ephemeral signature (flag || sig || pk).
	UserSignature []byte
}

// ParseZkLoginInputs decodes a prover response. addressSeed is filled from fallbackSeed when absent.
func ParseZkLoginInputs(proof json.RawMessage, fallbackSeed string) (ZkLoginInputs, error) {
	var in ZkLoginInputs
	if len(proof) == 0 {
		return in, fmt.Errorf("%w: empty proof", ErrInvalidZkLoginSignature)
	}
	if err := json.Unmarshal(proof, &in); err != nil {
		return in, fmt.Errorf("%w: %v", ErrInvalidZkLoginSignature, err)
	}
	if in.AddressSeed == "" {
		in.AddressSeed = fallbackSeed
	}
	return in, nil
}

// Marshal returns flag || bcs(inputs, max_epoch, user_signature).
func (s *ZkLoginSignature) Marshal() []byte {
	e := bcs.NewEncoder()
	e.WriteU8(byte(SchemeZkLogin))

	writeStrings := func(v []string) {
		e.WriteULEB128(uint64(len(v)))
		for _, x := range v {
			e.WriteString(x)
		}
	}
	writeStrings(s.Inputs.ProofPoints.A)
	e.WriteULEB128(uint64(len(s.Inputs.ProofPoints.B)))
	for _, row := range s.Inputs.ProofPoints.B {
		writeStrings(row)
	}
	writeStrings(s.Inputs.ProofPoints.C)
	e.WriteString(s.Inputs.IssBase64Details.Value)
	e.WriteU8(s.Inputs.IssBase64Details.IndexMod4)
	e.WriteString(s.Inputs.HeaderBase64)
	e.WriteString(s.Inputs.AddressSeed)

	e.WriteU64(s.MaxEpoch)
	e.WriteBytes(s.UserSignature)
	return e.Bytes()
}

// ParseZkLoginSignature decodes a signature produced by Marshal.
func ParseZkLoginSignature(raw []byte) (*ZkLoginSignature, error) {
	if len(raw) == 0 || SignatureScheme(raw[0]) != SchemeZkLogin {
		return nil, fmt.Errorf("%w: missing zklogin flag", ErrInvalidZkLoginSignature)
	}
	d := bcs.NewDecoder(raw[1:])

	readStrings := func() []string {
		n := d.ReadLength()
		out := make([]string, 0, n)
		for i := 0; i < n && d.Err() == nil; i++ {
			out = append(out, d.ReadString())
		}
		return out
	}

	s := &ZkLoginSignature{}
	s.Inputs.ProofPoints.A = readStrings()
	rows := d.ReadLength()
	for i := 0; i < rows && d.Err() == nil; i++ {
		s.Inputs.ProofPoints.B = append(s.Inputs.ProofPoints.B, readStrings())
	}
	s.Inputs.ProofPoints.C = readStrings()
	s.Inputs.IssBase64Details.Value = d.ReadString()
	s.Inputs.IssBase64Details.IndexMod4 = d.ReadU8()
	s.Inputs.HeaderBase64 = d.ReadString()
	s.Inputs.AddressSeed = d.ReadString()
	s.MaxEpoch = d.ReadU64()
	s.UserSignature = d.ReadBytes()

	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidZkLoginSignature, err)
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidZkLoginSignature, d.Remaining())
	}
	return s, nil
}

// PublicKeyAddress is the address controlled by a plain key: blake2b256(flag || pk).
func PublicKeyAddress(scheme SignatureScheme, publicKey []byte) interfaces.Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{byte(scheme)})
	h.Write(publicKey)

	var addr interfaces.Address
	copy(addr[:], h.Sum(nil))
	return addr
}
