// Package whitelist implements the signature-gated discount pricing policy
// consulted at draft completion. It is pure validation plus arithmetic; the
// signature scheme sits behind the Recoverer interface so it can be swapped
// without touching the pricing logic.
package whitelist

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrInvalidProof     = errors.New("whitelist: malformed pricing proof")
	ErrValueMismatch    = errors.New("whitelist: paid value does not match price")
	ErrBadSignature     = errors.New("whitelist: signature does not match tier approver")
	ErrExpired          = errors.New("whitelist: whitelist period elapsed")
	ErrNotConfigured    = errors.New("whitelist: whitelist deadline not configured")
	ErrDiscountTooLarge = errors.New("whitelist: discount bps out of range")
)

// Proof is the opaque aux payload packaged by the coordinator on whitelisted
// fulfillments: the declared order price, the value actually paid, a digest
// of the buyer address and the tier approver's signature over that digest.
type Proof struct {
	DeclaredPrice *big.Int
	PaidValue     *big.Int
	BuyerDigest   [32]byte
	Signature     []byte
}

// EncodeProof serialises a proof for transport inside aux data.
func EncodeProof(p *Proof) ([]byte, error) {
	if p == nil {
		return nil, ErrInvalidProof
	}
	return rlp.EncodeToBytes(p)
}

// DecodeProof parses an aux payload back into a proof.
func DecodeProof(data []byte) (*Proof, error) {
	proof := new(Proof)
	if err := rlp.DecodeBytes(data, proof); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return proof, nil
}

// BuyerDigest is the canonical digest the tier approver signs: keccak256 of
// the raw buyer address bytes.
func BuyerDigest(buyer [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash(buyer[:])
}

// Tier is a discounted allocation range. Start and End are inclusive asset
// ids; Approver is the role-specific address whose signature unlocks the
// discount.
type Tier struct {
	Start       uint64
	End         uint64
	DiscountBps uint32
	Approver    [20]byte
}

// Recoverer turns a digest and signature back into the signer address.
type Recoverer interface {
	Recover(digest [32]byte, sig []byte) ([20]byte, error)
}

// EthRecoverer recovers secp256k1 signatures in the [R || S || V] 65-byte
// form.
type EthRecoverer struct{}

func (EthRecoverer) Recover(digest [32]byte, sig []byte) ([20]byte, error) {
	pub, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return [20]byte{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// ContentSource reports whether an asset's hidden content has been bound
// already; tiers only discount first purchases.
type ContentSource interface {
	ContentAssigned(collection [20]byte, assetID uint64) (bool, error)
}

// Policy validates pricing proofs. Satisfies the transfer engine's
// PricingPolicy interface.
type Policy struct {
	tiers    []Tier
	deadline int64
	content  ContentSource
	recover  Recoverer
	nowFn    func() int64
}

// NewPolicy builds a policy over the given tiers. A zero deadline leaves the
// whitelist unconfigured: discounted fulfillments fail with a distinct error
// until a deadline is set.
func NewPolicy(tiers []Tier, deadline int64, content ContentSource) (*Policy, error) {
	for _, tier := range tiers {
		if tier.DiscountBps > 10_000 {
			return nil, ErrDiscountTooLarge
		}
	}
	return &Policy{
		tiers:    append([]Tier(nil), tiers...),
		deadline: deadline,
		content:  content,
		recover:  EthRecoverer{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}, nil
}

// SetRecoverer swaps the signature scheme. Nil resets to secp256k1.
func (p *Policy) SetRecoverer(r Recoverer) {
	if r == nil {
		p.recover = EthRecoverer{}
		return
	}
	p.recover = r
}

// SetNowFunc overrides the time source, primarily for tests.
func (p *Policy) SetNowFunc(now func() int64) {
	if now == nil {
		p.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	p.nowFn = now
}

// SetDeadline updates the whitelist deadline.
func (p *Policy) SetDeadline(deadline int64) { p.deadline = deadline }

func (p *Policy) tierFor(assetID uint64) *Tier {
	for i := range p.tiers {
		if assetID >= p.tiers[i].Start && assetID <= p.tiers[i].End {
			return &p.tiers[i]
		}
	}
	return nil
}

// FinalPrice applies the tier discount with integer floor division.
func FinalPrice(declared *big.Int, discountBps uint32) *big.Int {
	if declared == nil {
		return big.NewInt(0)
	}
	discount := new(big.Int).Mul(declared, new(big.Int).SetUint64(uint64(discountBps)))
	discount.Div(discount, big.NewInt(10_000))
	return new(big.Int).Sub(declared, discount)
}

// Validate checks the proof attached to a draft completion: tier assets on
// first purchase must carry a valid approver signature and pay the discounted
// price exactly; everything else pays the declared price exactly.
func (p *Policy) Validate(collection [20]byte, assetID uint64, aux []byte) error {
	proof, err := DecodeProof(aux)
	if err != nil {
		return err
	}
	if proof.DeclaredPrice == nil || proof.PaidValue == nil {
		return ErrInvalidProof
	}
	final := new(big.Int).Set(proof.DeclaredPrice)
	if tier := p.tierFor(assetID); tier != nil {
		assigned := false
		if p.content != nil {
			assigned, err = p.content.ContentAssigned(collection, assetID)
			if err != nil {
				return err
			}
		}
		if !assigned {
			if p.deadline == 0 {
				return ErrNotConfigured
			}
			if p.nowFn() > p.deadline {
				return ErrExpired
			}
			signer, err := p.recover.Recover(proof.BuyerDigest, proof.Signature)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadSignature, err)
			}
			if signer != tier.Approver {
				return ErrBadSignature
			}
			final = FinalPrice(proof.DeclaredPrice, tier.DiscountBps)
		}
	}
	if proof.PaidValue.Cmp(final) != 0 {
		return fmt.Errorf("%w: want %s, paid %s", ErrValueMismatch, final, proof.PaidValue)
	}
	return nil
}
