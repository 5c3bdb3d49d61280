package threshold

import (
	"encoding/json"
	"errors"
	"fmt"

	"checkpointbft/crypto/bls"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/sign/tbls"
	"go.dedis.ch/kyber/v3/xof/blake2xb"
)

var (
	ErrShareIndex    = errors.New("share index out of range")
	ErrTooFewShares  = errors.New("not enough signature shares to recover")
	ErrInvalidShare  = errors.New("signature share does not verify against the federation key")
	ErrEmptyPubPoly  = errors.New("public polynomial has no commitments")
)

// Poly is the federation's secret-sharing polynomial. The dealer evaluates it
// once at setup; validator i holds the share at index i and the polynomial is
// discarded. t valid signature shares recover a signature of the master key.
type Poly struct {
	t   int
	pri *share.PriPoly
	pub *share.PubPoly
}

// Master builds the sharing polynomial for a primary (master) key. The
// polynomial coefficients are drawn deterministically from seed so that a
// dealer can be re-run reproducibly during cluster setup.
func Master(primary bls.PrivKey, t int, seed int64) *Poly {
	secret, err := primary.Scalar()
	if err != nil {
		panic(fmt.Sprintf("invalid primary key: %v", err))
	}
	stream := blake2xb.New([]byte(fmt.Sprintf("checkpointbft-threshold-seed-%d", seed)))
	pri := share.NewPriPoly(bls.Suite.G2(), t, secret, stream)
	pub := pri.Commit(bls.Suite.G2().Point().Base())
	return &Poly{t: t, pri: pri, pub: pub}
}

// GetValue returns the private share for validator index idx (0-based).
func (p *Poly) GetValue(idx int64) (bls.PrivKey, error) {
	if idx < 0 {
		return nil, ErrShareIndex
	}
	priShare := p.pri.Eval(int(idx))
	bz, err := priShare.V.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return bls.PrivKey(bz), nil
}

// PubPoly returns the serializable public counterpart of the polynomial.
func (p *Poly) PubPoly() *PubPoly {
	_, commits := p.pub.Info()
	return &PubPoly{Threshold: p.t, commits: commits}
}

//-------------------------------------------------------------------------------

// PubPoly is the public commitment to the federation's sharing polynomial.
// It is part of the genesis document: it lets any party verify individual
// signature shares and recover the aggregated federation signature, with no
// state beyond the validator set.
type PubPoly struct {
	Threshold int
	commits   []kyber.Point
}

type pubPolyJSON struct {
	Threshold int      `json:"threshold"`
	Commits   [][]byte `json:"commits"`
}

func (pp *PubPoly) MarshalJSON() ([]byte, error) {
	out := pubPolyJSON{Threshold: pp.Threshold, Commits: make([][]byte, len(pp.commits))}
	for i, c := range pp.commits {
		bz, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out.Commits[i] = bz
	}
	return json.Marshal(out)
}

func (pp *PubPoly) UnmarshalJSON(data []byte) error {
	var in pubPolyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	pp.Threshold = in.Threshold
	pp.commits = make([]kyber.Point, len(in.Commits))
	for i, bz := range in.Commits {
		point := bls.Suite.G2().Point()
		if err := point.UnmarshalBinary(bz); err != nil {
			return err
		}
		pp.commits[i] = point
	}
	return nil
}

// IsEmpty reports whether the polynomial carries no commitments.
func (pp *PubPoly) IsEmpty() bool {
	return pp == nil || len(pp.commits) == 0
}

func (pp *PubPoly) kyberPoly() (*share.PubPoly, error) {
	if len(pp.commits) == 0 {
		return nil, ErrEmptyPubPoly
	}
	return share.NewPubPoly(bls.Suite.G2(), bls.Suite.G2().Point().Base(), pp.commits), nil
}

// MasterPubKey returns the federation (master) public key: the commitment to
// the polynomial's constant term. Recovered aggregate signatures verify
// against this key with a plain BLS verify.
func (pp *PubPoly) MasterPubKey() (bls.PubKey, error) {
	poly, err := pp.kyberPoly()
	if err != nil {
		return nil, err
	}
	bz, err := poly.Commit().MarshalBinary()
	if err != nil {
		return nil, err
	}
	return bls.PubKey(bz), nil
}

// SharePubKey returns the public key of the share at idx, i.e. the key that
// plain signatures made with that validator's share verify against.
func (pp *PubPoly) SharePubKey(idx int) (bls.PubKey, error) {
	poly, err := pp.kyberPoly()
	if err != nil {
		return nil, err
	}
	bz, err := poly.Eval(idx).V.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return bls.PubKey(bz), nil
}

// VerifyShare checks one index-prefixed signature share against the
// polynomial commitments.
func (pp *PubPoly) VerifyShare(msg, sigShare []byte) error {
	poly, err := pp.kyberPoly()
	if err != nil {
		return err
	}
	if err := tbls.Verify(bls.Suite, poly, msg, sigShare); err != nil {
		return ErrInvalidShare
	}
	return nil
}

// Recover combines at least Threshold valid signature shares over msg into the
// federation signature. n is the federation size.
func (pp *PubPoly) Recover(msg []byte, sigShares [][]byte, n int) ([]byte, error) {
	if len(sigShares) < pp.Threshold {
		return nil, ErrTooFewShares
	}
	poly, err := pp.kyberPoly()
	if err != nil {
		return nil, err
	}
	sig, err := tbls.Recover(bls.Suite, poly, msg, sigShares, pp.Threshold, n)
	if err != nil {
		return nil, fmt.Errorf("recover threshold signature: %w", err)
	}
	return sig, nil
}

//-------------------------------------------------------------------------------

// SignShare produces the index-prefixed signature share of msg for the
// validator holding priv as the share at idx.
func SignShare(priv bls.PrivKey, idx int, msg []byte) ([]byte, error) {
	scalar, err := priv.Scalar()
	if err != nil {
		return nil, err
	}
	return tbls.Sign(bls.Suite, &share.PriShare{I: idx, V: scalar}, msg)
}

// ShareIndex extracts the share index encoded in a signature share.
func ShareIndex(sigShare []byte) (int, error) {
	s := tbls.SigShare(sigShare)
	i, err := s.Index()
	if err != nil {
		return -1, err
	}
	return i, nil
}
