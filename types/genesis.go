package types

import (
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"

	"checkpointbft/crypto/bls"
	"checkpointbft/crypto/threshold"
)

const (
	// MaxChainIDLen is the maximum length of a chain id.
	MaxChainIDLen = 50

	// DefaultCheckpointInterval is the number of committed blocks a
	// checkpoint certificate spans when the genesis doc does not say.
	DefaultCheckpointInterval = 16
)

// GenesisValidator is a federation member as written in the genesis file.
// The validator index is its position in the list; the index doubles as the
// member's threshold share index.
type GenesisValidator struct {
	Address Address       `json:"address"`
	PubKey  crypto.PubKey `json:"pub_key"`
	Name    string        `json:"name"`
}

// GenesisDoc defines the initial conditions of a checkpointing federation: the
// membership, the federation threshold public polynomial, and the genesis
// certificate that roots the block tree.
type GenesisDoc struct {
	GenesisTime        time.Time          `json:"genesis_time"`
	ChainID            string             `json:"chain_id"`
	Validators         []GenesisValidator `json:"validators"`
	FederationPoly     *threshold.PubPoly `json:"federation_poly"`
	CheckpointInterval int64              `json:"checkpoint_interval"`
	GenesisQC          *QuorumCert        `json:"genesis_qc"`
}

// ValidatorSet builds the working validator set from the genesis membership.
func (genDoc *GenesisDoc) ValidatorSet() *ValidatorSet {
	valz := make([]*Validator, len(genDoc.Validators))
	for i, gv := range genDoc.Validators {
		valz[i] = NewValidator(gv.PubKey, int32(i))
	}
	return NewValidatorSet(valz, genDoc.FederationPoly)
}

// GenesisBlock rebuilds the deterministic genesis block for this document.
func (genDoc *GenesisDoc) GenesisBlock() *Block {
	return MakeGenesisBlock(genDoc.ChainID, genDoc.GenesisTime)
}

// SaveAs is a utility method for saving GenesisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tmos.WriteFile(file, genDocBytes, 0644)
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty.
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(genDoc.Validators) == 0 {
		return errors.New("genesis doc must include at least one validator")
	}
	if genDoc.FederationPoly == nil || genDoc.FederationPoly.IsEmpty() {
		return errors.New("genesis doc must include the federation public polynomial")
	}

	quorum := len(genDoc.Validators) - (len(genDoc.Validators)-1)/3
	if genDoc.FederationPoly.Threshold != quorum {
		return fmt.Errorf("federation polynomial threshold %d does not match quorum size %d",
			genDoc.FederationPoly.Threshold, quorum)
	}

	for i, gv := range genDoc.Validators {
		if gv.PubKey == nil {
			return fmt.Errorf("genesis validator %d has no public key", i)
		}
		addr := GetAddress(gv.PubKey)
		if len(gv.Address) == 0 {
			genDoc.Validators[i].Address = addr
		} else if !gv.Address.Equal(addr) {
			return fmt.Errorf("genesis validator %d address does not match its public key", i)
		}
	}

	if genDoc.CheckpointInterval == 0 {
		genDoc.CheckpointInterval = DefaultCheckpointInterval
	}
	if genDoc.CheckpointInterval < 1 {
		return fmt.Errorf("checkpoint_interval must be positive, got %d", genDoc.CheckpointInterval)
	}

	if genDoc.GenesisQC == nil {
		return errors.New("genesis doc must include the genesis certificate")
	}
	if err := genDoc.GenesisQC.Verify(genDoc.ChainID, genDoc.ValidatorSet()); err != nil {
		return fmt.Errorf("invalid genesis certificate: %w", err)
	}
	if !genDoc.GenesisQC.ForBlock(genDoc.GenesisBlock()) {
		return errors.New("genesis certificate does not certify the genesis block")
	}

	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = tmtime.Now()
	}
	return nil
}

// GenesisDocFromJSON unmarshals JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	err := tmjson.Unmarshal(jsonBlob, &genDoc)
	if err != nil {
		return nil, err
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return &genDoc, err
}

// GenesisDocFromFile reads JSON data from a file and unmarshals it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}

// RandGenesisDoc deals a fresh federation and assembles a complete genesis
// document around it.
//
// EXPOSED FOR TESTING.
func RandGenesisDoc(chainID string, numValidators int) (*GenesisDoc, []PrivValidator) {
	primary := bls.GenPrivKey()
	quorum := numValidators - (numValidators-1)/3
	poly := threshold.Master(primary, quorum, 1)

	genDoc := &GenesisDoc{
		GenesisTime:        tmtime.Now(),
		ChainID:            chainID,
		FederationPoly:     poly.PubPoly(),
		CheckpointInterval: DefaultCheckpointInterval,
	}

	privValidators := make([]PrivValidator, numValidators)
	for i := 0; i < numValidators; i++ {
		priv, err := poly.GetValue(int64(i))
		if err != nil {
			panic(err)
		}
		genDoc.Validators = append(genDoc.Validators, GenesisValidator{
			Address: GetAddress(priv.PubKey()),
			PubKey:  priv.PubKey(),
			Name:    fmt.Sprintf("validator-%d", i),
		})
		privValidators[i] = NewMockPV(priv, int32(i))
	}

	qc, err := MakeGenesisQC(chainID, genDoc.GenesisBlock().Hash(), numValidators, primary)
	if err != nil {
		panic(err)
	}
	genDoc.GenesisQC = qc
	return genDoc, privValidators
}

// MakeGenesisQC signs the genesis block with the federation primary key. The
// recovered threshold signature over any quorum of shares equals the primary
// signature, so the certificate verifies like any later commit certificate.
// Only the genesis dealer, who holds the primary key, can produce it.
func MakeGenesisQC(chainID string, genesisHash []byte, numValidators int, primary bls.PrivKey) (*QuorumCert, error) {
	msg := QuorumSignBytes(chainID, genesisHash, PhaseCommit, 0)
	sig, err := primary.Sign(msg)
	if err != nil {
		return nil, err
	}
	signers := make([]int32, numValidators)
	for i := range signers {
		signers[i] = int32(i)
	}
	return &QuorumCert{
		BlockHash:    genesisHash,
		Phase:        PhaseCommit,
		View:         0,
		Signers:      signers,
		AggSignature: sig,
	}, nil
}
