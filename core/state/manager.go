// Package state persists module records into a key-value backend. Each
// native engine sees only the narrow slice of the Manager it declares as its
// state interface; the Manager owns key layout and codec.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"cipherex/core/types"
	"cipherex/native/assets"
	"cipherex/native/exchange"
	"cipherex/native/transfer"
	"cipherex/storage"
)

var (
	accountPrefix       = []byte("account/")
	collectionPrefix    = []byte("assets/collection/")
	tokenPrefix         = []byte("assets/token/")
	transferPrefix      = []byte("transfer/record/")
	transferEpochPrefix = []byte("transfer/epoch/")
	orderPrefix         = []byte("exchange/order/")
)

// Manager wires the engines' state interfaces to a storage.Database with
// RLP-encoded values.
type Manager struct {
	db storage.Database
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func assetKey(prefix []byte, collection [20]byte, id uint64) []byte {
	key := make([]byte, 0, len(prefix)+28)
	key = append(key, prefix...)
	key = append(key, collection[:]...)
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	return append(key, idBytes[:]...)
}

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// --- accounts ---

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads the account for the address, returning a zero-balance
// account when none is stored.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	key := append(append([]byte(nil), accountPrefix...), addr[:]...)
	var stored storedAccount
	ok, err := m.kvGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	balance := big.NewInt(0)
	if stored.Balance != nil {
		balance = new(big.Int).Set(stored.Balance)
	}
	return &types.Account{Nonce: stored.Nonce, Balance: balance}, nil
}

// PutAccount stores the account for the address.
func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	key := append(append([]byte(nil), accountPrefix...), addr[:]...)
	balance := big.NewInt(0)
	if acc.Balance != nil {
		balance = new(big.Int).Set(acc.Balance)
	}
	return m.kvPut(key, &storedAccount{Nonce: acc.Nonce, Balance: balance})
}

// --- asset registry ---

type storedCollection struct {
	Address [20]byte
	Name    string
	Symbol  string
	Creator [20]byte
}

type storedToken struct {
	Collection      [20]byte
	ID              uint64
	Owner           [20]byte
	Approved        [20]byte
	ApprovedSet     bool
	MetaHash        [32]byte
	MetaURI         string
	ContentAssigned bool
}

func (m *Manager) CollectionGet(addr [20]byte) (*assets.Collection, bool) {
	key := append(append([]byte(nil), collectionPrefix...), addr[:]...)
	var stored storedCollection
	ok, err := m.kvGet(key, &stored)
	if err != nil || !ok {
		return nil, false
	}
	return &assets.Collection{
		Address: stored.Address,
		Name:    stored.Name,
		Symbol:  stored.Symbol,
		Creator: stored.Creator,
	}, true
}

func (m *Manager) CollectionPut(col *assets.Collection) error {
	if col == nil {
		return fmt.Errorf("state: nil collection")
	}
	key := append(append([]byte(nil), collectionPrefix...), col.Address[:]...)
	return m.kvPut(key, &storedCollection{
		Address: col.Address,
		Name:    col.Name,
		Symbol:  col.Symbol,
		Creator: col.Creator,
	})
}

func (m *Manager) TokenGet(collection [20]byte, id uint64) (*assets.Token, bool) {
	var stored storedToken
	ok, err := m.kvGet(assetKey(tokenPrefix, collection, id), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return &assets.Token{
		Collection:      stored.Collection,
		ID:              stored.ID,
		Owner:           stored.Owner,
		Approved:        stored.Approved,
		ApprovedSet:     stored.ApprovedSet,
		MetaHash:        stored.MetaHash,
		MetaURI:         stored.MetaURI,
		ContentAssigned: stored.ContentAssigned,
	}, true
}

func (m *Manager) TokenPut(token *assets.Token) error {
	if token == nil {
		return fmt.Errorf("state: nil token")
	}
	return m.kvPut(assetKey(tokenPrefix, token.Collection, token.ID), &storedToken{
		Collection:      token.Collection,
		ID:              token.ID,
		Owner:           token.Owner,
		Approved:        token.Approved,
		ApprovedSet:     token.ApprovedSet,
		MetaHash:        token.MetaHash,
		MetaURI:         token.MetaURI,
		ContentAssigned: token.ContentAssigned,
	})
}

// --- transfer records ---

type storedRecord struct {
	Collection      [20]byte
	AssetID         uint64
	Initiator       [20]byte
	From            [20]byte
	To              [20]byte
	ToSet           bool
	Callback        string
	AuxData         []byte
	PublicKey       []byte
	EncryptedSecret []byte
	FraudReported   bool
	PublicKeySetAt  uint64
	SecretSetAt     uint64
	EpochTimestamp  uint64
	EpochBlockHash  [32]byte
	EpochNumber     uint64
}

func (m *Manager) TransferGet(key transfer.Key) (*transfer.Record, bool) {
	var stored storedRecord
	ok, err := m.kvGet(assetKey(transferPrefix, key.Collection, key.AssetID), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return &transfer.Record{
		Collection:      stored.Collection,
		AssetID:         stored.AssetID,
		Initiator:       stored.Initiator,
		From:            stored.From,
		To:              stored.To,
		ToSet:           stored.ToSet,
		Callback:        stored.Callback,
		AuxData:         append([]byte(nil), stored.AuxData...),
		PublicKey:       append([]byte(nil), stored.PublicKey...),
		EncryptedSecret: append([]byte(nil), stored.EncryptedSecret...),
		FraudReported:   stored.FraudReported,
		PublicKeySetAt:  int64(stored.PublicKeySetAt),
		SecretSetAt:     int64(stored.SecretSetAt),
		EpochTimestamp:  int64(stored.EpochTimestamp),
		EpochBlockHash:  stored.EpochBlockHash,
		EpochNumber:     stored.EpochNumber,
	}, true
}

func (m *Manager) TransferPut(record *transfer.Record) error {
	sanitized, err := transfer.SanitizeRecord(record)
	if err != nil {
		return err
	}
	return m.kvPut(assetKey(transferPrefix, sanitized.Collection, sanitized.AssetID), &storedRecord{
		Collection:      sanitized.Collection,
		AssetID:         sanitized.AssetID,
		Initiator:       sanitized.Initiator,
		From:            sanitized.From,
		To:              sanitized.To,
		ToSet:           sanitized.ToSet,
		Callback:        sanitized.Callback,
		AuxData:         sanitized.AuxData,
		PublicKey:       sanitized.PublicKey,
		EncryptedSecret: sanitized.EncryptedSecret,
		FraudReported:   sanitized.FraudReported,
		PublicKeySetAt:  uint64(sanitized.PublicKeySetAt),
		SecretSetAt:     uint64(sanitized.SecretSetAt),
		EpochTimestamp:  uint64(sanitized.EpochTimestamp),
		EpochBlockHash:  sanitized.EpochBlockHash,
		EpochNumber:     sanitized.EpochNumber,
	})
}

func (m *Manager) TransferDelete(key transfer.Key) error {
	return m.db.Delete(assetKey(transferPrefix, key.Collection, key.AssetID))
}

// TransferCount returns the per-asset transfer epoch. Zero means no transfer
// was ever opened for the asset.
func (m *Manager) TransferCount(key transfer.Key) (uint64, error) {
	var count uint64
	_, err := m.kvGet(assetKey(transferEpochPrefix, key.Collection, key.AssetID), &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// TransferCountBump increments and returns the per-asset transfer epoch. The
// counter survives record deletion so superseded transfers stay
// distinguishable.
func (m *Manager) TransferCountBump(key transfer.Key) (uint64, error) {
	count, err := m.TransferCount(key)
	if err != nil {
		return 0, err
	}
	count++
	if err := m.kvPut(assetKey(transferEpochPrefix, key.Collection, key.AssetID), count); err != nil {
		return 0, err
	}
	return count, nil
}

// --- orders ---

type storedOrder struct {
	Collection [20]byte
	AssetID    uint64
	Price      *big.Int
	Initiator  [20]byte
	Receiver   [20]byte
	Fulfilled  bool
	Paid       *big.Int
}

func (m *Manager) OrderGet(collection [20]byte, assetID uint64) (*exchange.Order, bool) {
	var stored storedOrder
	ok, err := m.kvGet(assetKey(orderPrefix, collection, assetID), &stored)
	if err != nil || !ok {
		return nil, false
	}
	order := &exchange.Order{
		Collection: stored.Collection,
		AssetID:    stored.AssetID,
		Price:      big.NewInt(0),
		Initiator:  stored.Initiator,
		Receiver:   stored.Receiver,
		Fulfilled:  stored.Fulfilled,
		Paid:       big.NewInt(0),
	}
	if stored.Price != nil {
		order.Price = new(big.Int).Set(stored.Price)
	}
	if stored.Paid != nil {
		order.Paid = new(big.Int).Set(stored.Paid)
	}
	return order, true
}

func (m *Manager) OrderPut(order *exchange.Order) error {
	sanitized, err := exchange.SanitizeOrder(order)
	if err != nil {
		return err
	}
	return m.kvPut(assetKey(orderPrefix, sanitized.Collection, sanitized.AssetID), &storedOrder{
		Collection: sanitized.Collection,
		AssetID:    sanitized.AssetID,
		Price:      sanitized.Price,
		Initiator:  sanitized.Initiator,
		Receiver:   sanitized.Receiver,
		Fulfilled:  sanitized.Fulfilled,
		Paid:       sanitized.Paid,
	})
}

func (m *Manager) OrderDelete(collection [20]byte, assetID uint64) error {
	return m.db.Delete(assetKey(orderPrefix, collection, assetID))
}
