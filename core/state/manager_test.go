package state

import (
	"bytes"
	"math/big"
	"testing"

	"cipherex/native/assets"
	"cipherex/native/exchange"
	"cipherex/native/transfer"
	"cipherex/storage"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestAccountRoundTrip(t *testing.T) {
	m := testManager(t)
	owner := addr(1)

	acc, err := m.GetAccount(owner)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("expected zero balance for fresh account, got %s", acc.Balance)
	}

	acc.Nonce = 3
	acc.Balance = big.NewInt(12345)
	if err := m.PutAccount(owner, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}

	loaded, err := m.GetAccount(owner)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if loaded.Nonce != 3 || loaded.Balance.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("unexpected account %+v", loaded)
	}

	// Mutating the returned account must not leak into storage.
	loaded.Balance.SetInt64(0)
	again, err := m.GetAccount(owner)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if again.Balance.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("stored balance mutated via returned pointer")
	}
}

func TestCollectionAndTokenRoundTrip(t *testing.T) {
	m := testManager(t)
	collection := addr(2)

	if _, ok := m.CollectionGet(collection); ok {
		t.Fatalf("unexpected collection before put")
	}
	col := &assets.Collection{Address: collection, Name: "Vault", Symbol: "VLT", Creator: addr(3)}
	if err := m.CollectionPut(col); err != nil {
		t.Fatalf("put collection: %v", err)
	}
	loaded, ok := m.CollectionGet(collection)
	if !ok {
		t.Fatalf("collection missing after put")
	}
	if loaded.Name != "Vault" || loaded.Creator != addr(3) {
		t.Fatalf("unexpected collection %+v", loaded)
	}

	token := &assets.Token{
		Collection:  collection,
		ID:          7,
		Owner:       addr(4),
		Approved:    addr(5),
		ApprovedSet: true,
		MetaURI:     "ipfs://meta/7",
	}
	token.MetaHash[0] = 0xAB
	if err := m.TokenPut(token); err != nil {
		t.Fatalf("put token: %v", err)
	}
	got, ok := m.TokenGet(collection, 7)
	if !ok {
		t.Fatalf("token missing after put")
	}
	if got.Owner != addr(4) || !got.ApprovedSet || got.Approved != addr(5) {
		t.Fatalf("unexpected token %+v", got)
	}
	if got.MetaHash[0] != 0xAB || got.MetaURI != "ipfs://meta/7" {
		t.Fatalf("metadata lost in round trip: %+v", got)
	}
	if _, ok := m.TokenGet(collection, 8); ok {
		t.Fatalf("unexpected token for unused id")
	}
}

func TestTransferRecordRoundTrip(t *testing.T) {
	m := testManager(t)
	key := transfer.Key{Collection: addr(6), AssetID: 42}

	record := &transfer.Record{
		Collection:     key.Collection,
		AssetID:        key.AssetID,
		Initiator:      addr(7),
		From:           addr(7),
		To:             addr(8),
		ToSet:          true,
		Callback:       "exchange",
		AuxData:        []byte{0x01, 0x02},
		PublicKey:      bytes.Repeat([]byte{0x03}, 33),
		PublicKeySetAt: 1700000000,
		EpochTimestamp: 1699990000,
		EpochNumber:    2,
	}
	record.EpochBlockHash[31] = 0xFF
	if err := m.TransferPut(record); err != nil {
		t.Fatalf("put record: %v", err)
	}

	loaded, ok := m.TransferGet(key)
	if !ok {
		t.Fatalf("record missing after put")
	}
	if loaded.Status() != transfer.StatusDraftComplete {
		t.Fatalf("unexpected status %s", loaded.Status())
	}
	if loaded.PublicKeySetAt != 1700000000 || loaded.EpochTimestamp != 1699990000 {
		t.Fatalf("timestamps lost in round trip: %+v", loaded)
	}
	if loaded.EpochBlockHash[31] != 0xFF || loaded.EpochNumber != 2 {
		t.Fatalf("epoch fields lost in round trip: %+v", loaded)
	}
	if !bytes.Equal(loaded.PublicKey, record.PublicKey) {
		t.Fatalf("public key lost in round trip")
	}

	if err := m.TransferDelete(key); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, ok := m.TransferGet(key); ok {
		t.Fatalf("record still present after delete")
	}
}

func TestTransferPutRejectsInvalidRecord(t *testing.T) {
	m := testManager(t)
	record := &transfer.Record{Collection: addr(6), AssetID: 1}
	if err := m.TransferPut(record); err == nil {
		t.Fatalf("expected sanitize error for record without initiator")
	}
}

func TestTransferCountSurvivesDelete(t *testing.T) {
	m := testManager(t)
	key := transfer.Key{Collection: addr(9), AssetID: 1}

	count, err := m.TransferCount(key)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero epoch for untouched asset, got %d", count)
	}

	for want := uint64(1); want <= 3; want++ {
		got, err := m.TransferCountBump(key)
		if err != nil {
			t.Fatalf("bump: %v", err)
		}
		if got != want {
			t.Fatalf("expected epoch %d, got %d", want, got)
		}
	}

	if err := m.TransferDelete(key); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	count, err = m.TransferCount(key)
	if err != nil {
		t.Fatalf("count after delete: %v", err)
	}
	if count != 3 {
		t.Fatalf("epoch reset by record delete: got %d", count)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	m := testManager(t)
	collection := addr(10)

	order := &exchange.Order{
		Collection: collection,
		AssetID:    9,
		Price:      big.NewInt(10000),
		Initiator:  addr(11),
	}
	if err := m.OrderPut(order); err != nil {
		t.Fatalf("put order: %v", err)
	}

	loaded, ok := m.OrderGet(collection, 9)
	if !ok {
		t.Fatalf("order missing after put")
	}
	if loaded.Price.Cmp(big.NewInt(10000)) != 0 || loaded.Fulfilled {
		t.Fatalf("unexpected order %+v", loaded)
	}

	loaded.Receiver = addr(12)
	loaded.Fulfilled = true
	loaded.Paid = big.NewInt(10000)
	if err := m.OrderPut(loaded); err != nil {
		t.Fatalf("update order: %v", err)
	}
	updated, ok := m.OrderGet(collection, 9)
	if !ok {
		t.Fatalf("order missing after update")
	}
	if !updated.Fulfilled || updated.Paid.Cmp(big.NewInt(10000)) != 0 || updated.Receiver != addr(12) {
		t.Fatalf("unexpected updated order %+v", updated)
	}

	if err := m.OrderDelete(collection, 9); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if _, ok := m.OrderGet(collection, 9); ok {
		t.Fatalf("order still present after delete")
	}
}
