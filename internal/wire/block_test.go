package wire

import (
	"bytes"
	"testing"

	"devv.io/node/internal/cryptoprim"
)

func sampleTx(t *testing.T, priv *cryptoprim.StaticKeyRing, from, to cryptoprim.Address) *Transaction {
	t.Helper()
	p, _, _ := priv.NodeKey(0)
	tx, err := NewTransaction(p, OpExchange, []Transfer{
		{Address: from, CoinID: 1, Delta: -5},
		{Address: to, CoinID: 1, Delta: 5},
	}, testNonce())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	return tx
}

func TestFinalBlockRoundTrip(t *testing.T) {
	ring := testRing(t, 2)
	_, a, _ := ring.NodeKey(0)
	_, b, _ := ring.NodeKey(1)
	tx := sampleTx(t, ring, a, b)

	summary := BuildSummary([]*Transaction{tx}, nil)
	validation := NewValidation()
	privA, addrA, _ := ring.NodeKey(0)
	sig := cryptoprim.Sign(privA, []byte("placeholder"))
	validation.AddSignature(addrA, sig)

	block := &FinalBlock{
		BlockTime:    1234,
		PrevHash:     cryptoprim.Hash{9, 9, 9},
		MerkleRoot:   MerkleRoot([]*Transaction{tx}),
		Transactions: []*Transaction{tx},
		Summary:      summary,
		Validation:   validation,
	}

	encoded := block.Encode(nil)
	buf := NewInputBuffer(encoded)
	got, err := ParseFinalBlock(buf)
	if err != nil {
		t.Fatalf("ParseFinalBlock: %v", err)
	}
	if !buf.AtEnd() {
		t.Fatal("buffer not fully consumed")
	}
	if got.BlockTime != block.BlockTime {
		t.Fatalf("BlockTime = %d, want %d", got.BlockTime, block.BlockTime)
	}
	if got.PrevHash != block.PrevHash {
		t.Fatal("PrevHash mismatch after round-trip")
	}
	if got.MerkleRoot != block.MerkleRoot {
		t.Fatal("MerkleRoot mismatch after round-trip")
	}
	if len(got.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(got.Transactions))
	}
	if !bytes.Equal(got.Transactions[0].Canonical(), tx.Canonical()) {
		t.Fatal("transaction canonical bytes mismatch after round-trip")
	}
	if got.Validation.Count() != 1 || !got.Validation.Has(addrA) {
		t.Fatal("validation set mismatch after round-trip")
	}
}

func TestMerkleRootEmptyIsZero(t *testing.T) {
	if got := MerkleRoot(nil); got != (cryptoprim.Hash{}) {
		t.Fatalf("MerkleRoot(nil) = %s, want zero hash", got)
	}
}

func TestMerkleRootDeterministicAndOrderSensitive(t *testing.T) {
	ring := testRing(t, 2)
	_, a, _ := ring.NodeKey(0)
	_, b, _ := ring.NodeKey(1)
	tx1 := sampleTx(t, ring, a, b)
	tx2 := sampleTx(t, ring, b, a)

	r1 := MerkleRoot([]*Transaction{tx1, tx2})
	r2 := MerkleRoot([]*Transaction{tx1, tx2})
	if r1 != r2 {
		t.Fatal("MerkleRoot is not deterministic for the same input")
	}
	r3 := MerkleRoot([]*Transaction{tx2, tx1})
	if r1 == r3 {
		t.Fatal("MerkleRoot did not change when transaction order changed")
	}
}

func TestParseFinalBlockRejectsBadVersion(t *testing.T) {
	buf := NewInputBuffer(make([]byte, blockHeaderSize))
	buf.b[0] = 0xFF
	if _, err := ParseFinalBlock(buf); err == nil {
		t.Fatal("expected an error for an unsupported block version")
	}
}
