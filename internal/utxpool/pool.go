// Package utxpool implements the unrecorded-transaction pool spec.md #4.4
// describes: admission, soundness/validity checks, the greedy aggregate-
// validity proposal collector, and the finalization side effects that
// remove a block's transactions from the pool.
//
// Grounded on
// _examples/original_source/src/consensus/UnrecordedTransactionPool.h/.cpp:
// TxMap keyed by signature with an intrusive refcount, LockAndCollect-
// ValidTransactions' greedy-with-restart algorithm, and ProposeBlock/
// ReverifyProposal/CheckValidation/FinalizeLocalBlock/FinalizeRemoteBlock.
// The addAndVerifyTransactions iterator-before-end-check defect in the
// original .cpp is deliberately NOT reproduced (spec.md #9): membership is
// checked before any dereference here.
package utxpool

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"devv.io/node/internal/cryptoprim"
	"devv.io/node/internal/wire"
)

// entry is TxMap's value: a transaction plus how many in-flight proposals
// reference it (spec.md #3: "SharedTransaction = (refcount, Transaction)").
type entry struct {
	refcount uint8
	tx       *wire.Transaction
}

// Pool is the per-node UTX pool.
type Pool struct {
	log *logrus.Logger

	txsMu sync.Mutex
	txs   map[cryptoprim.Signature]*entry

	proposalMu sync.Mutex
	pending    *wire.FinalBlock
	hasPending bool
}

// New returns an empty pool.
func New(log *logrus.Logger) *Pool {
	return &Pool{
		log: log,
		txs: make(map[cryptoprim.Signature]*entry),
	}
}

// HasPendingTransactions reports whether the pool holds any transaction.
func (p *Pool) HasPendingTransactions() bool {
	p.txsMu.Lock()
	defer p.txsMu.Unlock()
	return len(p.txs) > 0
}

// NumPendingTransactions returns the number of distinct transactions held.
func (p *Pool) NumPendingTransactions() int {
	p.txsMu.Lock()
	defer p.txsMu.Unlock()
	return len(p.txs)
}

// sortedSignatures returns the pool's signatures in ascending byte order —
// deterministic iteration order across peers (spec.md #4.4 step 2). Caller
// must hold txsMu.
func (p *Pool) sortedSignatures() []cryptoprim.Signature {
	sigs := make([]cryptoprim.Signature, 0, len(p.txs))
	for sig := range p.txs {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return string(sigs[i][:]) < string(sigs[j][:]) })
	return sigs
}

// GetCanonical dumps the canonical bytes of every distinct pool entry, in
// signature order. Duplicate refcounts are not preserved (spec.md #4.4).
func (p *Pool) GetCanonical() []byte {
	p.txsMu.Lock()
	defer p.txsMu.Unlock()
	var out []byte
	for _, sig := range p.sortedSignatures() {
		out = append(out, p.txs[sig].tx.Canonical()...)
	}
	return out
}

// jsonEntry is one TxMap row as rendered by GetJSON.
type jsonEntry struct {
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
	Refcount  uint8  `json:"refcount"`
}

// GetJSON renders the pool's contents for diagnostics (spec.md #4.4's
// get_json, not on any consensus-critical path).
func (p *Pool) GetJSON() string {
	p.txsMu.Lock()
	entries := make([]jsonEntry, 0, len(p.txs))
	for _, sig := range p.sortedSignatures() {
		e := p.txs[sig]
		entries = append(entries, jsonEntry{
			Signature: sig.String(),
			Signer:    e.tx.Signer().String(),
			Refcount:  e.refcount,
		})
	}
	p.txsMu.Unlock()

	b, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// AddTransactions decodes zero or more canonical transactions from data and
// admits each sound one (spec.md #4.4: add_transactions). A sound+novel
// transaction is inserted with refcount 1; a sound+duplicate increments its
// refcount; an unsound transaction is dropped and the overall result
// becomes false, but remaining transactions in data are still processed.
func (p *Pool) AddTransactions(data []byte) bool {
	buf := wire.NewInputBuffer(data)
	ok := true
	for !buf.AtEnd() {
		tx, err := wire.ParseTransaction(buf)
		if err != nil {
			p.log.WithError(err).Warn("utxpool: dropping malformed transaction batch tail")
			return false
		}
		if !tx.Soundness() {
			ok = false
			continue
		}
		p.admit(tx)
	}
	return ok
}

// admit inserts tx as new (refcount 1) or increments an existing entry's
// refcount, logging "First transaction added" the first time the pool
// transitions from empty (spec.md end-to-end scenario 5: an unsound
// transaction must never produce this log, which admit's caller enforces
// by only calling admit for sound transactions).
func (p *Pool) admit(tx *wire.Transaction) {
	p.txsMu.Lock()
	defer p.txsMu.Unlock()
	wasEmpty := len(p.txs) == 0
	sig := tx.Signature()
	if e, ok := p.txs[sig]; ok {
		if e.refcount < 255 {
			e.refcount++
		}
		return
	}
	p.txs[sig] = &entry{refcount: 1, tx: tx}
	if wasEmpty {
		p.log.Info("First transaction added")
	}
}

// removeTransaction deletes sig unconditionally, regardless of refcount.
// Caller must hold txsMu.
func (p *Pool) removeTransaction(sig cryptoprim.Signature) {
	delete(p.txs, sig)
}

// removeTransactions deletes every transaction in txs from the pool
// regardless of refcount, used by finalization (spec.md #4.4: finalize_
// local/finalize_remote_block "removes its transactions from the pool").
func (p *Pool) removeTransactions(txs []*wire.Transaction) {
	p.txsMu.Lock()
	defer p.txsMu.Unlock()
	for _, tx := range txs {
		p.removeTransaction(tx.Signature())
	}
}

// RemoveTransactions is removeTransactions exported for callers outside
// the package that already hold a parsed block — namely HandleFinalBlock
// and HandleBlocksSince, which apply blocks they received directly rather than through
// FinalizeRemoteBlock's parse-and-revalidate path (spec.md #4.5).
func (p *Pool) RemoveTransactions(txs []*wire.Transaction) {
	p.removeTransactions(txs)
}
