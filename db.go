package marketplace

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	g "github.com/pandodao/generic"
	"github.com/zyedidia/generic/mapset"
)

var (
	offerPrefix    = []byte("o:")
	balancePrefix  = []byte("b:")
	eventPrefix    = []byte("e:")
	propertyPrefix = []byte("p:")
	splitterKey    = []byte("sp:")
)

// property names
const (
	propNextOfferID    = "next_offer_id"
	propNextEventSeq   = "next_event_seq"
	propTotalDeposited = "total_deposited"
	propTotalWithdrawn = "total_withdrawn"
	propPoolRouted     = "pool_routed"
)

func accountKey(prefix []byte, account string) ([]byte, error) {
	id, err := uuid.Parse(account)
	if err != nil {
		return nil, ErrInvalidAccount
	}

	return buildIndexKey(prefix, id), nil
}

func saveOffer(txn *badger.Txn, offer *Offer) error {
	pk := buildIndexKey(offerPrefix, offer.ID)
	e := badger.NewEntry(pk, g.Must(json.Marshal(offer)))
	return txn.SetEntry(e)
}

func findOffer(txn *badger.Txn, id uint64) (*Offer, error) {
	item, err := txn.Get(buildIndexKey(offerPrefix, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrOfferNotFound
		}

		return nil, err
	}

	var offer Offer
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &offer)
	}); err != nil {
		return nil, err
	}

	return &offer, nil
}

func listOffers(txn *badger.Txn, states mapset.Set[OfferState], since uint64, limit int) ([]*Offer, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = limit
	it := txn.NewIterator(opts)
	defer it.Close()

	var offers []*Offer
	for it.Seek(buildIndexKey(offerPrefix, since)); it.ValidForPrefix(offerPrefix) && len(offers) < limit; it.Next() {
		item := it.Item()

		var offer Offer
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &offer)
		}); err != nil {
			return nil, err
		}

		if states.Size() > 0 && !states.Has(offer.State) {
			continue
		}

		offers = append(offers, &offer)
	}

	return offers, nil
}

func getBalance(txn *badger.Txn, account string) (*Balance, error) {
	pk, err := accountKey(balancePrefix, account)
	if err != nil {
		return nil, err
	}

	item, err := txn.Get(pk)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &Balance{Account: account}, nil
		}

		return nil, err
	}

	var balance Balance
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &balance)
	}); err != nil {
		return nil, err
	}

	return &balance, nil
}

func saveBalance(txn *badger.Txn, balance *Balance) error {
	pk, err := accountKey(balancePrefix, balance.Account)
	if err != nil {
		return err
	}

	e := badger.NewEntry(pk, g.Must(json.Marshal(balance)))
	return txn.SetEntry(e)
}

// creditBalance increases an account balance. Overflow fails loudly instead
// of wrapping.
func creditBalance(txn *badger.Txn, account string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	balance, err := getBalance(txn, account)
	if err != nil {
		return err
	}

	if balance.Amount+amount < balance.Amount {
		return ErrAmountOverflow
	}

	balance.Amount += amount
	return saveBalance(txn, balance)
}

func listBalances(txn *badger.Txn) ([]*Balance, error) {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	var balances []*Balance
	for it.Seek(balancePrefix); it.ValidForPrefix(balancePrefix); it.Next() {
		item := it.Item()

		var balance Balance
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &balance)
		}); err != nil {
			return nil, err
		}

		balances = append(balances, &balance)
	}

	return balances, nil
}

func getProperty(txn *badger.Txn, name string) (uint64, error) {
	item, err := txn.Get(buildIndexKey(propertyPrefix, name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}

		return 0, err
	}

	var value uint64
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &value)
	}); err != nil {
		return 0, err
	}

	return value, nil
}

func saveProperty(txn *badger.Txn, name string, value uint64) error {
	pk := buildIndexKey(propertyPrefix, name)
	e := badger.NewEntry(pk, g.Must(json.Marshal(value)))
	return txn.SetEntry(e)
}

func addProperty(txn *badger.Txn, name string, delta uint64) error {
	value, err := getProperty(txn, name)
	if err != nil {
		return err
	}

	if value+delta < value {
		return ErrAmountOverflow
	}

	return saveProperty(txn, name, value+delta)
}

func subProperty(txn *badger.Txn, name string, delta uint64) error {
	value, err := getProperty(txn, name)
	if err != nil {
		return err
	}

	if delta > value {
		return ErrAmountOverflow
	}

	return saveProperty(txn, name, value-delta)
}

// nextID allocates the next value of a monotone counter, starting at 1.
func nextID(txn *badger.Txn, name string) (uint64, error) {
	value, err := getProperty(txn, name)
	if err != nil {
		return 0, err
	}

	value++
	if err := saveProperty(txn, name, value); err != nil {
		return 0, err
	}

	return value, nil
}

func appendEvent(txn *badger.Txn, event *Event) error {
	seq, err := nextID(txn, propNextEventSeq)
	if err != nil {
		return err
	}

	event.Seq = seq
	pk := buildIndexKey(eventPrefix, seq)
	e := badger.NewEntry(pk, g.Must(json.Marshal(event)))
	return txn.SetEntry(e)
}

func listEvents(txn *badger.Txn, since uint64, limit int) ([]*Event, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = limit
	it := txn.NewIterator(opts)
	defer it.Close()

	var events []*Event
	for it.Seek(buildIndexKey(eventPrefix, since)); it.ValidForPrefix(eventPrefix) && len(events) < limit; it.Next() {
		item := it.Item()

		var event Event
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		}); err != nil {
			return nil, err
		}

		var seq uint64
		if err := decodeIndexKey(item.Key(), eventPrefix, &seq); err != nil {
			return nil, err
		}
		event.Seq = seq

		events = append(events, &event)
	}

	return events, nil
}

func loadSplitter(txn *badger.Txn) (*Splitter, error) {
	item, err := txn.Get(splitterKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return newSplitter(), nil
		}

		return nil, err
	}

	var splitter Splitter
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &splitter)
	}); err != nil {
		return nil, err
	}

	return &splitter, nil
}

func saveSplitter(txn *badger.Txn, splitter *Splitter) error {
	e := badger.NewEntry(splitterKey, g.Must(json.Marshal(splitter)))
	return txn.SetEntry(e)
}
