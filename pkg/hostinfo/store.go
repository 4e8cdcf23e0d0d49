package hostinfo

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key spaces inside the store.
const (
	prefixNetwork = 'n'
	prefixSeen    = 's'
)

// Store is a badger-backed database of network labels (longest-prefix match)
// and of every host address seen in earlier sessions.
type Store struct {
	db    *badger.DB
	cache sync.Map
}

func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open host store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// networkKey is 'n' + 16 address bytes (IPv4 mapped into IPv6) + prefix bits.
func networkKey(p netip.Prefix) []byte {
	p = p.Masked()
	addr := p.Addr()
	bits := p.Bits()
	if addr.Is4() {
		bits += 96
	}
	a16 := addr.As16()
	key := make([]byte, 18)
	key[0] = prefixNetwork
	copy(key[1:17], a16[:])
	key[17] = byte(bits)
	return key
}

func seenKey(addr netip.Addr) []byte {
	a16 := addr.Unmap().As16()
	key := make([]byte, 17)
	key[0] = prefixSeen
	copy(key[1:], a16[:])
	return key
}

// SetLabel stores label for every address inside p.
func (s *Store) SetLabel(p netip.Prefix, label string) error {
	if !p.IsValid() {
		return fmt.Errorf("invalid prefix %v", p)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(networkKey(p), []byte(label))
	})
	s.resetCache()
	return err
}

// SetLabels writes a CIDR -> label map in a single batch. Unparseable CIDRs are skipped.
func (s *Store) SetLabels(labels map[string]string) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for cidr, label := range labels {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if err := wb.Set(networkKey(p), []byte(label)); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}
	s.resetCache()
	return nil
}

func (s *Store) resetCache() {
	s.cache.Range(func(k, _ any) bool {
		s.cache.Delete(k)
		return true
	})
}

// Label returns the label of the most specific network containing addr, or "".
func (s *Store) Label(addr netip.Addr) (string, error) {
	addr = addr.Unmap()
	if v, ok := s.cache.Load(addr); ok {
		return v.(string), nil
	}

	maxBits := 128
	if addr.Is4() {
		maxBits = 32
	}

	var found string
	err := s.db.View(func(txn *badger.Txn) error {
		for m := maxBits; m >= 0; m-- {
			p, err := addr.Prefix(m)
			if err != nil {
				return err
			}
			item, getErr := txn.Get(networkKey(p))
			if getErr == nil {
				v, err := item.ValueCopy(nil)
				found = string(v)
				return err
			}
			if !errors.Is(getErr, badger.ErrKeyNotFound) {
				return getErr
			}
		}
		return nil
	})
	if err == nil {
		s.cache.Store(addr, found)
	}
	return found, err
}

// MarkSeen records addr and reports whether it had never been seen before.
func (s *Store) MarkSeen(addr netip.Addr) (bool, error) {
	key := seenKey(addr)
	isNew := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		isNew = true
		return txn.Set(key, []byte{1})
	})
	return isNew, err
}

// SeenCount returns how many distinct hosts have ever been recorded.
func (s *Store) SeenCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{prefixSeen}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
