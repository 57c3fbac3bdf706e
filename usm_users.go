// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/btree"
)

// StorageType is the SNMPv2-TC StorageType of a row.
type StorageType int

const (
	StorageOther       StorageType = 1
	StorageVolatile    StorageType = 2
	StorageNonVolatile StorageType = 3
	StoragePermanent   StorageType = 4
	StorageReadOnly    StorageType = 5
)

func (s StorageType) String() string {
	switch s {
	case StorageOther:
		return "other"
	case StorageVolatile:
		return "volatile"
	case StorageNonVolatile:
		return "nonVolatile"
	case StoragePermanent:
		return "permanent"
	case StorageReadOnly:
		return "readOnly"
	}
	return fmt.Sprintf("StorageType(%d)", int(s))
}

// RowStatus is the SNMPv2-TC RowStatus of a row.
type RowStatus int

const (
	RowActive       RowStatus = 1
	RowNotInService RowStatus = 2
	RowNotReady     RowStatus = 3
)

// UsmUser is a row of usmUserTable.
type UsmUser struct {
	EngineID     []byte
	UserName     string
	SecurityName string

	CloneFromEngineID []byte
	CloneFromUser     string

	AuthProtocol SnmpV3AuthProtocol
	PrivProtocol SnmpV3PrivProtocol
	AuthKey      []byte
	PrivKey      []byte
	Public       []byte

	StorageType StorageType
	RowStatus   RowStatus
}

// Copy returns a deep copy of u.
func (u *UsmUser) Copy() *UsmUser {
	c := *u
	c.EngineID = bytes.Clone(u.EngineID)
	c.CloneFromEngineID = bytes.Clone(u.CloneFromEngineID)
	c.AuthKey = bytes.Clone(u.AuthKey)
	c.PrivKey = bytes.Clone(u.PrivKey)
	c.Public = bytes.Clone(u.Public)
	return &c
}

// SecurityLevel returns the highest level the user's protocols support.
func (u *UsmUser) SecurityLevel() SecurityLevel {
	switch {
	case u.AuthProtocol > NoAuth && u.PrivProtocol > NoPriv:
		return AuthPriv
	case u.AuthProtocol > NoAuth:
		return AuthNoPriv
	}
	return NoAuthNoPriv
}

func (u *UsmUser) active() bool {
	return u.RowStatus == 0 || u.RowStatus == RowActive
}

// KeyKind selects which key a key change applies to.
type KeyKind int

const (
	AuthKeyKind KeyKind = iota
	PrivKeyKind
)

// lessUser orders users by the usmUserTable index: engine id then user
// name, each compared as an SNMP OCTET STRING index (length first).
func lessUser(a, b *UsmUser) bool {
	if c := compareIndex(a.EngineID, b.EngineID); c != 0 {
		return c < 0
	}
	return compareIndex([]byte(a.UserName), []byte(b.UserName)) < 0
}

func compareIndex(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

// UserTable is the usmUserTable. It is safe for concurrent use; rows are
// copied in and out so callers never share key material with the table.
type UserTable struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*UsmUser]
}

func NewUserTable() *UserTable {
	return &UserTable{tree: btree.NewG[*UsmUser](8, lessUser)}
}

func pivot(engineID []byte, userName string) *UsmUser {
	return &UsmUser{EngineID: engineID, UserName: userName}
}

// Add inserts u. It fails if a row with the same index exists.
func (t *UserTable) Add(u *UsmUser) error {
	if u.UserName == "" {
		return fmt.Errorf("usm user: empty user name")
	}
	row := u.Copy()
	if row.SecurityName == "" {
		row.SecurityName = row.UserName
	}
	if row.AuthProtocol == 0 {
		row.AuthProtocol = NoAuth
	}
	if row.PrivProtocol == 0 {
		row.PrivProtocol = NoPriv
	}
	if row.StorageType == 0 {
		row.StorageType = StorageNonVolatile
	}
	if row.RowStatus == 0 {
		row.RowStatus = RowActive
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tree.Has(row) {
		return fmt.Errorf("%w: %q", ErrUserExists, u.UserName)
	}
	t.tree.ReplaceOrInsert(row)
	return nil
}

// Remove deletes the row with the given index.
func (t *UserTable) Remove(engineID []byte, userName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tree.Delete(pivot(engineID, userName)); !ok {
		return fmt.Errorf("%w: %q", ErrUserNotFound, userName)
	}
	return nil
}

// Lookup returns a copy of the row with the given index.
func (t *UserTable) Lookup(engineID []byte, userName string) (*UsmUser, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.tree.Get(pivot(engineID, userName))
	if !ok {
		return nil, false
	}
	return u.Copy(), true
}

// LookupBySecurityName finds the active row under engineID whose security
// name matches. A row whose user name matches is preferred.
func (t *UserTable) LookupBySecurityName(engineID []byte, securityName string) (*UsmUser, bool) {
	if u, ok := t.Lookup(engineID, securityName); ok && u.SecurityName == securityName {
		return u, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var found *UsmUser
	t.tree.AscendGreaterOrEqual(pivot(engineID, ""), func(u *UsmUser) bool {
		if !bytes.Equal(u.EngineID, engineID) {
			return false
		}
		if u.SecurityName == securityName && u.active() {
			found = u.Copy()
			return false
		}
		return true
	})
	return found, found != nil
}

// Next returns the first row strictly after the given index, in
// usmUserTable order.
func (t *UserTable) Next(engineID []byte, userName string) (*UsmUser, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key := pivot(engineID, userName)
	var found *UsmUser
	t.tree.AscendGreaterOrEqual(key, func(u *UsmUser) bool {
		if !lessUser(key, u) {
			return true
		}
		found = u.Copy()
		return false
	})
	return found, found != nil
}

// Len returns the number of rows.
func (t *UserTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// Users returns copies of all rows in index order.
func (t *UserTable) Users() []*UsmUser {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*UsmUser, 0, t.tree.Len())
	t.tree.Ascend(func(u *UsmUser) bool {
		out = append(out, u.Copy())
		return true
	})
	return out
}

// CloneFrom copies protocols and keys from another row (usmUserCloneFrom).
// The target row is created if needed. A row that has already been cloned
// ignores further clone requests.
func (t *UserTable) CloneFrom(engineID []byte, userName string, fromEngineID []byte, fromUser string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.tree.Get(pivot(fromEngineID, fromUser))
	if !ok || !src.active() {
		return fmt.Errorf("%w: clone source %q", ErrUserNotFound, fromUser)
	}
	dst, ok := t.tree.Get(pivot(engineID, userName))
	if ok && dst.CloneFromUser != "" {
		return nil
	}
	if !ok {
		dst = &UsmUser{
			EngineID:     bytes.Clone(engineID),
			UserName:     userName,
			SecurityName: userName,
			StorageType:  StorageNonVolatile,
			RowStatus:    RowActive,
		}
	} else {
		dst = dst.Copy()
	}
	dst.CloneFromEngineID = bytes.Clone(fromEngineID)
	dst.CloneFromUser = fromUser
	dst.AuthProtocol = src.AuthProtocol
	dst.PrivProtocol = src.PrivProtocol
	dst.AuthKey = bytes.Clone(src.AuthKey)
	dst.PrivKey = bytes.Clone(src.PrivKey)
	t.tree.ReplaceOrInsert(dst)
	return nil
}

// ChangeKey applies a KeyChange value to the user's auth or priv key. When
// own is set the requester must be the user itself (usmUserOwnAuthKeyChange,
// usmUserOwnPrivKeyChange).
func (t *UserTable) ChangeKey(engineID []byte, userName string, kind KeyKind, own bool, requester string, keyChange []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.tree.Get(pivot(engineID, userName))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUserNotFound, userName)
	}
	if own && requester != u.SecurityName {
		return fmt.Errorf("%w: %q changing %q", ErrNotOwner, requester, u.SecurityName)
	}
	auth := LookupAuthProtocol(u.AuthProtocol)
	if auth == nil {
		return fmt.Errorf("%w: user %q has no auth protocol", ErrBadKeyChange, userName)
	}
	row := u.Copy()
	switch kind {
	case AuthKeyKind:
		k, err := ApplyKeyChange(auth, row.AuthKey, keyChange)
		if err != nil {
			return err
		}
		row.AuthKey = k
	case PrivKeyKind:
		if row.PrivProtocol == NoPriv {
			return fmt.Errorf("%w: user %q has no priv protocol", ErrBadKeyChange, userName)
		}
		k, err := ApplyKeyChange(auth, row.PrivKey, keyChange)
		if err != nil {
			return err
		}
		row.PrivKey = k
	default:
		return fmt.Errorf("%w: unknown key kind %d", ErrBadKeyChange, kind)
	}
	t.tree.ReplaceOrInsert(row)
	return nil
}
