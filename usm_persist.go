// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:generate mockgen -destination=mocks/user_store.go -package=mocks github.com/gosnmp/snmpengine UserStore

// UserStore persists non-volatile usmUserTable rows.
type UserStore interface {
	// SaveUser inserts or replaces a row.
	SaveUser(u *UsmUser) error
	// ReadFile returns every stored row.
	ReadFile() ([]*UsmUser, error)
}

// YAMLUserStore keeps users in a YAML file. Keys are stored localized and
// hex encoded; passwords are never written.
type YAMLUserStore struct {
	mu   sync.Mutex
	path string
}

// Compile-time interface check
var _ UserStore = (*YAMLUserStore)(nil)

func NewYAMLUserStore(path string) *YAMLUserStore {
	return &YAMLUserStore{path: path}
}

type yamlUsers struct {
	Users []yamlUser `yaml:"users"`
}

type yamlUser struct {
	EngineID     string `yaml:"engine_id"`
	UserName     string `yaml:"user_name"`
	SecurityName string `yaml:"security_name,omitempty"`
	AuthProtocol string `yaml:"auth_protocol"`
	PrivProtocol string `yaml:"priv_protocol"`
	AuthKey      string `yaml:"auth_key,omitempty"`
	PrivKey      string `yaml:"priv_key,omitempty"`
	CloneFrom    string `yaml:"clone_from,omitempty"`
}

func toYAMLUser(u *UsmUser) yamlUser {
	return yamlUser{
		EngineID:     hex.EncodeToString(u.EngineID),
		UserName:     u.UserName,
		SecurityName: u.SecurityName,
		AuthProtocol: u.AuthProtocol.String(),
		PrivProtocol: u.PrivProtocol.String(),
		AuthKey:      hex.EncodeToString(u.AuthKey),
		PrivKey:      hex.EncodeToString(u.PrivKey),
		CloneFrom:    u.CloneFromUser,
	}
}

func (y yamlUser) user() (*UsmUser, error) {
	u := &UsmUser{
		UserName:      y.UserName,
		SecurityName:  y.SecurityName,
		CloneFromUser: y.CloneFrom,
		StorageType:   StorageNonVolatile,
		RowStatus:     RowActive,
	}
	var err error
	if u.EngineID, err = hex.DecodeString(y.EngineID); err != nil {
		return nil, fmt.Errorf("user %q: engine_id: %w", y.UserName, err)
	}
	if u.AuthProtocol, err = ParseAuthProtocol(y.AuthProtocol); err != nil {
		return nil, fmt.Errorf("user %q: %w", y.UserName, err)
	}
	if u.PrivProtocol, err = ParsePrivProtocol(y.PrivProtocol); err != nil {
		return nil, fmt.Errorf("user %q: %w", y.UserName, err)
	}
	if u.AuthKey, err = hex.DecodeString(y.AuthKey); err != nil {
		return nil, fmt.Errorf("user %q: auth_key: %w", y.UserName, err)
	}
	if u.PrivKey, err = hex.DecodeString(y.PrivKey); err != nil {
		return nil, fmt.Errorf("user %q: priv_key: %w", y.UserName, err)
	}
	if len(u.AuthKey) == 0 {
		u.AuthKey = nil
	}
	if len(u.PrivKey) == 0 {
		u.PrivKey = nil
	}
	return u, nil
}

func (s *YAMLUserStore) load() (yamlUsers, error) {
	var doc yamlUsers
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

// ReadFile returns the users in the file. A missing file holds no users.
func (s *YAMLUserStore) ReadFile() ([]*UsmUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	users := make([]*UsmUser, 0, len(doc.Users))
	for _, y := range doc.Users {
		u, err := y.user()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// SaveUser rewrites the file with u inserted or replaced.
func (s *YAMLUserStore) SaveUser(u *UsmUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	row := toYAMLUser(u)
	i := slices.IndexFunc(doc.Users, func(y yamlUser) bool {
		id, err := hex.DecodeString(y.EngineID)
		return err == nil && bytes.Equal(id, u.EngineID) && y.UserName == u.UserName
	})
	if i >= 0 {
		doc.Users[i] = row
	} else {
		doc.Users = append(doc.Users, row)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
