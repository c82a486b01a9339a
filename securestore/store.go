// Package securestore is the secure key-value store that keeps the session
// token (and the device id) across process restarts.
//
// Values are sealed with AES-256-GCM under a random data key. The data key is
// itself sealed with a wrapping key derived by Argon2id from an external
// secret, so the repository file alone cannot recover stored values. While the
// store is open the data key lives in a memguard enclave.
package securestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"

	icrypto "github.com/jmcleod/kycagent/internal/crypto"
	"github.com/jmcleod/kycagent/internal/util"
	"github.com/jmcleod/kycagent/internal/uuid"
	"github.com/jmcleod/kycagent/storage"
)

const (
	defaultNamespace = "__secure"
	recordTypeValue  = "KV"
	recordTypeMeta   = "META"
	metaKDF          = "kdf"
	metaDataKey      = "data_key"
	formatVer        = 1
	saltLen          = 16
	valueKeyInfo     = "kycagent:secure_value:v1"

	// DeviceIDKey holds the stable per-installation identifier.
	DeviceIDKey = "device_uid"
)

type kdfMeta struct {
	Salt   []byte              `json:"salt"`
	Params util.Argon2idParams `json:"params"`
}

// Store is a sealed key-value store over a storage.Repository.
// Every Get, Set and Delete is a single repository call and therefore atomic.
type Store struct {
	repo      storage.Repository
	namespace string
	dataKey   *memguard.Enclave
	logger    *slog.Logger
}

// Open unlocks the store in repo with secret, creating it on first use.
func Open(repo storage.Repository, secret string, opts ...Option) (*Store, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	o := options{
		namespace: defaultNamespace,
		kdfParams: util.DefaultArgon2idParams(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	dk, err := loadOrCreateDataKey(repo, o.namespace, secret, o.kdfParams, o.logger)
	if err != nil {
		return nil, err
	}
	return &Store{
		repo:      repo,
		namespace: o.namespace,
		dataKey:   memguard.NewEnclave(dk),
		logger:    o.logger,
	}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrEmptyKey
	}
	env, err := s.repo.Get(s.namespace, recordTypeValue, key)
	if err != nil {
		if isMissing(err) {
			return "", fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	var plain []byte
	err = s.withValueKey(func(k []byte) error {
		var openErr error
		plain, openErr = storage.OpenRecord(k, env, icrypto.AADValue(s.namespace, key, formatVer))
		return openErr
	})
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", key, err)
	}
	defer util.WipeBytes(plain)
	return string(plain), nil
}

// Set seals value and stores it under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	var env *storage.Envelope
	err := s.withValueKey(func(k []byte) error {
		var sealErr error
		env, sealErr = storage.SealRecord(k, []byte(value), icrypto.AADValue(s.namespace, key, formatVer), formatVer)
		return sealErr
	})
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	if err := s.repo.Put(s.namespace, recordTypeValue, key, env); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a key with no value returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.repo.Delete(s.namespace, recordTypeValue, key); err != nil {
		if isMissing(err) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// DeviceID returns the installation's device id, generating and storing one
// on first call.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	id, err := s.Get(ctx, DeviceIDKey)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id = uuid.New()
	if err := s.Set(ctx, DeviceIDKey, id); err != nil {
		return "", err
	}
	s.logger.Info("generated device id", slog.String("device_uid", id))
	return id, nil
}

func (s *Store) withValueKey(fn func(k []byte) error) error {
	lb, err := s.dataKey.Open()
	if err != nil {
		return fmt.Errorf("opening data key enclave: %w", err)
	}
	defer lb.Destroy()
	k, err := util.HKDF(lb.Bytes(), nil, []byte(valueKeyInfo))
	if err != nil {
		return err
	}
	defer util.WipeBytes(k)
	return fn(k)
}

func isMissing(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNamespaceNotFound)
}

// loadOrCreateDataKey unseals the data key, creating store metadata on first
// use. Creation is one batch of create-only writes, so two processes racing to
// initialize the same repository converge on a single data key.
func loadOrCreateDataKey(repo storage.Repository, ns, secret string, params util.Argon2idParams, logger *slog.Logger) ([]byte, error) {
	metaEnv, err := repo.Get(ns, recordTypeMeta, metaKDF)
	switch {
	case err == nil:
		return unsealDataKey(repo, ns, secret, metaEnv)
	case !isMissing(err):
		return nil, fmt.Errorf("reading store metadata: %w", err)
	}

	dk, err := createDataKey(repo, ns, secret, params)
	if errors.Is(err, storage.ErrCASFailed) {
		metaEnv, err = repo.Get(ns, recordTypeMeta, metaKDF)
		if err != nil {
			return nil, fmt.Errorf("reading store metadata: %w", err)
		}
		return unsealDataKey(repo, ns, secret, metaEnv)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("initialized secure store", slog.String("namespace", ns))
	return dk, nil
}

func createDataKey(repo storage.Repository, ns, secret string, params util.Argon2idParams) ([]byte, error) {
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(kdfMeta{Salt: salt, Params: params})
	if err != nil {
		return nil, err
	}
	wk, err := util.DeriveArgon2idKey(secret, salt, params)
	if err != nil {
		return nil, fmt.Errorf("deriving wrapping key: %w", err)
	}
	defer util.WipeBytes(wk)

	dk, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wk, dk, icrypto.AADDataKey(ns, formatVer), formatVer)
	if err != nil {
		util.WipeBytes(dk)
		return nil, err
	}
	err = repo.Batch(ns, func(tx storage.BatchTx) error {
		if err := tx.PutCAS(recordTypeMeta, metaKDF, 0, storage.PlainRecord(meta, formatVer)); err != nil {
			return err
		}
		return tx.PutCAS(recordTypeMeta, metaDataKey, 0, sealed)
	})
	if err != nil {
		util.WipeBytes(dk)
		return nil, err
	}
	return dk, nil
}

func unsealDataKey(repo storage.Repository, ns, secret string, metaEnv *storage.Envelope) ([]byte, error) {
	raw, err := storage.OpenPlain(metaEnv)
	if err != nil {
		return nil, fmt.Errorf("decoding store metadata: %w", err)
	}
	var meta kdfMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding store metadata: %w", err)
	}
	wk, err := util.DeriveArgon2idKey(secret, meta.Salt, meta.Params)
	if err != nil {
		return nil, fmt.Errorf("deriving wrapping key: %w", err)
	}
	defer util.WipeBytes(wk)

	sealed, err := repo.Get(ns, recordTypeMeta, metaDataKey)
	if err != nil {
		return nil, fmt.Errorf("reading data key: %w", err)
	}
	dk, err := storage.OpenRecord(wk, sealed, icrypto.AADDataKey(ns, formatVer))
	if err != nil {
		return nil, ErrWrongSecret
	}
	return dk, nil
}
