package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/nfrund/gobychat/internal/domain"
)

// Key layout:
//
//	user:id:{id}              -> JSON user
//	user:email:{email}        -> id
//	user:name:{lower(name)}   -> id
//	msg:{a|b}:{%020d seq}     -> JSON message
//
// Message keys use a Badger sequence instead of a timestamp so a prefix scan
// returns a conversation in exact append order.
const (
	userIDPrefix    = "user:id:"
	userEmailPrefix = "user:email:"
	userNamePrefix  = "user:name:"
	msgPrefix       = "msg:"
	msgSequenceKey  = "seq:msg"
	sequenceLease   = 128
)

// BadgerStore owns an embedded Badger database shared by the user and
// message repositories.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
}

// OpenBadger opens (or creates) a Badger database in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir))
}

// OpenBadgerInMemory opens a Badger database that never touches disk.
func OpenBadgerInMemory() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	logger := slog.Default().With("component", "badger")
	db, err := badger.Open(opts.WithLogger(badgerLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(msgSequenceKey), sequenceLease)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badger message sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq, logger: logger}, nil
}

// Users returns the user repository backed by this store.
func (s *BadgerStore) Users() *BadgerUserStore {
	return &BadgerUserStore{db: s.db}
}

// Messages returns the message repository backed by this store.
func (s *BadgerStore) Messages() *BadgerMessageStore {
	return &BadgerMessageStore{db: s.db, seq: s.seq}
}

// Close releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("Failed to release message sequence", "error", err)
	}
	return s.db.Close()
}

// BadgerUserStore implements domain.UserRepository on Badger.
type BadgerUserStore struct {
	db *badger.DB
}

func (s *BadgerUserStore) Create(_ context.Context, user *domain.User) error {
	// PasswordHash is not serialized by the domain type.
	record, err := json.Marshal(userRecord{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	emailKey := []byte(userEmailPrefix + user.Email)
	nameKey := []byte(userNamePrefix + normalizeName(user.Name))

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{emailKey, nameKey} {
			if _, err := txn.Get(key); err == nil {
				return domain.ErrUserAlreadyExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set([]byte(userIDPrefix+user.ID), record); err != nil {
			return err
		}
		if err := txn.Set(emailKey, []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(nameKey, []byte(user.ID))
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent sign-up touched the same email or name.
		return domain.ErrUserAlreadyExists
	}
	return err
}

func (s *BadgerUserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	var user *domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		u, err := getUser(txn, id)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BadgerUserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	var user *domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailPrefix + email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BadgerUserStore) List(_ context.Context, excludeID string) ([]domain.User, error) {
	var users []domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userIDPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec userRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				if rec.ID != excludeID {
					users = append(users, rec.toDomain())
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortUsersByName(users)
	return users, nil
}

// userRecord is the stored form of a user, including the password hash.
type userRecord struct {
	domain.User
	PasswordHash string `json:"password_hash"`
}

func (r userRecord) toDomain() domain.User {
	u := r.User
	u.PasswordHash = r.PasswordHash
	return u
}

func getUser(txn *badger.Txn, id string) (*domain.User, error) {
	item, err := txn.Get([]byte(userIDPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec userRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	u := rec.toDomain()
	return &u, nil
}

// BadgerMessageStore implements domain.MessageRepository on Badger.
type BadgerMessageStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

func (s *BadgerMessageStore) Append(_ context.Context, msg domain.Message) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next message sequence: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := fmt.Sprintf("%s%s:%020d", msgPrefix, conversationKey(msg.SenderID, msg.RecipientID), n)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Conversation scans the conversation prefix newest-first until limit is
// reached, then reverses the page so callers get it oldest-first.
func (s *BadgerMessageStore) Conversation(_ context.Context, a, b string, limit int) ([]domain.Message, error) {
	prefix := []byte(msgPrefix + conversationKey(a, b) + ":")
	var msgs []domain.Message

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// 0xFF sorts after every digit, so a reverse seek starts at the newest key.
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(msgs) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var m domain.Message
				if err := json.Unmarshal(val, &m); err != nil {
					return err
				}
				msgs = append(msgs, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
