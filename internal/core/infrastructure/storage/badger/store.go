// Package badger 提供基于 BadgerDB 的持久化键值存储
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v3"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// Store BadgerDB 键值存储
type Store struct {
	db     *badgerdb.DB
	logger log.Logger

	// Close 过程中阻断写入并等待进行中的写事务
	closing int32
	writeWg sync.WaitGroup
}

var _ storage.KVStore = (*Store)(nil)

// New 打开 BadgerDB；InMemory 为真时不落盘
func New(opts *storageconfig.BadgerOptions, logger log.Logger) (*Store, error) {
	if opts == nil {
		opts = &storageconfig.DefaultOptions().Badger
	}

	var bopts badgerdb.Options
	if opts.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o700); err != nil {
			return nil, fmt.Errorf("无法创建BadgerDB数据目录: %w", err)
		}
		bopts = badgerdb.DefaultOptions(opts.Path)
		bopts.SyncWrites = opts.SyncWrites
	}

	// 账本数据量小，压低缓存与 vlog 的 mmap 占用
	bopts.ValueLogFileSize = 64 << 20
	bopts.BlockCacheSize = 16 << 20
	bopts.IndexCacheSize = 16 << 20
	bopts.NumMemtables = 2
	bopts.NumCompactors = 2
	bopts.Logger = newBadgerLogger(logger)

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("打开BadgerDB失败: %w", err)
	}
	if logger != nil {
		logger.Infof("BadgerDB存储已打开: path=%s, inMemory=%v", opts.Path, opts.InMemory)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) beginWrite() (func(), error) {
	if atomic.LoadInt32(&s.closing) == 1 {
		return nil, storage.ErrStoreClosed
	}
	s.writeWg.Add(1)
	// Add 之后再检查一次
	if atomic.LoadInt32(&s.closing) == 1 {
		s.writeWg.Done()
		return nil, storage.ErrStoreClosed
	}
	return s.writeWg.Done, nil
}

// Get 实现 KVStore
func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger获取键失败: %w", err)
	}
	return val, nil
}

// Set 实现 KVStore
func (s *Store) Set(_ context.Context, key, value []byte) error {
	done, err := s.beginWrite()
	if err != nil {
		return err
	}
	defer done()
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

// SetMany 实现 KVStore，在单个事务内写入
func (s *Store) SetMany(_ context.Context, entries map[string][]byte) error {
	done, err := s.beginWrite()
	if err != nil {
		return err
	}
	defer done()
	return s.db.Update(func(txn *badgerdb.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetIfAbsent 实现 KVStore；事务冲突时 Badger 返回 ErrConflict，视为已存在
func (s *Store) SetIfAbsent(_ context.Context, key, value []byte) (bool, error) {
	done, err := s.beginWrite()
	if err != nil {
		return false, err
	}
	defer done()

	written := false
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.Set(key, value)
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger条件写入失败: %w", err)
	}
	return written, nil
}

// Exists 实现 KVStore
func (s *Store) Exists(_ context.Context, key []byte) (bool, error) {
	exists := false
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger检查键存在性失败: %w", err)
	}
	return exists, nil
}

// PrefixScan 实现 KVStore
func (s *Store) PrefixScan(_ context.Context, prefix []byte) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(item.KeyCopy(nil))] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger前缀扫描失败: %w", err)
	}
	return result, nil
}

// Close 关闭数据库，等待进行中的写事务完成
func (s *Store) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closing, 0, 1) {
		return nil
	}
	s.writeWg.Wait()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("关闭BadgerDB失败: %w", err)
	}
	return nil
}

// badgerLogger 将 BadgerDB 日志转发到协议日志
type badgerLogger struct {
	logger log.Logger
}

func newBadgerLogger(logger log.Logger) badgerdb.Logger {
	if logger == nil {
		return nil
	}
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

// Infof Badger 的 info 日志很频繁，降为 debug
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}
