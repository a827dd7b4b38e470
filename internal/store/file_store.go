package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore 把所有键值保存在单个 JSON 文件中，每次修改整体重写
type FileStore struct {
	mu      sync.Mutex
	file    string
	records map[string]string
}

type recordFile struct {
	Records map[string]string `json:"records"`
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	filePath := filepath.Join(dataDir, "guard_records.json")
	store := &FileStore{
		file:    filePath,
		records: make(map[string]string),
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.records[key]
	return value, exists, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.records[key]
	s.records[key] = value
	if err := s.save(); err != nil {
		if existed {
			s.records[key] = previous
		} else {
			delete(s.records, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[key]; !exists {
		return nil
	}
	delete(s.records, key)
	return s.save()
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取记录文件失败: %w", err)
	}

	var payload recordFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("解析记录文件失败: %w", err)
	}

	if payload.Records == nil {
		payload.Records = make(map[string]string)
	}
	s.records = payload.Records
	return nil
}

// save 先写临时文件再改名，避免写到一半的文件覆盖旧数据
func (s *FileStore) save() error {
	payload := recordFile{Records: s.records}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("编码记录文件失败: %w", err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("写入记录文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		return fmt.Errorf("替换记录文件失败: %w", err)
	}
	return nil
}
