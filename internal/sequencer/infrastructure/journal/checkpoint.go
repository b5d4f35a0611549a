package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CheckpointStore 检查点文件管理：原子写入（临时文件 + rename），
// 保留最近两份，加载时取序列号最大者。
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore 创建检查点目录管理器
func NewCheckpointStore(dir string) *CheckpointStore {
	return &CheckpointStore{dir: dir}
}

func (s *CheckpointStore) path(seq uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint-%020d.bin", seq))
}

// Save 原子写入序列号 seq 处的检查点并清理更早的文件
func (s *CheckpointStore) Save(seq uint64, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(seq)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish checkpoint: %w", err)
	}
	s.prune()
	return nil
}

// prune 删除最近两份之外的检查点
func (s *CheckpointStore) prune() {
	seqs, _ := s.sequences()
	if len(seqs) <= 2 {
		return
	}
	for _, seq := range seqs[:len(seqs)-2] {
		_ = os.Remove(s.path(seq))
	}
}

// sequences 现存检查点序列号，升序
func (s *CheckpointStore) sequences() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var seqs []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "checkpoint-") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint-"), ".bin")
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// Latest 读取最新检查点，不存在时 ok=false
func (s *CheckpointStore) Latest() (data []byte, seq uint64, ok bool, err error) {
	seqs, err := s.sequences()
	if err != nil || len(seqs) == 0 {
		return nil, 0, false, err
	}
	seq = seqs[len(seqs)-1]
	data, err = os.ReadFile(s.path(seq))
	if err != nil {
		return nil, 0, false, err
	}
	return data, seq, true, nil
}
