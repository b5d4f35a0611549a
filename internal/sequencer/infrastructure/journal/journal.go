// Package journal 提供持久化的请求/响应日志流：追加写入、阻塞尾读、
// 崩溃恢复时截断撕裂的尾部记录。日志位置（序列号）是全系统的规范全序。
package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// RequestLogName 请求日志文件名
	RequestLogName = "requests.log"
	// ResponseLogName 响应日志文件名
	ResponseLogName = "responses.log"

	headerSize = 8 // 4 字节大端长度 + 4 字节 CRC-32C
	// maxRecordSize 单条记录上限，防御损坏的长度前缀
	maxRecordSize = 64 << 20

	pollInterval = 2 * time.Millisecond
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Record 一条日志记录。序列号从 1 起由日志位置决定。
type Record struct {
	Sequence uint64
	Payload  []byte
}

// scan 自头部遍历日志，返回有效记录数与有效字节长度。
// 尾部撕裂或校验失败的记录视为未写完，在其处截断。
func scan(f *os.File) (count uint64, validSize int64, err error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}
	var offset int64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return count, offset, nil
			}
			return 0, 0, err
		}
		length := binary.BigEndian.Uint32(header[:4])
		sum := binary.BigEndian.Uint32(header[4:8])
		if length > maxRecordSize {
			return count, offset, nil
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return count, offset, nil
			}
			return 0, 0, err
		}
		if crc32.Checksum(payload, crcTable) != sum {
			return count, offset, nil
		}
		count++
		offset += headerSize + int64(length)
	}
}

// Appender 单写者追加器。打开时校验既有内容并截断撕裂的尾部。
type Appender struct {
	mu      sync.Mutex
	f       *os.File
	fsync   bool
	nextSeq uint64
}

// OpenAppender 打开（或创建）日志用于追加
func OpenAppender(path string, fsync bool) (*Appender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	count, validSize, err := scan(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to scan journal %s: %w", path, err)
	}
	if err := f.Truncate(validSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate torn tail of %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return &Appender{f: f, fsync: fsync, nextSeq: count + 1}, nil
}

// NextSequence 下一条记录将获得的序列号
func (a *Appender) NextSequence() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextSeq
}

// Append 追加一条记录并返回其序列号。
// 整帧单次写入，崩溃只可能产生可被截断的撕裂尾部。
func (a *Appender) Append(payload []byte) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[4:8], crc32.Checksum(payload, crcTable))
	copy(frame[headerSize:], payload)

	if _, err := a.f.Write(frame); err != nil {
		return 0, fmt.Errorf("journal append failed: %w", err)
	}
	if a.fsync {
		if err := a.f.Sync(); err != nil {
			return 0, fmt.Errorf("journal fsync failed: %w", err)
		}
	}
	seq := a.nextSeq
	a.nextSeq++
	return seq, nil
}

// Close 关闭日志文件
func (a *Appender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}

// Tailer 阻塞式尾读器。Next 为系统的挂起点：无新记录时轮询等待。
type Tailer struct {
	f       *os.File
	offset  int64
	nextSeq uint64
}

// OpenTailer 打开日志并定位到 fromSeq（下一条返回的序列号）。
// fromSeq 之前的记录被跳过；日志尚不足 fromSeq−1 条时从现有末尾继续。
func OpenTailer(path string, fromSeq uint64) (*Tailer, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	t := &Tailer{f: f, nextSeq: 1}
	for t.nextSeq < fromSeq {
		rec, ok, err := t.tryNext()
		if err != nil {
			f.Close()
			return nil, err
		}
		if !ok {
			break
		}
		_ = rec
	}
	return t, nil
}

// tryNext 读取下一条完整记录；尾部尚未写全时返回 ok=false 并回退位置
func (t *Tailer) tryNext() (*Record, bool, error) {
	header := make([]byte, headerSize)
	if _, err := t.f.ReadAt(header, t.offset); err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, err
	}
	length := binary.BigEndian.Uint32(header[:4])
	sum := binary.BigEndian.Uint32(header[4:8])
	if length > maxRecordSize {
		return nil, false, fmt.Errorf("journal record at offset %d exceeds size limit: %d", t.offset, length)
	}
	payload := make([]byte, length)
	if _, err := t.f.ReadAt(payload, t.offset+headerSize); err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, err
	}
	if crc32.Checksum(payload, crcTable) != sum {
		// 追加器整帧写入后才可见；不匹配说明读到写入一半的尾部
		return nil, false, nil
	}
	rec := &Record{Sequence: t.nextSeq, Payload: payload}
	t.offset += headerSize + int64(length)
	t.nextSeq++
	return rec, true, nil
}

// TryNext 非阻塞读取：日志末尾返回 ok=false。用于离线重放。
func (t *Tailer) TryNext() (*Record, bool, error) {
	return t.tryNext()
}

// Next 阻塞直到下一条记录可用或 ctx 取消
func (t *Tailer) Next(ctx context.Context) (*Record, error) {
	for {
		rec, ok, err := t.tryNext()
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// NextSequence 下一条将返回的序列号
func (t *Tailer) NextSequence() uint64 {
	return t.nextSeq
}

// Close 关闭日志文件
func (t *Tailer) Close() error {
	return t.f.Close()
}
