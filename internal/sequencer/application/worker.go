package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/journal"
	"github.com/wyfcoding/dexcore/pkg/metrics"
)

// WorkerConfig worker 行为配置
type WorkerConfig struct {
	// CheckpointEvery 每处理多少条请求写一次检查点，0 关闭
	CheckpointEvery int
	// SnapshotDepth 查询快照的盘口深度
	SnapshotDepth int
}

// Worker 单写者工作循环：严格按日志顺序消费请求日志，
// 经核心处理后按同一顺序追加响应日志。全部可变状态归其独占，
// 处理过程中除日志持久化外不做任何 I/O。
type Worker struct {
	core    *Core
	in      *journal.Tailer
	out     *journal.Appender
	verify  *journal.Tailer
	ckpt    *journal.CheckpointStore
	cfg     WorkerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	snapshot           atomic.Pointer[StateSnapshot]
	sinceCheckpoint    int
	lastProcessedSeqNo uint64
}

// NewWorker 创建 worker 并发布初始快照。
// verify 为响应日志的只读尾随器，追赶阶段用于比对重放结果与
// 既有持久化响应，传 nil 关闭比对。
func NewWorker(core *Core, in *journal.Tailer, out *journal.Appender, verify *journal.Tailer, ckpt *journal.CheckpointStore, cfg WorkerConfig, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if cfg.SnapshotDepth <= 0 {
		cfg.SnapshotDepth = 50
	}
	w := &Worker{
		core:    core,
		in:      in,
		out:     out,
		verify:  verify,
		ckpt:    ckpt,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("module", "sequencer_worker"),
	}
	w.lastProcessedSeqNo = in.NextSequence() - 1
	w.snapshot.Store(core.Snapshot(w.lastProcessedSeqNo, cfg.SnapshotDepth))
	return w
}

// Snapshot 最近发布的状态快照，查询侧无锁读取
func (w *Worker) Snapshot() *StateSnapshot {
	return w.snapshot.Load()
}

// Run 驱动工作循环直到 ctx 取消。日志读写失败是仅有的致命错误。
// 启动追赶阶段重放的请求其响应已持久化：重建状态、
// 与既有响应比对一致后跳过追加。
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("sequencer worker started", "from_sequence", w.in.NextSequence())
	for {
		rec, err := w.in.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("sequencer worker stopped", "last_sequence", w.lastProcessedSeqNo)
				return nil
			}
			return fmt.Errorf("request journal read failed: %w", err)
		}
		if err := w.processRecord(rec); err != nil {
			return err
		}
		if w.cfg.CheckpointEvery > 0 && w.sinceCheckpoint >= w.cfg.CheckpointEvery {
			w.writeCheckpoint()
		}
	}
}

func (w *Worker) processRecord(rec *journal.Record) error {
	var req domain.SequencerRequest
	var resp *domain.SequencerResponse

	start := time.Now()
	if err := json.Unmarshal(rec.Payload, &req); err != nil {
		// 无法解析的请求只影响该条记录，绝不影响进程
		w.logger.Warn("unparseable request record", "sequence", rec.Sequence, "error", err)
		resp = &domain.SequencerResponse{Error: domain.ErrUnknownRequest}
	} else {
		resp = w.core.ProcessRequest(&req)
	}
	resp.Sequence = rec.Sequence
	resp.ProcessingTime = time.Since(start).Nanoseconds()

	if rec.Sequence >= w.out.NextSequence() {
		if w.verify != nil {
			// 追赶结束，比对尾随器不再需要
			w.verify.Close()
			w.verify = nil
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("response encoding failed at sequence %d: %w", rec.Sequence, err)
		}
		if _, err := w.out.Append(payload); err != nil {
			return fmt.Errorf("response journal append failed: %w", err)
		}
	} else if err := w.verifyDurableResponse(rec.Sequence, resp); err != nil {
		return err
	}

	w.lastProcessedSeqNo = rec.Sequence
	w.sinceCheckpoint++
	w.snapshot.Store(w.core.Snapshot(rec.Sequence, w.cfg.SnapshotDepth))
	w.observe(&req, resp)
	return nil
}

// verifyDurableResponse 追赶阶段的一致性校验：重放得到的响应必须与
// 既有持久化响应逐字节一致（处理耗时随环境变化，不参与比对）。
// 不一致说明检查点、日志或代码三者之间出现分歧，立即中止启动。
func (w *Worker) verifyDurableResponse(seq uint64, resp *domain.SequencerResponse) error {
	if w.verify == nil {
		return nil
	}
	rec, ok, err := w.verify.TryNext()
	if err != nil {
		return fmt.Errorf("response journal read failed at sequence %d: %w", seq, err)
	}
	if !ok || rec.Sequence != seq {
		return fmt.Errorf("response journal has no record for sequence %d", seq)
	}

	var durable domain.SequencerResponse
	if err := json.Unmarshal(rec.Payload, &durable); err != nil {
		return fmt.Errorf("durable response unparseable at sequence %d: %w", seq, err)
	}
	durable.ProcessingTime = 0
	replayed := *resp
	replayed.ProcessingTime = 0

	want, err := json.Marshal(&durable)
	if err != nil {
		return fmt.Errorf("durable response encoding failed at sequence %d: %w", seq, err)
	}
	got, err := json.Marshal(&replayed)
	if err != nil {
		return fmt.Errorf("replayed response encoding failed at sequence %d: %w", seq, err)
	}
	if !bytes.Equal(want, got) {
		return fmt.Errorf("replayed response diverges from durable response at sequence %d", seq)
	}
	return nil
}

func (w *Worker) observe(req *domain.SequencerRequest, resp *domain.SequencerResponse) {
	if w.metrics == nil {
		return
	}
	errLabel := string(resp.Error)
	if errLabel == "" {
		errLabel = "none"
	}
	w.metrics.RequestsTotal.WithLabelValues(string(req.Type), errLabel).Inc()
	w.metrics.RequestDuration.Observe(float64(resp.ProcessingTime) / float64(time.Second))
	w.metrics.TradesTotal.Add(float64(len(resp.TradesCreated)))
	w.metrics.OrdersResting.Set(float64(w.core.RestingOrders()))
	w.metrics.RequestSequence.Set(float64(resp.Sequence))
	w.metrics.ResponseSequence.Set(float64(w.out.NextSequence() - 1))
}

// writeCheckpoint 在两条请求之间写检查点，与状态变更绝不并发
func (w *Worker) writeCheckpoint() {
	if w.ckpt == nil {
		w.sinceCheckpoint = 0
		return
	}
	data := w.core.EncodeState(w.lastProcessedSeqNo)
	if err := w.ckpt.Save(w.lastProcessedSeqNo, data); err != nil {
		// 检查点只是恢复加速手段，失败降级为完整重放
		w.logger.Error("checkpoint write failed", "sequence", w.lastProcessedSeqNo, "error", err)
	} else {
		w.logger.Info("checkpoint written", "sequence", w.lastProcessedSeqNo, "bytes", len(data))
		if w.metrics != nil {
			w.metrics.CheckpointsTotal.Inc()
		}
	}
	w.sinceCheckpoint = 0
}

// RequestJournalPath 请求日志路径
func RequestJournalPath(dir string) string {
	return filepath.Join(dir, journal.RequestLogName)
}

// ResponseJournalPath 响应日志路径
func ResponseJournalPath(dir string) string {
	return filepath.Join(dir, journal.ResponseLogName)
}

// CheckpointDir 检查点目录路径
func CheckpointDir(dir string) string {
	return filepath.Join(dir, "checkpoints")
}

// OpenState 启动恢复：加载最新检查点（如有）重建核心，
// 请求日志从检查点序列号之后继续消费。日志打开失败即中止启动。
func OpenState(journalDir string, fsync bool, feeWallet string, logger *slog.Logger) (*Core, *journal.Tailer, *journal.Appender, *journal.CheckpointStore, error) {
	ckptStore := journal.NewCheckpointStore(CheckpointDir(journalDir))

	var core *Core
	var fromSeq uint64 = 1
	if data, seq, ok, err := ckptStore.Latest(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to read checkpoint: %w", err)
	} else if ok {
		restored, ckptSeq, err := DecodeState(data, feeWallet, logger)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to restore checkpoint at sequence %d: %w", seq, err)
		}
		core = restored
		fromSeq = ckptSeq + 1
		logger.Info("state restored from checkpoint", "sequence", ckptSeq)
	} else {
		core = NewCore(feeWallet, logger)
	}

	in, err := journal.OpenTailer(RequestJournalPath(journalDir), fromSeq)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open request journal: %w", err)
	}
	out, err := journal.OpenAppender(ResponseJournalPath(journalDir), fsync)
	if err != nil {
		in.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to open response journal: %w", err)
	}
	return core, in, out, ckptStore, nil
}
