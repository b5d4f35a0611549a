package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/journal"
)

func appendRequests(t *testing.T, dir string, reqs []*domain.SequencerRequest) {
	t.Helper()
	app, err := journal.OpenAppender(RequestJournalPath(dir), true)
	require.NoError(t, err)
	defer app.Close()
	for _, req := range reqs {
		payload, err := json.Marshal(req)
		require.NoError(t, err)
		_, err = app.Append(payload)
		require.NoError(t, err)
	}
}

// runWorkerUntil 运行 worker 直到响应日志达到 wantSeq 条记录
func runWorkerUntil(t *testing.T, dir string, wantSeq uint64) {
	t.Helper()
	core, in, out, ckpt, err := OpenState(dir, true, "fee-collector", discardLogger())
	require.NoError(t, err)
	defer in.Close()
	defer out.Close()

	verify, err := journal.OpenTailer(ResponseJournalPath(dir), in.NextSequence())
	require.NoError(t, err)
	worker := NewWorker(core, in, out, verify, ckpt, WorkerConfig{CheckpointEvery: 2, SnapshotDepth: 10}, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for worker.Snapshot().Sequence < wantSeq {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("worker did not reach sequence %d, at %d", wantSeq, worker.Snapshot().Sequence)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func readResponses(t *testing.T, dir string) []domain.SequencerResponse {
	t.Helper()
	tailer, err := journal.OpenTailer(ResponseJournalPath(dir), 1)
	require.NoError(t, err)
	defer tailer.Close()

	var out []domain.SequencerResponse
	for {
		rec, ok, err := tailer.TryNext()
		require.NoError(t, err)
		if !ok {
			return out
		}
		var resp domain.SequencerResponse
		require.NoError(t, json.Unmarshal(rec.Payload, &resp))
		out = append(out, resp)
	}
}

func TestWorkerProcessesJournal(t *testing.T) {
	dir := t.TempDir()
	reqs := scenarioRequests()
	appendRequests(t, dir, reqs)

	runWorkerUntil(t, dir, uint64(len(reqs)))

	responses := readResponses(t, dir)
	require.Len(t, responses, len(reqs))
	for i, resp := range responses {
		assert.Equal(t, uint64(i+1), resp.Sequence)
	}
	assert.Len(t, responses[0].MarketsCreated, 1)
	assert.NotEmpty(t, responses[6].TradesCreated)
}

// TestWorkerCatchUpDoesNotDuplicateResponses 重启后追赶阶段
// 只重建状态，不重复追加已持久化的响应。
func TestWorkerCatchUpDoesNotDuplicateResponses(t *testing.T) {
	dir := t.TempDir()
	reqs := scenarioRequests()
	appendRequests(t, dir, reqs)

	runWorkerUntil(t, dir, uint64(len(reqs)))
	first := readResponses(t, dir)

	// 重启并处理一条新请求
	appendRequests(t, dir, []*domain.SequencerRequest{
		depositRequest("carol", "BTC", "42"),
	})
	runWorkerUntil(t, dir, uint64(len(reqs)+1))

	second := readResponses(t, dir)
	require.Len(t, second, len(reqs)+1)
	// 既有响应保持原样
	for i := range first {
		assert.Equal(t, first[i].Sequence, second[i].Sequence)
		assert.Equal(t, first[i].GUID, second[i].GUID)
	}
	assert.Equal(t, uint64(len(reqs)+1), second[len(second)-1].Sequence)
}

func TestWorkerRejectsUnparseableRecord(t *testing.T) {
	dir := t.TempDir()

	app, err := journal.OpenAppender(RequestJournalPath(dir), true)
	require.NoError(t, err)
	_, err = app.Append([]byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, app.Close())

	runWorkerUntil(t, dir, 1)

	responses := readResponses(t, dir)
	require.Len(t, responses, 1)
	assert.Equal(t, domain.ErrUnknownRequest, responses[0].Error)
}

// TestWorkerCatchUpDetectsDivergentResponse 追赶阶段重放结果与
// 既有持久化响应不一致时立即中止，不带着分歧状态继续服务。
func TestWorkerCatchUpDetectsDivergentResponse(t *testing.T) {
	dir := t.TempDir()
	appendRequests(t, dir, []*domain.SequencerRequest{
		depositRequest("carol", "BTC", "42"),
	})

	// 伪造一条与重放结果不符的既有响应
	app, err := journal.OpenAppender(ResponseJournalPath(dir), true)
	require.NoError(t, err)
	bogus, err := json.Marshal(&domain.SequencerResponse{Sequence: 1, Error: domain.ErrUnknownRequest})
	require.NoError(t, err)
	_, err = app.Append(bogus)
	require.NoError(t, err)
	require.NoError(t, app.Close())

	core, in, out, ckpt, err := OpenState(dir, true, "fee-collector", discardLogger())
	require.NoError(t, err)
	defer in.Close()
	defer out.Close()
	verify, err := journal.OpenTailer(ResponseJournalPath(dir), in.NextSequence())
	require.NoError(t, err)
	defer verify.Close()

	worker := NewWorker(core, in, out, verify, ckpt, WorkerConfig{SnapshotDepth: 10}, nil, discardLogger())
	err = worker.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diverges")
}

// TestWorkerCheckpointResume 检查点恢复后从其后的序列号继续消费
func TestWorkerCheckpointResume(t *testing.T) {
	dir := t.TempDir()
	reqs := scenarioRequests()
	appendRequests(t, dir, reqs)

	runWorkerUntil(t, dir, uint64(len(reqs)))

	store := journal.NewCheckpointStore(CheckpointDir(dir))
	_, seq, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok, "worker should have written checkpoints")
	assert.Greater(t, seq, uint64(0))

	// 从检查点恢复的核心与全量重放的核心摘要一致
	core, in, out, _, err := OpenState(dir, true, "fee-collector", discardLogger())
	require.NoError(t, err)
	defer in.Close()
	defer out.Close()
	assert.Equal(t, seq+1, in.NextSequence())

	replayed := NewCore("fee-collector", discardLogger())
	for i, req := range reqs {
		if uint64(i+1) > seq {
			break
		}
		replayed.ProcessRequest(req)
	}
	assert.Equal(t, replayed.StateDigest(seq), core.StateDigest(seq))
}
