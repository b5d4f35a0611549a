// replay 离线重放与校验工具：从请求日志完整重建状态，
// 将重放产生的每条响应与响应日志逐条比对（处理耗时字段归零后），
// 最后打印状态摘要。比对通过意味着当前二进制与历史日志确定性一致。
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wyfcoding/dexcore/internal/sequencer/application"
	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/journal"
)

func main() {
	var journalDir string
	var verify bool
	var feeWallet string
	flag.StringVar(&journalDir, "journal-dir", "data/journal", "journal directory")
	flag.BoolVar(&verify, "verify", true, "compare replayed responses against the response journal")
	flag.StringVar(&feeWallet, "fee-wallet", "fees", "fee collection wallet")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	requests, err := journal.OpenTailer(application.RequestJournalPath(journalDir), 1)
	if err != nil {
		fatal("open request journal: %v", err)
	}
	defer requests.Close()

	var responses *journal.Tailer
	if verify {
		responses, err = journal.OpenTailer(application.ResponseJournalPath(journalDir), 1)
		if err != nil {
			fatal("open response journal: %v", err)
		}
		defer responses.Close()
	}

	core := application.NewCore(feeWallet, log)
	start := time.Now()
	var processed, mismatches uint64
	var lastSeq uint64

	for {
		rec, ok, err := requests.TryNext()
		if err != nil {
			fatal("request journal read at sequence %d: %v", requests.NextSequence(), err)
		}
		if !ok {
			break
		}

		var req domain.SequencerRequest
		var resp *domain.SequencerResponse
		if err := json.Unmarshal(rec.Payload, &req); err != nil {
			resp = &domain.SequencerResponse{Error: domain.ErrUnknownRequest}
		} else {
			resp = core.ProcessRequest(&req)
		}
		resp.Sequence = rec.Sequence
		lastSeq = rec.Sequence
		processed++

		if responses != nil {
			if !compare(responses, resp) {
				mismatches++
			}
		}
	}

	digest := core.StateDigest(lastSeq)
	fmt.Printf("replayed %d requests in %s\n", processed, time.Since(start).Round(time.Millisecond))
	fmt.Printf("state digest: %x\n", digest)
	if responses != nil {
		if mismatches > 0 {
			fmt.Printf("VERIFY FAILED: %d mismatched responses\n", mismatches)
			os.Exit(1)
		}
		fmt.Println("verify: all responses match")
	}
}

// compare 将重放响应与日志中的对应记录比对。
// 处理耗时只作诊断用途，比对前统一归零。
func compare(responses *journal.Tailer, replayed *domain.SequencerResponse) bool {
	rec, ok, err := responses.TryNext()
	if err != nil {
		fatal("response journal read at sequence %d: %v", responses.NextSequence(), err)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "sequence %d: response journal is shorter than request journal\n", replayed.Sequence)
		return false
	}

	var logged domain.SequencerResponse
	if err := json.Unmarshal(rec.Payload, &logged); err != nil {
		fmt.Fprintf(os.Stderr, "sequence %d: unparseable logged response: %v\n", rec.Sequence, err)
		return false
	}
	logged.ProcessingTime = 0
	replayed.ProcessingTime = 0

	a, err := json.Marshal(&logged)
	if err != nil {
		fatal("encode logged response: %v", err)
	}
	b, err := json.Marshal(replayed)
	if err != nil {
		fatal("encode replayed response: %v", err)
	}
	if !bytes.Equal(a, b) {
		fmt.Fprintf(os.Stderr, "sequence %d: response mismatch\n  logged:   %s\n  replayed: %s\n", rec.Sequence, a, b)
		return false
	}
	return true
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
