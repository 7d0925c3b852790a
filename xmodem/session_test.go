package xmodem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/drunlade/go-xmodem/internal/testutil/simlink"
)

// both runs send and receive concurrently and returns their errors.
func both(send, receive func() error) (serr, rerr error) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		serr = send()
	}()
	go func() {
		defer wg.Done()
		rerr = receive()
	}()
	wg.Wait()
	return serr, rerr
}

type callbackLog struct {
	mu        sync.Mutex
	started   []string
	completed map[string]int64
}

func (l *callbackLog) callbacks() *Callbacks {
	return &Callbacks{
		OnFileStart: func(name string, size int64, mode os.FileMode) {
			l.mu.Lock()
			l.started = append(l.started, name)
			l.mu.Unlock()
		},
		OnFileComplete: func(name string, n int64, d time.Duration) {
			l.mu.Lock()
			if l.completed == nil {
				l.completed = make(map[string]int64)
			}
			l.completed[name] = n
			l.mu.Unlock()
		},
	}
}

func TestSessionSendReceive(t *testing.T) {
	data := testPayload(1000, 7)
	sp, rp := simlink.NewPair()

	var slog, rlog callbackLog
	rcfg := pairConfig()
	rcfg.Padding = PaddingStrip
	sender := NewSession(sp, WithConfig(pairConfig()), WithCallbacks(slog.callbacks()))
	receiver := NewSession(rp, WithConfig(rcfg), WithCallbacks(rlog.callbacks()))

	var out bytes.Buffer
	serr, rerr := both(
		func() error {
			return sender.Send(context.Background(), "data.bin", bytes.NewReader(data), int64(len(data)))
		},
		func() error {
			return receiver.Receive(context.Background(), "data.bin", &out)
		},
	)
	if serr != nil || rerr != nil {
		t.Fatalf("send: %v, receive: %v", serr, rerr)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("received %d bytes, want %d", out.Len(), len(data))
	}
	if slog.completed["data.bin"] != 1000 || rlog.completed["data.bin"] != 1000 {
		t.Fatalf("completion callbacks: sender %v receiver %v", slog.completed, rlog.completed)
	}
	if len(slog.started) != 1 || len(rlog.started) != 1 {
		t.Fatalf("start callbacks: sender %v receiver %v", slog.started, rlog.started)
	}
}

func TestSessionSendFileReceiveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	dst := filepath.Join(dir, "out.bin")
	data := testPayload(640, 2) // exactly five blocks, no padding
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sp, rp := simlink.NewPair()
	sender := NewSession(sp, WithConfig(pairConfig()))
	receiver := NewSession(rp, WithConfig(pairConfig()))
	serr, rerr := both(
		func() error { return sender.SendFile(context.Background(), src) },
		func() error { return receiver.ReceiveFile(context.Background(), dst) },
	)
	if serr != nil || rerr != nil {
		t.Fatalf("send: %v, receive: %v", serr, rerr)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("file content mismatch")
	}
}

func writeTestFile(t *testing.T, path string, data []byte, mode os.FileMode, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, data, mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestSessionBatch(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	mtime := time.Unix(1650000000, 0)
	files := map[string][]byte{
		"alpha.txt": []byte("hello batch\n"),
		"beta.bin":  testPayload(3000, 9),
		"skip.txt":  []byte("not wanted"),
	}
	var list []FileInfo
	for _, name := range []string{"alpha.txt", "beta.bin", "skip.txt"} {
		p := filepath.Join(srcDir, name)
		writeTestFile(t, p, files[name], 0o640, mtime)
		list = append(list, FileInfo{Filename: p})
	}
	// missing files are skipped when OnError says so
	list = append(list, FileInfo{Filename: filepath.Join(srcDir, "missing")})

	sp, rp := simlink.NewPair()
	var skipped []string
	sender := NewSession(sp, WithConfig(batchConfig()), WithCallbacks(&Callbacks{
		OnError: func(err error, where string) bool {
			skipped = append(skipped, where)
			return errors.Is(err, os.ErrNotExist)
		},
	}))
	receiver := NewSession(rp, WithConfig(batchConfig()), WithCallbacks(&Callbacks{
		OnFilePrompt: func(name string, size int64, mode os.FileMode) (bool, error) {
			return name != "skip.txt", nil
		},
	}))

	var n int
	serr, rerr := both(
		func() error { return sender.SendFiles(context.Background(), list) },
		func() (err error) {
			n, err = receiver.ReceiveFiles(context.Background(), dstDir)
			return err
		},
	)
	if serr != nil || rerr != nil {
		t.Fatalf("send: %v, receive: %v", serr, rerr)
	}
	if n != 2 {
		t.Fatalf("ReceiveFiles wrote %d files, want 2", n)
	}
	if len(skipped) != 1 {
		t.Fatalf("OnError calls: %v", skipped)
	}

	for _, name := range []string{"alpha.txt", "beta.bin"} {
		p := filepath.Join(dstDir, name)
		got, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, files[name]) {
			t.Fatalf("%s: %d bytes, want %d", name, len(got), len(files[name]))
		}
		info, err := os.Stat(p)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o640 {
			t.Fatalf("%s: mode %v", name, info.Mode())
		}
		if !info.ModTime().Equal(mtime) {
			t.Fatalf("%s: mtime %v, want %v", name, info.ModTime(), mtime)
		}
	}
	if _, err := os.Stat(filepath.Join(dstDir, "skip.txt")); !os.IsNotExist(err) {
		t.Fatalf("declined file was written: %v", err)
	}
}

func TestBatchNameSanitized(t *testing.T) {
	dir := t.TempDir()
	sink := &batchSink{s: NewSession(simlink.NewScripted()), dir: dir}
	sink.tracker = NewProgressTracker(nil, 0)
	sink.m = NewBatchReceiver(simlink.NewScripted(), sink, nil)

	if _, err := sink.OpenFile(Header{Name: "../../etc/passwd", Size: 1, HasSize: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "passwd")); err != nil {
		t.Fatalf("file not created inside the target directory: %v", err)
	}
	sink.closeCurrent()

	if _, err := sink.OpenFile(Header{Name: "/"}); err == nil {
		t.Fatalf("empty base name accepted")
	}
}
