package xmodem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Session represents an XMODEM or YMODEM transfer session over one
// transport. It provides a high-level API for sending and receiving files
// and drives the state machines with Run.
type Session struct {
	// I/O
	t Transport

	// Configuration
	config *Config

	// Callbacks
	callbacks *Callbacks

	// Context
	ctx context.Context

	// Logger
	logger Logger
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithContext sets the session context.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithLogger sets a logger for protocol debugging. It is used by the
// state machines unless the configuration carries its own.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a new session on t.
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		t:         t,
		config:    DefaultConfig(),
		callbacks: defaultCallbacks(),
		ctx:       context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = orNoop(s.logger)
	s.config = s.config.clone()
	if s.config.Logger == nil {
		s.config.Logger = s.logger
	}
	return s
}

// Config returns the session configuration.
func (s *Session) Config() *Config {
	return s.config
}

func (s *Session) run(ctx context.Context, m Machine, step func(Machine)) error {
	if ctx == nil {
		ctx = s.ctx
	}
	o := Run(ctx, m, step)
	if err := o.Error(); err != nil {
		s.logger.Error("transfer ended: %s", o)
		return err
	}
	return nil
}

// Send sends the contents of r as a single XMODEM file. filename and size
// are only used for callbacks; size may be 0 if unknown.
func (s *Session) Send(ctx context.Context, filename string, r io.Reader, size int64) error {
	tracker := NewProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval)
	s.callbacks.OnFileStart(filename, size, 0)
	tracker.Start(filename, size, Stats{})

	s.logger.Info("Send: %s (%d bytes), %d byte blocks", filename, size, s.config.BlockSize)
	m := NewSender(s.t, NewReaderSource(r), s.config)
	if err := s.run(ctx, m, func(m Machine) { tracker.Observe(m.Stats()) }); err != nil {
		s.callbacks.OnError(err, "send file")
		return err
	}

	p := tracker.Complete()
	s.callbacks.OnFileComplete(filename, p.Transferred, p.Elapsed)
	return nil
}

// Receive receives a single XMODEM file into w. The final block's padding
// is kept or stripped according to the configured Padding policy.
func (s *Session) Receive(ctx context.Context, filename string, w io.Writer) error {
	tracker := NewProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval)
	s.callbacks.OnFileStart(filename, 0, 0)
	tracker.Start(filename, 0, Stats{})

	s.logger.Info("Receive: %s, requesting %s", filename, s.config.Mode)
	sink := NewWriterSink(w, s.config.Padding, s.config.PadByte)
	m := NewReceiver(s.t, sink, s.config)
	if err := s.run(ctx, m, func(m Machine) { tracker.Observe(m.Stats()) }); err != nil {
		s.callbacks.OnError(err, "receive file")
		return err
	}

	p := tracker.Complete()
	s.callbacks.OnFileComplete(filename, sink.Written(), p.Elapsed)
	return nil
}

// SendFile opens path and sends it as a single XMODEM file.
func (s *Session) SendFile(ctx context.Context, path string) error {
	r, info, err := s.openFile(FileInfo{Filename: path})
	if err != nil {
		s.callbacks.OnError(err, "open file")
		return err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	return s.Send(ctx, filepath.Base(path), r, info.Size())
}

// ReceiveFile receives a single XMODEM file into path.
func (s *Session) ReceiveFile(ctx context.Context, path string) error {
	w, err := s.createFile(path, 0, 0644)
	if err != nil {
		s.callbacks.OnError(err, "create file")
		return err
	}
	err = s.Receive(ctx, filepath.Base(path), w)
	if c, ok := w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Session) openFile(fi FileInfo) (io.Reader, os.FileInfo, error) {
	if s.callbacks.OnFileOpen != nil {
		return s.callbacks.OnFileOpen(fi.Filename)
	}
	f, err := os.Open(fi.Filename)
	if err != nil {
		return nil, nil, err
	}
	info := fi.Info
	if info == nil {
		if info, err = f.Stat(); err != nil {
			f.Close()
			return nil, nil, err
		}
	}
	return f, info, nil
}

func (s *Session) createFile(path string, size int64, mode os.FileMode) (io.Writer, error) {
	if s.callbacks.OnFileCreate != nil {
		return s.callbacks.OnFileCreate(path, size, mode)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
}

// SendFiles sends files as one YMODEM batch.
func (s *Session) SendFiles(ctx context.Context, files []FileInfo) error {
	src := &batchSource{
		s:       s,
		files:   files,
		tracker: NewProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval),
	}
	m := NewBatchSender(s.t, src, s.config)
	src.m = m
	defer src.finishCurrent(false)

	s.logger.Info("SendFiles: %d files", len(files))
	if err := s.run(ctx, m, func(m Machine) { src.tracker.Observe(m.Stats()) }); err != nil {
		s.callbacks.OnError(err, "send files")
		return err
	}
	return nil
}

// ReceiveFiles receives a YMODEM batch into dir and returns the number of
// files written. Names from the sender are reduced to their base name.
func (s *Session) ReceiveFiles(ctx context.Context, dir string) (int, error) {
	sink := &batchSink{
		s:       s,
		dir:     dir,
		tracker: NewProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval),
	}
	m := NewBatchReceiver(s.t, sink, s.config)
	sink.m = m
	defer sink.closeCurrent()

	s.logger.Info("ReceiveFiles: into %s", dir)
	if err := s.run(ctx, m, func(m Machine) { sink.tracker.Observe(m.Stats()) }); err != nil {
		s.callbacks.OnError(err, "receive files")
		return sink.written, err
	}
	return sink.written, nil
}

// FileInfo holds information about a file to transfer.
type FileInfo struct {
	Filename string
	Info     os.FileInfo // looked up when nil
}

// batchSource feeds SendFiles' list to a BatchSender. A BatchSender only
// asks for the next file after the previous one completed.
type batchSource struct {
	s       *Session
	files   []FileInfo
	next    int
	m       *BatchSender
	tracker *ProgressTracker

	cur     io.Reader
	curName string
}

func (b *batchSource) NextFile() (Header, Source, error) {
	b.finishCurrent(true)
	for b.next < len(b.files) {
		fi := b.files[b.next]
		b.next++

		r, info, err := b.s.openFile(fi)
		if err != nil {
			if b.s.callbacks.OnError(err, "open file") {
				b.s.logger.Info("SendFiles: skipping %s: %v", fi.Filename, err)
				continue
			}
			return Header{}, nil, err
		}

		h := Header{
			Name:    filepath.Base(fi.Filename),
			Size:    info.Size(),
			HasSize: true,
			ModTime: info.ModTime(),
			Mode:    info.Mode().Perm(),
		}
		b.cur = r
		b.curName = h.Name
		b.s.callbacks.OnFileStart(h.Name, h.Size, h.Mode)
		b.tracker.Start(h.Name, h.Size, b.m.Stats())
		return h, NewReaderSource(r), nil
	}
	return Header{}, nil, io.EOF
}

func (b *batchSource) finishCurrent(completed bool) {
	if b.cur == nil {
		return
	}
	if completed {
		p := b.tracker.Complete()
		b.s.callbacks.OnFileComplete(b.curName, p.Transferred, p.Elapsed)
	}
	if c, ok := b.cur.(io.Closer); ok {
		c.Close()
	}
	b.cur = nil
}

// batchSink creates the files of a batch received by ReceiveFiles.
type batchSink struct {
	s       *Session
	dir     string
	m       *BatchReceiver
	tracker *ProgressTracker
	written int

	cur *fileSink
}

// fileSink is one file of a batch. Finish runs when the file's EOT is
// accepted.
type fileSink struct {
	*WriterSink
	w      io.Writer
	header Header
	keep   bool
	owner  *batchSink
}

func (f *fileSink) Finish() error {
	if err := f.WriterSink.Finish(); err != nil {
		return err
	}
	return f.owner.complete(f)
}

func (b *batchSink) OpenFile(h Header) (Sink, error) {
	name := filepath.Base(filepath.Clean(string(filepath.Separator) + h.Name))
	if name == string(filepath.Separator) || name == "." {
		return nil, NewError(ErrHeader, "invalid file name "+h.Name)
	}

	accept, err := b.s.callbacks.OnFilePrompt(name, h.Size, h.Mode)
	if err != nil {
		return nil, err
	}
	h.Name = name
	if !accept {
		b.s.logger.Info("ReceiveFiles: discarding %s", name)
		return b.open(h, io.Discard, false), nil
	}

	mode := h.Mode
	if mode == 0 {
		mode = 0644
	}
	w, err := b.s.createFile(filepath.Join(b.dir, name), h.Size, mode)
	if err != nil {
		if b.s.callbacks.OnError(err, "create file") {
			return b.open(h, io.Discard, false), nil
		}
		return nil, err
	}
	return b.open(h, w, true), nil
}

func (b *batchSink) open(h Header, w io.Writer, keep bool) Sink {
	cfg := b.s.config
	f := &fileSink{
		WriterSink: NewWriterSink(w, cfg.Padding, cfg.PadByte),
		w:          w,
		header:     h,
		keep:       keep,
		owner:      b,
	}
	b.cur = f
	if keep {
		b.s.callbacks.OnFileStart(h.Name, h.Size, h.Mode)
		b.tracker.Start(h.Name, h.Size, b.m.Stats())
	}
	return f
}

func (b *batchSink) complete(f *fileSink) error {
	b.cur = nil
	if !f.keep {
		return nil
	}
	if err := closeWriter(f.w); err != nil {
		return err
	}
	if file, ok := f.w.(*os.File); ok {
		if f.header.Mode != 0 {
			os.Chmod(file.Name(), f.header.Mode)
		}
		if !f.header.ModTime.IsZero() {
			os.Chtimes(file.Name(), time.Now(), f.header.ModTime)
		}
	}
	b.written++
	p := b.tracker.Complete()
	b.s.callbacks.OnFileComplete(f.header.Name, f.Written(), p.Elapsed)
	return nil
}

func (b *batchSink) closeCurrent() {
	if b.cur != nil && b.cur.keep {
		closeWriter(b.cur.w)
	}
	b.cur = nil
}

func closeWriter(w io.Writer) error {
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
