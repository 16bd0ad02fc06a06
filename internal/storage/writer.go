package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	molyerrors "github.com/valter-silva-au/moly-recorder/internal/errors"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// DefaultQueueSize is the writer queue capacity used when none is configured.
const DefaultQueueSize = 256

// Writer is the single owner of a session's three files. Every append,
// finalize and SessionInfo update is funneled through one worker goroutine,
// so the filesystem only ever sees complete lines in a single order.
type Writer interface {
	// Session returns a copy of the session being written.
	Session() models.Session

	// AppendAction writes one action line and waits until it is on disk.
	AppendAction(event models.ActionEvent) error

	// AppendResponse writes one response line and waits until it is on disk.
	AppendResponse(event models.ResponseEvent) error

	// PostAction queues an action without waiting for the write. Droppable
	// actions are discarded when the queue is full and false is returned;
	// every other action blocks until it is queued. Write failures are
	// reported through the error handler option.
	PostAction(event models.ActionEvent) bool

	// RecordTaskSelection adds task selection metadata to SessionInfo.
	RecordTaskSelection(selection models.TaskSelection) error

	// Finalize writes the session end time and duration into SessionInfo,
	// marking the session complete. Later appends fail with a
	// session_closed error.
	Finalize(end time.Time) error

	// Close drains the queue and closes the log files. It does not finalize.
	Close() error

	// Stats returns write counters.
	Stats() WriterStats
}

// WriterStats counts what the writer has done since it was opened.
type WriterStats struct {
	ActionsWritten   int64 `json:"actions_written"`
	ResponsesWritten int64 `json:"responses_written"`
	Dropped          int64 `json:"dropped"`
	Errors           int64 `json:"errors"`
	Retries          int64 `json:"retries"`
}

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	clock         func() time.Time
	queueSize     int
	syncEachWrite bool
	onError       func(error)
	onDrop        func(models.ActionEvent)
}

// WithClock replaces time.Now as the source of event timestamps.
func WithClock(clock func() time.Time) WriterOption {
	return func(o *writerOptions) { o.clock = clock }
}

// WithQueueSize sets the capacity of the write queue.
func WithQueueSize(n int) WriterOption {
	return func(o *writerOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithSyncEachWrite controls whether every line is fsynced before the
// append is acknowledged.
func WithSyncEachWrite(sync bool) WriterOption {
	return func(o *writerOptions) { o.syncEachWrite = sync }
}

// WithErrorHandler receives failures of asynchronously posted actions.
func WithErrorHandler(fn func(error)) WriterOption {
	return func(o *writerOptions) { o.onError = fn }
}

// WithDropHandler is called for every action discarded under backpressure.
func WithDropHandler(fn func(models.ActionEvent)) WriterOption {
	return func(o *writerOptions) { o.onDrop = fn }
}

type requestKind int

const (
	reqAction requestKind = iota
	reqResponse
	reqTaskSelection
	reqFinalize
)

type writeRequest struct {
	kind      requestKind
	at        time.Time
	action    models.ActionEvent
	response  models.ResponseEvent
	selection models.TaskSelection
	done      chan error
}

type logFile struct {
	path string
	file *os.File
}

type sessionWriter struct {
	opts writerOptions

	// Guarded by mu. Senders hold the read lock while queueing so Close
	// can never close the queue under them.
	mu     sync.RWMutex
	closed bool

	queue  chan writeRequest
	doneWG sync.WaitGroup

	// Owned by the worker goroutine.
	session   models.Session
	actions   logFile
	responses logFile
	last      time.Time
	finalized bool

	// Copy of session published for Session().
	snapMu sync.Mutex
	snap   models.Session

	actionsWritten   atomic.Int64
	responsesWritten atomic.Int64
	dropped          atomic.Int64
	errors           atomic.Int64
	retries          atomic.Int64
}

// OpenWriter opens the files of session for appending. A fresh session gets
// its directory, SessionInfo and empty log files created; a resumed session
// (session.Resumed) reuses its existing files untouched. Existing log files
// are never truncated.
func OpenWriter(session models.Session, opts ...WriterOption) (Writer, error) {
	o := writerOptions{
		clock:         time.Now,
		queueSize:     DefaultQueueSize,
		syncEachWrite: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	paths := session.Paths
	if paths.SessionInfoPath == "" || paths.ActionsLogPath == "" || paths.ResponsesPath == "" {
		return nil, molyerrors.IO("open session", paths.Dir, fmt.Errorf("session paths are incomplete"))
	}

	if !session.Resumed {
		if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
			return nil, molyerrors.IO("create session directory", paths.Dir, err)
		}
		if session.Info.FileStructure == (models.FileStructure{}) {
			session.Info.FileStructure = FileStructureFor(paths)
		}
		if err := WriteSessionInfo(paths.SessionInfoPath, &session.Info); err != nil {
			return nil, err
		}
	}

	actions, err := openAppend(paths.ActionsLogPath)
	if err != nil {
		return nil, molyerrors.IO("open actions log", paths.ActionsLogPath, err)
	}
	responses, err := openAppend(paths.ResponsesPath)
	if err != nil {
		_ = actions.Close()
		return nil, molyerrors.IO("open responses log", paths.ResponsesPath, err)
	}
	if !session.Resumed {
		syncDir(paths.Dir)
	}

	w := &sessionWriter{
		opts:      o,
		queue:     make(chan writeRequest, o.queueSize),
		session:   session,
		snap:      session,
		actions:   logFile{path: paths.ActionsLogPath, file: actions},
		responses: logFile{path: paths.ResponsesPath, file: responses},
		last:      session.StartTime(),
	}
	w.doneWG.Add(1)
	go w.run()
	return w, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func (w *sessionWriter) Session() models.Session {
	w.snapMu.Lock()
	defer w.snapMu.Unlock()
	return w.snap
}

func (w *sessionWriter) AppendAction(event models.ActionEvent) error {
	return w.submit(writeRequest{kind: reqAction, action: event}, "append action")
}

func (w *sessionWriter) AppendResponse(event models.ResponseEvent) error {
	return w.submit(writeRequest{kind: reqResponse, response: event}, "append response")
}

func (w *sessionWriter) RecordTaskSelection(selection models.TaskSelection) error {
	return w.submit(writeRequest{kind: reqTaskSelection, selection: selection}, "record task selection")
}

func (w *sessionWriter) Finalize(end time.Time) error {
	return w.submit(writeRequest{kind: reqFinalize, at: end}, "finalize session")
}

// submit queues a request and waits for the worker to acknowledge it.
func (w *sessionWriter) submit(req writeRequest, op string) error {
	if req.at.IsZero() {
		req.at = w.opts.clock()
	}
	req.done = make(chan error, 1)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return molyerrors.New(molyerrors.KindSessionClosed, op, w.session.Paths.Dir, nil)
	}
	w.queue <- req
	w.mu.RUnlock()

	return <-req.done
}

func (w *sessionWriter) PostAction(event models.ActionEvent) bool {
	req := writeRequest{kind: reqAction, action: event, at: w.opts.clock()}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.reportError(molyerrors.New(molyerrors.KindSessionClosed, "post action", w.session.Paths.Dir, nil))
		return false
	}
	if !event.ActionType.Droppable() {
		w.queue <- req
		return true
	}
	select {
	case w.queue <- req:
		return true
	default:
		w.dropped.Add(1)
		if w.opts.onDrop != nil {
			w.opts.onDrop(event)
		}
		return false
	}
}

func (w *sessionWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.doneWG.Wait()

	var firstErr error
	for _, lf := range []*logFile{&w.actions, &w.responses} {
		if lf.file == nil {
			continue
		}
		if err := lf.file.Sync(); err != nil && firstErr == nil {
			firstErr = molyerrors.IO("sync log", lf.path, err)
		}
		if err := lf.file.Close(); err != nil && firstErr == nil {
			firstErr = molyerrors.IO("close log", lf.path, err)
		}
		lf.file = nil
	}
	return firstErr
}

func (w *sessionWriter) Stats() WriterStats {
	return WriterStats{
		ActionsWritten:   w.actionsWritten.Load(),
		ResponsesWritten: w.responsesWritten.Load(),
		Dropped:          w.dropped.Load(),
		Errors:           w.errors.Load(),
		Retries:          w.retries.Load(),
	}
}

func (w *sessionWriter) run() {
	defer w.doneWG.Done()
	for req := range w.queue {
		err := w.handle(req)
		if err != nil {
			w.errors.Add(1)
		}
		if req.done != nil {
			req.done <- err
		} else if err != nil {
			w.reportError(err)
		}
	}
}

func (w *sessionWriter) reportError(err error) {
	if w.opts.onError != nil {
		w.opts.onError(err)
	}
}

func (w *sessionWriter) handle(req writeRequest) error {
	switch req.kind {
	case reqAction:
		if w.finalized {
			return molyerrors.New(molyerrors.KindSessionClosed, "append action", w.actions.path, nil)
		}
		ev := req.action
		ev.Timestamp, ev.SessionDurationSeconds = w.stamp(req.at)
		if ev.ParticipantID == "" {
			ev.ParticipantID = w.session.ParticipantID()
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return molyerrors.Format("encode action", w.actions.path, err)
		}
		if err := w.appendLine(&w.actions, data); err != nil {
			return molyerrors.IO("append action", w.actions.path, err)
		}
		w.actionsWritten.Add(1)
		return nil

	case reqResponse:
		if w.finalized {
			return molyerrors.New(molyerrors.KindSessionClosed, "append response", w.responses.path, nil)
		}
		ev := req.response
		ev.Timestamp, ev.SessionDurationSeconds = w.stamp(req.at)
		if ev.ParticipantID == "" {
			ev.ParticipantID = w.session.ParticipantID()
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return molyerrors.Format("encode response", w.responses.path, err)
		}
		if err := w.appendLine(&w.responses, data); err != nil {
			return molyerrors.IO("append response", w.responses.path, err)
		}
		w.responsesWritten.Add(1)
		return nil

	case reqTaskSelection:
		if w.finalized {
			return molyerrors.New(molyerrors.KindSessionClosed, "record task selection", w.session.Paths.SessionInfoPath, nil)
		}
		info := w.session.Info
		sel := req.selection
		if sel.SelectionTimestamp == (models.SessionTime{}) {
			sel.SelectionTimestamp = models.NewSessionTime(req.at)
		}
		info.TaskSelection = &sel
		return w.commitInfo(info)

	case reqFinalize:
		if w.finalized {
			return molyerrors.New(molyerrors.KindSessionClosed, "finalize session", w.session.Paths.SessionInfoPath, nil)
		}
		for _, lf := range []*logFile{&w.actions, &w.responses} {
			if err := lf.file.Sync(); err != nil {
				return molyerrors.IO("sync log", lf.path, err)
			}
		}
		end := req.at
		if end.Before(w.last) {
			end = w.last
		}
		endTime := models.NewSessionTime(end)
		seconds := roundMillis(endTime.UnixTimestamp - w.session.Info.SessionStartTime.UnixTimestamp)
		minutes := math.Round(seconds/60*100) / 100

		info := w.session.Info
		info.SessionEndTime = &endTime
		info.SessionDurationSeconds = &seconds
		info.SessionDurationMinutes = &minutes
		if err := w.commitInfo(info); err != nil {
			return err
		}
		w.finalized = true
		return nil
	}
	return fmt.Errorf("unknown write request %d", req.kind)
}

// commitInfo atomically replaces SessionInfo and publishes the new copy.
func (w *sessionWriter) commitInfo(info models.SessionInfo) error {
	if err := WriteSessionInfo(w.session.Paths.SessionInfoPath, &info); err != nil {
		return err
	}
	w.session.Info = info
	w.snapMu.Lock()
	w.snap = w.session
	w.snapMu.Unlock()
	return nil
}

// stamp returns the timestamp and session duration for a line written at
// t. Timestamps never go backwards within a session, and the duration is
// always measured from the original session start.
func (w *sessionWriter) stamp(t time.Time) (models.EventTime, float64) {
	if t.UnixMilli() < w.last.UnixMilli() {
		t = w.last
	}
	w.last = t
	ts := models.NewEventTime(t)
	return ts, roundMillis(ts.Unix - w.session.Info.SessionStartTime.UnixTimestamp)
}

// appendLine writes data plus a newline in a single write call. A failed
// write is retried once on a freshly opened handle; if the first attempt
// left a partial line, the retry starts with a newline so the fragment stays
// an isolated unparseable line and the real record stays intact.
func (w *sessionWriter) appendLine(lf *logFile, data []byte) error {
	line := make([]byte, 0, len(data)+2)
	line = append(line, data...)
	line = append(line, '\n')

	n, err := lf.file.Write(line)
	written := err == nil
	if written && w.opts.syncEachWrite {
		err = lf.file.Sync()
	}
	if err == nil {
		return nil
	}

	w.retries.Add(1)
	_ = lf.file.Close()
	f, openErr := openAppend(lf.path)
	if openErr != nil {
		return fmt.Errorf("reopening after %v: %w", err, openErr)
	}
	lf.file = f

	// Only the sync failed: the line is already in the file.
	if !written {
		if n > 0 {
			line = append([]byte{'\n'}, line...)
		}
		if _, err := lf.file.Write(line); err != nil {
			return fmt.Errorf("retrying write: %w", err)
		}
	}
	if w.opts.syncEachWrite {
		if err := lf.file.Sync(); err != nil {
			return fmt.Errorf("retrying sync: %w", err)
		}
	}
	return nil
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
