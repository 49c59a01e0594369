// Package termstream persists rolling PTY output so a client can replay
// missed output after a reconnect (§4.5).
package termstream

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ringLimit        = 2000
	completedRetention = 5 * time.Minute
)

// Status mirrors a terminal stream's lifecycle.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusErrored   Status = "errored"
)

// Entry is one chunk of output, identified by its seq in the session's
// overall stream.
type Entry struct {
	Seq  uint64 `json:"seq"`
	Data []byte `json:"data"`
}

// cacheFile is the on-disk shape written to
// .terminal-output-cache/<session_id>.json.
type cacheFile struct {
	StreamID         string    `json:"stream_id"`
	SessionID        string    `json:"session_id"`
	Command          string    `json:"command"`
	ProjectID        string    `json:"project_id,omitempty"`
	ProjectPath      string    `json:"project_path,omitempty"`
	Cwd              string    `json:"cwd,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	Status           Status    `json:"status"`
	Output           []Entry   `json:"output"`
	OutputStartIndex int       `json:"outputStartIndex"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// stream is the in-memory representation of one terminal stream.
type stream struct {
	mu sync.Mutex

	streamID    string
	sessionID   string
	command     string
	projectID   string
	projectPath string
	cwd         string
	startedAt   time.Time
	status      Status
	output      []Entry
	startIndex  int
	lastUpdated time.Time

	completedAt time.Time
}

// Store manages terminal streams for a single cache directory, one JSON
// file per session.
type Store struct {
	mu      sync.Mutex
	dir     string
	streams map[string]*stream // keyed by session id
}

// New returns a Store that persists under dir (created if missing).
func New(dir string) *Store {
	return &Store{dir: dir, streams: make(map[string]*stream)}
}

// Open starts tracking a new stream for sessionID, replacing any prior
// stream recorded for that session.
func (s *Store) Open(sessionID, streamID, command, projectID, projectPath, cwd string) {
	now := time.Now()
	st := &stream{
		streamID:    streamID,
		sessionID:   sessionID,
		command:     command,
		projectID:   projectID,
		projectPath: projectPath,
		cwd:         cwd,
		startedAt:   now,
		status:      StatusRunning,
		lastUpdated: now,
	}
	s.mu.Lock()
	s.streams[sessionID] = st
	s.mu.Unlock()
	s.persist(st)
}

// AppendOutput implements pty.OutputSink: the PTY session pushes every
// output chunk here before fan-out to its listeners.
func (s *Store) AppendOutput(sessionID string, seq uint64, data []byte) {
	s.mu.Lock()
	st, ok := s.streams[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	st.output = append(st.output, Entry{Seq: seq, Data: append([]byte(nil), data...)})
	if len(st.output) > ringLimit {
		trim := len(st.output) - ringLimit
		st.output = st.output[trim:]
		st.startIndex += trim
	}
	st.lastUpdated = time.Now()
	st.mu.Unlock()

	s.persist(st)
}

// SetStatus transitions a stream's status. Terminal statuses start the
// five-minute retention clock.
func (s *Store) SetStatus(sessionID string, status Status) {
	s.mu.Lock()
	st, ok := s.streams[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.status = status
	st.lastUpdated = time.Now()
	if status != StatusRunning {
		st.completedAt = st.lastUpdated
	}
	st.mu.Unlock()
	s.persist(st)
}

// MissedOutput serves terminal:missed-output: every retained entry whose
// position in the stream (counting from the first entry ever appended,
// trimmed ones included) is >= fromIndex. It reads the in-memory stream
// first and falls back to the cache file on disk when the stream isn't
// resident (after a process restart). Sweep removes a stream's cache file
// together with its in-memory copy.
func (s *Store) MissedOutput(sessionID string, fromIndex int) ([]Entry, error) {
	s.mu.Lock()
	st, ok := s.streams[sessionID]
	s.mu.Unlock()
	if ok {
		st.mu.Lock()
		defer st.mu.Unlock()
		return sliceFrom(st.output, st.startIndex, fromIndex), nil
	}

	cf, err := s.readCacheFile(sessionID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return sliceFrom(cf.Output, cf.OutputStartIndex, fromIndex), nil
}

func sliceFrom(output []Entry, startIndex, fromIndex int) []Entry {
	offset := fromIndex - startIndex
	if offset < 0 {
		offset = 0
	}
	if offset >= len(output) {
		return nil
	}
	out := make([]Entry, len(output)-offset)
	copy(out, output[offset:])
	return out
}

// Sweep removes streams that finished more than five minutes ago, both
// from memory and their cache file on disk.
func (s *Store) Sweep() {
	cutoff := time.Now().Add(-completedRetention)

	s.mu.Lock()
	var stale []*stream
	for id, st := range s.streams {
		st.mu.Lock()
		expired := st.status != StatusRunning && !st.completedAt.IsZero() && st.completedAt.Before(cutoff)
		st.mu.Unlock()
		if expired {
			stale = append(stale, st)
			delete(s.streams, id)
		}
	}
	s.mu.Unlock()

	for _, st := range stale {
		_ = os.Remove(s.cachePath(st.sessionID))
	}
}

func (s *Store) cachePath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *Store) persist(st *stream) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return
	}

	st.mu.Lock()
	cf := cacheFile{
		StreamID:         st.streamID,
		SessionID:        st.sessionID,
		Command:          st.command,
		ProjectID:        st.projectID,
		ProjectPath:      st.projectPath,
		Cwd:              st.cwd,
		StartedAt:        st.startedAt,
		Status:           st.status,
		Output:           append([]Entry(nil), st.output...),
		OutputStartIndex: st.startIndex,
		LastUpdated:      st.lastUpdated,
	}
	st.mu.Unlock()

	data, err := json.Marshal(cf)
	if err != nil {
		return
	}

	path := s.cachePath(st.sessionID)
	tmp, err := os.CreateTemp(s.dir, "termstream-*.tmp")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	tmp.Close()
	_ = os.Rename(tmpPath, path)
}

func (s *Store) readCacheFile(sessionID string) (*cacheFile, error) {
	data, err := os.ReadFile(s.cachePath(sessionID))
	if err != nil {
		return nil, err
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}
