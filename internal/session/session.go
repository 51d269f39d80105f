// Package session manages user sessions for certificate generation.
//
// Types:
//   - Session: Tracks the uploaded template, data and signature, the loaded
//     table, the analysis result and the generated archive.
//   - SessionManager: Manages all active sessions.
//
// Expected outputs:
// - Session IDs are unique (UUID)
// - Replacing an upload removes the previous file
// - Cleanup removes all files for a session
//
// Used by API handlers to manage user state.
package session

import (
	"os"
	"sync"
	"time"

	"go-certgen/internal/dataset"
	"go-certgen/internal/placeholder"
	"go-certgen/internal/utils"
)

const (
	StatusIdle       = "idle"
	StatusGenerating = "generating"
	StatusDone       = "done"
)

type Session struct {
	ID            string
	TemplateFile  string
	DataFile      string
	SignatureFile string
	OutputFile    string
	Table         *dataset.Table
	Analysis      *placeholder.Result
	CreatedAt     time.Time
	Status        string
	Mutex         sync.Mutex
}

type SessionManager struct {
	Sessions map[string]*Session
	Mutex    sync.RWMutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		Sessions: make(map[string]*Session),
	}
}

func (sm *SessionManager) CreateSession() *Session {
	sm.Mutex.Lock()
	defer sm.Mutex.Unlock()

	session := &Session{
		ID:        utils.GenerateUUID(),
		CreatedAt: time.Now(),
		Status:    StatusIdle,
	}
	sm.Sessions[session.ID] = session
	return session
}

func (sm *SessionManager) GetSession(id string) (*Session, bool) {
	sm.Mutex.RLock()
	defer sm.Mutex.RUnlock()
	session, exists := sm.Sessions[id]
	return session, exists
}

func (sm *SessionManager) DeleteSession(id string) {
	sm.Mutex.Lock()
	defer sm.Mutex.Unlock()
	delete(sm.Sessions, id)
}

// Expire cleans up and removes sessions older than ttl. It returns how many
// were removed.
func (sm *SessionManager) Expire(ttl time.Duration) int {
	sm.Mutex.Lock()
	defer sm.Mutex.Unlock()
	n := 0
	for id, session := range sm.Sessions {
		if time.Since(session.CreatedAt) > ttl {
			session.Cleanup()
			delete(sm.Sessions, id)
			n++
		}
	}
	return n
}

// CleanupAll removes every session and its files.
func (sm *SessionManager) CleanupAll() {
	sm.Mutex.Lock()
	defer sm.Mutex.Unlock()
	for id, session := range sm.Sessions {
		session.Cleanup()
		delete(sm.Sessions, id)
	}
}

// SetTemplate records a new template. The previous template file and any
// analysis or archive derived from it are discarded.
func (s *Session) SetTemplate(path string) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	replace(&s.TemplateFile, path)
	s.Analysis = nil
	s.resetOutput()
}

func (s *Session) SetData(path string, table *dataset.Table) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	replace(&s.DataFile, path)
	s.Table = table
	s.resetOutput()
}

func (s *Session) SetSignature(path string) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	replace(&s.SignatureFile, path)
	s.resetOutput()
}

func (s *Session) SetAnalysis(res *placeholder.Result) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.Analysis = res
}

// Inputs returns the current upload paths and table.
func (s *Session) Inputs() (template, signature string, table *dataset.Table) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	return s.TemplateFile, s.SignatureFile, s.Table
}

func (s *Session) resetOutput() {
	replace(&s.OutputFile, "")
	s.Status = StatusIdle
}

func (s *Session) Cleanup() {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	for _, file := range []string{s.TemplateFile, s.DataFile, s.SignatureFile, s.OutputFile} {
		if file != "" {
			os.Remove(file)
		}
	}
	s.TemplateFile, s.DataFile, s.SignatureFile, s.OutputFile = "", "", "", ""
}

func replace(field *string, path string) {
	if *field != "" && *field != path {
		os.Remove(*field)
	}
	*field = path
}
