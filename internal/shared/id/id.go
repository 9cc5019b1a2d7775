// Package id provides identifier generation for sessions, extracted assets and
// traced requests.
//
// Session ids are upper-cased UUIDs. Clients echo them back in URLs with
// arbitrary casing, so lookups go through NormalizeSessionID. Request and span
// ids are prefixed ULIDs, which sort by creation time in logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SessionID identifies a live browser session
type SessionID string

// RequestID identifies a traced HTTP request or span
type RequestID string

const (
	RequestPrefix = "req"
	SpanPrefix    = "span"
)

// NewSessionID generates a fresh, case-normalized session id.
func NewSessionID() SessionID {
	return SessionID(strings.ToUpper(uuid.New().String()))
}

// NormalizeSessionID maps any casing of a session id onto its stored form.
func NormalizeSessionID(raw string) SessionID {
	return SessionID(strings.ToUpper(strings.TrimSpace(raw)))
}

// NewDirName returns a unique directory name for extracted content.
func NewDirName() string {
	return strings.ToUpper(uuid.New().String())
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRequestID generates a new request id
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSpanID generates a new span id
func NewSpanID() RequestID {
	return RequestID(Default().GenerateWithPrefix(SpanPrefix))
}
