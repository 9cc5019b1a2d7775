package session

import (
	"context"

	"github.com/GriffinCanCode/copper/internal/shared/id"
)

// Process is a launched browser owned by exactly one session
type Process interface {
	PID() int
	Port() int
	Kill() error
}

// Launcher starts browser processes
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Process, error)
}

// MetadataFetcher reads a browser's self-reported DevTools metadata
type MetadataFetcher interface {
	Fetch(ctx context.Context, port int) (Metadata, error)
}

// AutomationHandle is an attached control-protocol client
type AutomationHandle interface {
	Close() error
}

// Attacher connects an automation client to a debug address
type Attacher interface {
	Attach(ctx context.Context, debugURL string) (AutomationHandle, error)
}

// AssetResolver turns base64 extension payloads into unpacked directories
type AssetResolver interface {
	ResolveAll(ctx context.Context, encoded []string) ([]string, error)
}

// LaunchOptions describes how to start a browser
type LaunchOptions struct {
	ChromePath         string   `json:"chromePath,omitempty"`
	ChromeFlags        []string `json:"chromeFlags,omitempty"`
	Headless           *bool    `json:"headless,omitempty"`
	IgnoreDefaultFlags bool     `json:"ignoreDefaultFlags,omitempty"`
	UserDataDir        string   `json:"userDataDir,omitempty"`
	Port               int      `json:"port,omitempty"`
	StartingURL        string   `json:"startingUrl,omitempty"`

	// Extensions holds unpacked extension directories in request order
	Extensions []string `json:"-"`
}

// ChromeCapability is the chrome-specific part of a capability set
type ChromeCapability struct {
	Args       []string `json:"args,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

// Capabilities is one WebDriver capability set
type Capabilities struct {
	BrowserName       string            `json:"browserName,omitempty"`
	GoogChromeOptions *ChromeCapability `json:"goog:chromeOptions,omitempty"`
	ChromeOptions     *ChromeCapability `json:"chromeOptions,omitempty"`
}

// Chrome returns the vendor-prefixed chrome options, falling back to the
// legacy key
func (c Capabilities) Chrome() *ChromeCapability {
	if c.GoogChromeOptions != nil {
		return c.GoogChromeOptions
	}
	return c.ChromeOptions
}

// W3CCapabilities is the W3C capability negotiation structure
type W3CCapabilities struct {
	AlwaysMatch *Capabilities  `json:"alwaysMatch,omitempty"`
	FirstMatch  []Capabilities `json:"firstMatch,omitempty"`
}

// CreateRequest is the body of a new session request
type CreateRequest struct {
	ChromeOptions       *LaunchOptions   `json:"chromeOptions,omitempty"`
	DesiredCapabilities *Capabilities    `json:"desiredCapabilities,omitempty"`
	Capabilities        *W3CCapabilities `json:"capabilities,omitempty"`
}

// Info is the protocol metadata a browser reports about itself
type Info struct {
	Browser         string `json:"Browser"`
	ProtocolVersion string `json:"Protocol-Version"`
	UserAgent       string `json:"User-Agent"`
	V8Version       string `json:"V8-Version"`
	WebKitVersion   string `json:"WebKit-Version"`
}

// Metadata is the full /json/version document
type Metadata struct {
	Info
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Serialized is the public projection of a session. It never carries the
// debug address.
type Serialized struct {
	Info
	ID   id.SessionID `json:"id"`
	Port int          `json:"port"`
	PID  int          `json:"pid"`
}

type entry struct {
	id         id.SessionID
	process    Process
	debugURL   string
	info       Info
	automation AutomationHandle
	seq        uint64
}

func (e *entry) serialize() Serialized {
	return Serialized{
		Info: e.info,
		ID:   e.id,
		Port: e.process.Port(),
		PID:  e.process.PID(),
	}
}
