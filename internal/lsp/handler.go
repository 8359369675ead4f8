package lsp

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/semantic"
)

// VamcHandler implements the LSP server handlers for Verilog-A buffers,
// publishing parse and validation diagnostics on open and change.
type VamcHandler struct {
	mu      sync.RWMutex
	content map[string]string
}

// NewVamcHandler creates and returns a new handler instance
func NewVamcHandler() *VamcHandler {
	return &VamcHandler{
		content: make(map[string]string),
	}
}

// Initialize responds to the LSP client's initialize request and advertises
// the server's capabilities
func (h *VamcHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Println("LSP Initialize called")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
		},
	}, nil
}

// Initialized is called after the client completes initialization
func (h *VamcHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Println("vamc LSP Initialized")
	return nil
}

// Shutdown handles the LSP shutdown request
func (h *VamcHandler) Shutdown(ctx *glsp.Context) error {
	log.Println("vamc LSP Shutdown")
	return nil
}

// SetTrace accepts trace configuration from the client
func (h *VamcHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// TextDocumentDidOpen handles file open notifications from the editor
func (h *VamcHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Printf("Opened file: %s\n", params.TextDocument.URI)
	return h.publish(ctx, params.TextDocument.URI)
}

// TextDocumentDidClose handles file close notifications from the editor
func (h *VamcHandler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", params.TextDocument.URI, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.content, path)
	return nil
}

// TextDocumentDidChange handles file change notifications from the editor
func (h *VamcHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	return h.publish(ctx, params.TextDocument.URI)
}

// publish re-analyzes the file behind the URI and sends its diagnostics.
func (h *VamcHandler) publish(ctx *glsp.Context, rawURI protocol.DocumentUri) error {
	path, err := uriToPath(rawURI)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", rawURI, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	h.mu.Lock()
	h.content[path] = string(content)
	h.mu.Unlock()

	file, parseDiags := grammar.ParseSource(path, string(content))
	diags := parseDiags
	if file != nil {
		analyzer := semantic.NewAnalyzer()
		_, semDiags := analyzer.Analyze(file)
		diags = append(diags, semDiags...)
	}

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         rawURI,
		Diagnostics: convertDiagnostics(diags),
	})
	return nil
}

func convertDiagnostics(diags []errors.CompilerError) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		line := uint32(0)
		if d.Position.Line > 0 {
			line = uint32(d.Position.Line - 1)
		}
		col := uint32(0)
		if d.Position.Column > 0 {
			col = uint32(d.Position.Column - 1)
		}
		length := uint32(d.Length)
		if length == 0 {
			length = 1
		}
		severity := protocol.DiagnosticSeverityError
		if errors.IsWarning(d.Code) {
			severity = protocol.DiagnosticSeverityWarning
		}
		source := "vamc"
		message := d.Message
		if d.Code != "" {
			message = "[" + d.Code + "] " + message
		}
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: col},
				End:   protocol.Position{Line: line, Character: col + length},
			},
			Severity: &severity,
			Source:   &source,
			Message:  message,
		})
	}
	return out
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path

	// On Windows, remove leading slash (e.g., /C:/...) -> C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	return filepath.FromSlash(path), nil
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
