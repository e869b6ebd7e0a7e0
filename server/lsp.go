// Package server implements a language server for horn source files.
//
// The server reads documents with the engine's reader and checks their
// calls against the predicates of a booted registry. It never runs code.
package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "horn-lsp"

var log = commonlog.GetLogger("horn.lsp")

// LspServer answers editor requests for the open documents.
type LspServer struct {
	reg *vm.Registry

	mu   sync.Mutex
	docs map[protocol.DocumentUri]*document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a server that resolves calls against reg. reg should
// belong to a machine so the builtins are registered.
func NewLSP(reg *vm.Registry) *LspServer {
	s := &LspServer{
		reg:     reg,
		docs:    make(map[protocol.DocumentUri]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// Run serves on stdio until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- lifecycle ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("initializing %s %s", lspName, s.version)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true
	capabilities.DocumentSymbolProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// full sync: the last event carries the whole text
	if n := len(params.ContentChanges); n > 0 {
		if whole, ok := params.ContentChanges[n-1].(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	doc := analyze(text)
	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: s.diagnostics(doc),
	})
}

func (s *LspServer) document(uri protocol.DocumentUri) *document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[uri]
}

// --- language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(doc, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(doc, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	word := s.wordAt(uri, params.Position)
	if word == "" {
		return nil, nil
	}
	locs := s.definition(uri, word)
	if len(locs) == 0 {
		return nil, nil
	}
	return locs, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	word := s.wordAt(params.TextDocument.URI, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.references(word), nil
}

func (s *LspServer) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	doc := s.document(params.TextDocument.URI)
	if doc == nil {
		return nil, nil
	}
	return symbols(doc), nil
}

func (s *LspServer) wordAt(uri protocol.DocumentUri, pos protocol.Position) string {
	doc := s.document(uri)
	if doc == nil {
		return ""
	}
	return extractWord(doc.text, pos)
}

// known reports whether the registry defines pi, as a builtin or as code
// loaded before the server started.
func (s *LspServer) known(pi indicator) bool {
	f := s.reg.Functor(s.reg.Atom(pi.name), pi.arity)
	p := s.reg.Lookup(s.reg.User(), f)
	return p != nil && p.IsDefined()
}

// builtins returns the visible system predicates, hiding internal ones.
func (s *LspServer) builtins() []*vm.Predicate {
	var out []*vm.Predicate
	for _, p := range s.reg.Predicates(s.reg.System()) {
		if p.IsDefined() && !strings.HasPrefix(s.reg.AtomName(p.Name), "$") {
			out = append(out, p)
		}
	}
	return out
}

func (s *LspServer) complete(doc *document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(name, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(name, prefix) || seen[name+detail] {
			return
		}
		seen[name+detail] = true
		insert := term.QuoteAtom(term.Atom(name))
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &insert,
		})
	}

	for _, pi := range doc.heads() {
		add(pi.name, pi.String(), protocol.CompletionItemKindFunction)
	}
	for _, p := range s.builtins() {
		add(s.reg.AtomName(p.Name), s.reg.Indicator(p), protocol.CompletionItemKindKeyword)
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func (s *LspServer) hover(doc *document, word string) *protocol.Hover {
	var b strings.Builder
	for _, pi := range doc.heads() {
		if pi.name != word {
			continue
		}
		n := 0
		for _, c := range doc.clauses {
			if !c.directive && c.head == pi {
				n++
			}
		}
		kind := "static"
		if doc.declared[pi] {
			kind = "dynamic"
		}
		fmt.Fprintf(&b, "**%s**: %s, %d clause(s)\n\n", pi, kind, n)
	}
	for _, p := range s.builtins() {
		if s.reg.AtomName(p.Name) != word {
			continue
		}
		kind := "builtin"
		switch {
		case p.Flags()&vm.PredLibrary != 0:
			kind = "library predicate"
		case p.IsForeign():
			kind = "builtin, implemented in Go"
		}
		fmt.Fprintf(&b, "**%s**: %s\n\n", s.reg.Indicator(p), kind)
	}
	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: strings.TrimSuffix(b.String(), "\n\n"),
		},
	}
}

// definition finds the clauses for word, first in uri, then in the other
// open documents.
func (s *LspServer) definition(uri protocol.DocumentUri, word string) []protocol.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	var locs []protocol.Location
	for _, u := range s.uris(uri) {
		for _, c := range s.docs[u].clauses {
			if !c.directive && c.head.name == word {
				locs = append(locs, location(u, c))
			}
		}
	}
	return locs
}

// references finds the clauses and directives whose bodies call word.
func (s *LspServer) references(word string) []protocol.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	var locs []protocol.Location
	for _, u := range s.uris("") {
		for _, c := range s.docs[u].clauses {
			for _, call := range c.calls {
				if call.name == word {
					locs = append(locs, location(u, c))
					break
				}
			}
		}
	}
	return locs
}

// uris lists the open documents, first before the rest in sorted order.
// The caller holds s.mu.
func (s *LspServer) uris(first protocol.DocumentUri) []protocol.DocumentUri {
	var out []protocol.DocumentUri
	if _, ok := s.docs[first]; ok {
		out = append(out, first)
	}
	var rest []protocol.DocumentUri
	for u := range s.docs {
		if u != first {
			rest = append(rest, u)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

func symbols(doc *document) []protocol.DocumentSymbol {
	var out []protocol.DocumentSymbol
	for _, pi := range doc.heads() {
		for _, c := range doc.clauses {
			if c.directive || c.head != pi {
				continue
			}
			r := clauseRange(c)
			out = append(out, protocol.DocumentSymbol{
				Name:           pi.String(),
				Kind:           protocol.SymbolKindFunction,
				Range:          r,
				SelectionRange: r,
			})
			break
		}
	}
	return out
}

// --- diagnostics ---

func (s *LspServer) diagnostics(doc *document) []protocol.Diagnostic {
	source := lspName
	diags := []protocol.Diagnostic{}
	for _, e := range doc.errors {
		severity := protocol.DiagnosticSeverityError
		pos := protocol.Position{Line: protocol.UInteger(e.Pos.Line - 1), Character: protocol.UInteger(e.Pos.Column - 1)}
		diags = append(diags, protocol.Diagnostic{
			Range:    protocol.Range{Start: pos, End: pos},
			Severity: &severity,
			Source:   &source,
			Message:  "syntax error: " + e.Msg,
		})
	}
	for _, c := range doc.clauses {
		reported := make(map[indicator]bool)
		for _, call := range c.calls {
			if reported[call] || doc.defines(call) || s.known(call) {
				continue
			}
			reported[call] = true
			severity := protocol.DiagnosticSeverityWarning
			diags = append(diags, protocol.Diagnostic{
				Range:    clauseRange(c),
				Severity: &severity,
				Source:   &source,
				Message:  fmt.Sprintf("unknown procedure %s", call),
			})
		}
	}
	return diags
}

func location(uri protocol.DocumentUri, c clauseInfo) protocol.Location {
	return protocol.Location{URI: uri, Range: clauseRange(c)}
}

func clauseRange(c clauseInfo) protocol.Range {
	pos := protocol.Position{Line: protocol.UInteger(c.start.Line - 1), Character: protocol.UInteger(c.start.Column - 1)}
	return protocol.Range{Start: pos, End: pos}
}

// --- text helpers ---

func isIdent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// cursorLine returns the runes of the cursor's line and the clamped column.
func cursorLine(text string, pos protocol.Position) ([]rune, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil, 0, false
	}
	line := []rune(strings.TrimSuffix(lines[pos.Line], "\r"))
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the atom fragment before the cursor. Variables
// do not complete.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdent(line[start-1]) {
		start--
	}
	if start == col || !unicode.IsLower(line[start]) {
		return ""
	}
	return string(line[start:col])
}

// extractWord returns the atom under the cursor, or "" for a variable.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdent(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdent(line[end]) {
		end++
	}
	if start == end || !unicode.IsLower(line[start]) {
		return ""
	}
	return string(line[start:end])
}

func boolPtr(b bool) *bool {
	return &b
}
