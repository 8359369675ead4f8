package main

import (
	"log"
	"os"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"vamc/internal/lsp"
)

const lsName = "vamc" // Name identifier for the language server

var handler protocol.Handler

func main() {
	// Configure debug logging (1 = debug level, nil = default logger)
	commonlog.Configure(1, nil)

	vamcHandler := lsp.NewVamcHandler()

	handler = protocol.Handler{
		Initialize:            vamcHandler.Initialize,
		Initialized:           vamcHandler.Initialized,
		Shutdown:              vamcHandler.Shutdown,
		SetTrace:              vamcHandler.SetTrace,
		TextDocumentDidOpen:   vamcHandler.TextDocumentDidOpen,
		TextDocumentDidClose:  vamcHandler.TextDocumentDidClose,
		TextDocumentDidChange: vamcHandler.TextDocumentDidChange,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Println("Starting vamc LSP server...")

	err := s.RunStdio()
	if err != nil {
		log.Println("Error starting vamc LSP server:", err)
		os.Exit(1)
	}
}
