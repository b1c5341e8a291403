package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
)

// ServeStdio reads one JSON-RPC message per line from r and writes each
// response as one line to w. It returns when r is exhausted or ctx ends.
// Nothing else may write to w.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	s.log.Infoln("serving on stdio")
	if err := server.NewStdioServer(s.mcp).Listen(ctx, r, w); err != nil {
		return err
	}
	s.log.Infoln("stdin closed")
	return nil
}
