// Package mcp serves the RAM engine as Model Context Protocol tools, one
// JSON-RPC message per line on stdio or one per websocket text frame.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"nesram/engine"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "nesram"
	ServerVersion = "0.2.0"
)

// Server owns the protocol server and the tool registry. It holds no state
// of its own; every tool goes through the engine's lock.
type Server struct {
	engine *engine.Engine
	mcp    *server.MCPServer
	tools  map[string]Tool
	order  []string

	log *logger.Logger
}

func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		engine: eng,
		mcp: server.NewMCPServer(ServerName, ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		tools: make(map[string]Tool),
		log:   logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "mcp")),
	}
	for _, tool := range defaultTools(eng) {
		s.Register(tool)
	}
	return s
}

// MCPServer exposes the underlying protocol server, e.g. for other
// transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Register adds a tool, replacing one with the same name.
func (s *Server) Register(tool Tool) {
	if _, ok := s.tools[tool.Name]; !ok {
		s.order = append(s.order, tool.Name)
	}
	s.tools[tool.Name] = tool
	s.mcp.AddTool(tool.definition(), s.handler(tool))
}

// Tools returns the registered tools in registration order.
func (s *Server) Tools() []Tool {
	tools := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		tools = append(tools, s.tools[name])
	}
	return tools
}

// HandleMessage processes one raw message and returns the encoded response,
// or nil when there is nothing to send back.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	msg := s.mcp.HandleMessage(ctx, raw)
	if msg == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn("encoding response: ", err)
		return nil
	}
	return data
}

// ToolError is the body of a failed tool call. Tool failures are results
// with isError set, not JSON-RPC errors.
type ToolError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handler adapts a Tool to the protocol server. A panicking tool becomes an
// InternalError result and the server keeps going.
func (s *Server) handler(tool Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (res *gomcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Warn(tool.Name, " panicked: ", r)
				res, err = toolResult(ToolError{Error: engine.KindInternal, Message: fmt.Sprint("panic: ", r)}, true)
			}
		}()

		raw, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return toolResult(ToolError{Error: KindInvalidArgument, Message: err.Error()}, true)
		}

		s.log.Debugln("tool", tool.Name)
		value, err := tool.Handler(ctx, raw)
		if err != nil {
			kind := ErrorKind(err)
			s.log.Warn(tool.Name, ": ", kind, ": ", err)
			return toolResult(ToolError{Error: kind, Message: err.Error()}, true)
		}
		return toolResult(value, false)
	}
}

func toolResult(value any, isError bool) (*gomcp.CallToolResult, error) {
	text, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	if isError {
		return gomcp.NewToolResultError(string(text)), nil
	}
	return gomcp.NewToolResultText(string(text)), nil
}
