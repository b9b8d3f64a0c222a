// Package mcp serves translation tools and service status to MCP clients
// over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kappaborg/Simultane-Translate/pkg/logger"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/kappaborg/Simultane-Translate/pkg/session"
	"github.com/kappaborg/Simultane-Translate/pkg/splitter"
	"go.uber.org/zap"
)

// Translator translates text of any length.
type Translator interface {
	TranslateLarge(ctx context.Context, text, src, dst string) (splitter.Result, error)
}

// Detector recognizes the language of a text.
type Detector interface {
	Detect(ctx context.Context, text string) (models.Detection, error)
}

// LimitStatuser reports the rate-limit state.
type LimitStatuser interface {
	Status(ctx context.Context) models.LimitStatus
}

// KeyLister reports the state of one provider's key pool.
type KeyLister interface {
	Provider() string
	Statuses(ctx context.Context) []models.KeyStatus
}

// CacheStatter provides cache statistics.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// SessionReader reads stored sessions.
type SessionReader interface {
	List(ctx context.Context, opts session.ListOptions) ([]models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
}

// UsageSummarizer aggregates remote call usage.
type UsageSummarizer interface {
	Summary(ctx context.Context) ([]models.UsageSummary, error)
}

// BudgetStatuser reports usage against budget policies.
type BudgetStatuser interface {
	Status(ctx context.Context) ([]models.BudgetStatus, error)
}

// Deps are the components the tools read from. Nil fields disable the
// matching tools, which then answer with an explanation.
type Deps struct {
	Translator   Translator
	Detector     Detector
	Limits       LimitStatuser
	Keys         []KeyLister
	Cache        CacheStatter
	Sessions     SessionReader
	Usage        UsageSummarizer
	Budget       BudgetStatuser
	HistoryLimit int
}

// Server is a minimal MCP server speaking line-delimited JSON-RPC 2.0.
type Server struct {
	deps    Deps
	version string
	log     *zap.Logger
}

// New creates a Server.
func New(deps Deps, version string, log *zap.Logger) *Server {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 10
	}
	return &Server{deps: deps, version: version, log: logger.OrNop(log).Named("mcp")}
}

// Run reads requests from r line by line and writes responses to w until
// r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "simultane", Version: s.version},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, struct{}{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: toolDefinitions})
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.log.Debug("tool call", zap.String("tool", params.Name))
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}
