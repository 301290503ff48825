// Package mcp serves concordance queries over the Model Context
// Protocol, so agent tooling can interrogate a results file without
// shelling out to the CLI.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"concord/internal/benchmark"
	"concord/internal/concordance"
	"concord/internal/resultstore"
)

// Server wraps the MCP SDK server around one results file. The file is
// re-read on demand via the reload tool, so a server can watch a run
// that is still appending.
type Server struct {
	MCPServer *sdkmcp.Server

	path string

	mu      sync.Mutex
	records []resultstore.Record
	tools   []string
	tables  map[string]*concordance.Table
}

// NewServer loads the results file and registers the query tools.
func NewServer(resultsPath string, version string) (*Server, error) {
	s := &Server{path: resultsPath}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "concord", Version: version},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_summary",
		Description: "Get the run outcome breakdown: attempted, ok, error counts by category.",
	}, s.handleGetSummary)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_categories",
		Description: "List every category id any tool found, with the configured tool names.",
	}, s.handleListCategories)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_concordance",
		Description: "Get the full concordance table for one category: multi-way buckets and all pairwise kappas.",
	}, s.handleGetConcordance)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_kappa",
		Description: "Get Cohen's kappa and the 2x2 contingency table for one tool pair on one category.",
	}, s.handleGetKappa)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "reload",
		Description: "Re-read the results file and recompute all tables.",
	}, s.handleReload)
}

// load re-reads the results file and recomputes the tables. The tool
// list is the union of tool names seen in the records, sorted.
func (s *Server) load() error {
	records, err := resultstore.ReadFile(s.path)
	if err != nil {
		return err
	}
	toolSet := make(map[string]struct{})
	for _, r := range records {
		for name := range r.Tools {
			toolSet[name] = struct{}{}
		}
	}
	tools := make([]string, 0, len(toolSet))
	for name := range toolSet {
		tools = append(tools, name)
	}
	sort.Strings(tools)

	s.mu.Lock()
	s.records = records
	s.tools = tools
	s.tables = concordance.Compute(records, tools)
	s.mu.Unlock()
	return nil
}

// --- Tool input/output types ---

type getSummaryInput struct{}

type getSummaryOutput struct {
	Attempted    int            `json:"attempted"`
	OK           int            `json:"ok"`
	Errored      int            `json:"errored"`
	SoftTimeouts int            `json:"softTimeouts"`
	HardTimeouts int            `json:"hardTimeouts"`
	NavFailures  int            `json:"navFailures"`
	OtherErrors  int            `json:"otherErrors"`
	ToolFailures map[string]int `json:"toolFailures"`
}

type listCategoriesInput struct{}

type listCategoriesOutput struct {
	Categories []string `json:"categories"`
	Tools      []string `json:"tools"`
}

type getConcordanceInput struct {
	Category string `json:"category" jsonschema:"category id as returned by list_categories"`
}

type getConcordanceOutput struct {
	Table *concordance.Table `json:"table"`
}

type getKappaInput struct {
	Category string `json:"category" jsonschema:"category id"`
	ToolA    string `json:"tool_a" jsonschema:"first tool name"`
	ToolB    string `json:"tool_b" jsonschema:"second tool name"`
}

type getKappaOutput struct {
	Kappa float64                 `json:"kappa"`
	Table concordance.Contingency `json:"table"`
}

type reloadInput struct{}

type reloadOutput struct {
	Records    int `json:"records"`
	Categories int `json:"categories"`
}

// --- Tool handlers ---

func (s *Server) handleGetSummary(_ context.Context, _ *sdkmcp.CallToolRequest, _ getSummaryInput) (*sdkmcp.CallToolResult, getSummaryOutput, error) {
	s.mu.Lock()
	sum := benchmark.Summarize(s.records, s.tools)
	s.mu.Unlock()
	return nil, getSummaryOutput{
		Attempted:    sum.Attempted,
		OK:           sum.OK,
		Errored:      sum.Errored,
		SoftTimeouts: sum.SoftTimeouts,
		HardTimeouts: sum.HardTimeouts,
		NavFailures:  sum.NavFailures,
		OtherErrors:  sum.OtherErrors,
		ToolFailures: sum.ToolFailures,
	}, nil
}

func (s *Server) handleListCategories(_ context.Context, _ *sdkmcp.CallToolRequest, _ listCategoriesInput) (*sdkmcp.CallToolResult, listCategoriesOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, listCategoriesOutput{
		Categories: concordance.Categories(s.tables),
		Tools:      append([]string(nil), s.tools...),
	}, nil
}

func (s *Server) handleGetConcordance(_ context.Context, _ *sdkmcp.CallToolRequest, in getConcordanceInput) (*sdkmcp.CallToolResult, getConcordanceOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[in.Category]
	if !ok {
		return nil, getConcordanceOutput{}, fmt.Errorf("unknown category %q", in.Category)
	}
	return nil, getConcordanceOutput{Table: t}, nil
}

func (s *Server) handleGetKappa(_ context.Context, _ *sdkmcp.CallToolRequest, in getKappaInput) (*sdkmcp.CallToolResult, getKappaOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[in.Category]
	if !ok {
		return nil, getKappaOutput{}, fmt.Errorf("unknown category %q", in.Category)
	}
	for _, p := range t.Pairs {
		if (p.ToolA == in.ToolA && p.ToolB == in.ToolB) ||
			(p.ToolA == in.ToolB && p.ToolB == in.ToolA) {
			return nil, getKappaOutput{Kappa: p.Kappa, Table: p.Table}, nil
		}
	}
	return nil, getKappaOutput{}, fmt.Errorf("no pair %q/%q for category %q", in.ToolA, in.ToolB, in.Category)
}

func (s *Server) handleReload(_ context.Context, _ *sdkmcp.CallToolRequest, _ reloadInput) (*sdkmcp.CallToolResult, reloadOutput, error) {
	if err := s.load(); err != nil {
		return nil, reloadOutput{}, fmt.Errorf("reload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, reloadOutput{Records: len(s.records), Categories: len(s.tables)}, nil
}
