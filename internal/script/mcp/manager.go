package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"
)

// ServerConfig represents the configuration for an MCP server
type ServerConfig struct {
	// For stdio transport (local process)
	Command string            // Command to execute (e.g., "npx")
	Args    []string          // Command arguments
	Env     map[string]string // Environment variables

	// For HTTP transport (remote server)
	URL     string            // Server URL for remote connections
	Headers map[string]string // HTTP headers for authentication
}

// MCPServer represents a running MCP server instance
type MCPServer struct {
	Name    string
	Config  ServerConfig
	Session *mcp.ClientSession
	Tools   map[string]*mcp.Tool // Available tools from this server

	// toolOrder preserves the order the server advertised its tools in.
	toolOrder []string

	mu sync.RWMutex
}

// Manager manages multiple MCP servers
type Manager struct {
	servers map[string]*MCPServer
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager creates a new MCP manager
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		servers: make(map[string]*MCPServer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RegisterServer registers and starts an MCP server
func (m *Manager) RegisterServer(name string, config ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check if server already exists
	if _, exists := m.servers[name]; exists {
		return fmt.Errorf("MCP server '%s' already registered", name)
	}

	// Validate config
	if name == "" {
		return fmt.Errorf("MCP server must have a name")
	}
	if config.Command == "" && config.URL == "" {
		return fmt.Errorf("MCP server '%s' must specify either command or URL", name)
	}
	if config.Command != "" && config.URL != "" {
		return fmt.Errorf("MCP server '%s' must specify only one of command and URL", name)
	}

	// Create server instance
	server := &MCPServer{
		Name:   name,
		Config: config,
		Tools:  make(map[string]*mcp.Tool),
	}

	// Start the server based on transport type
	if config.Command != "" {
		if err := m.startStdioServer(server); err != nil {
			return fmt.Errorf("failed to start stdio server '%s': %w", name, err)
		}
	} else {
		if err := m.startHTTPServer(server); err != nil {
			return fmt.Errorf("failed to start HTTP server '%s': %w", name, err)
		}
	}

	m.servers[name] = server
	return nil
}

// startStdioServer starts an MCP server using stdio transport
func (m *Manager) startStdioServer(server *MCPServer) error {
	// Create command with arguments
	cmd := exec.Command(server.Config.Command, server.Config.Args...)

	// Set environment variables
	if len(server.Config.Env) > 0 {
		env := make([]string, 0, len(server.Config.Env))
		for k, v := range server.Config.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "gojacp-mcp-client",
		Version: "1.0.0",
	}, nil)

	transport := &mcp.CommandTransport{
		Command: cmd,
	}

	// Connect to the server
	session, err := client.Connect(m.ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	server.Session = session

	return m.captureTools(server)
}

// startHTTPServer connects to an MCP server over streamable HTTP transport
func (m *Manager) startHTTPServer(server *MCPServer) error {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "gojacp-mcp-client",
		Version: "1.0.0",
	}, nil)

	httpClient := &http.Client{}
	if len(server.Config.Headers) > 0 {
		httpClient.Transport = &headerRoundTripper{
			base:    http.DefaultTransport,
			headers: server.Config.Headers,
		}
	}

	transport := &mcp.StreamableClientTransport{
		Endpoint:   server.Config.URL,
		HTTPClient: httpClient,
	}

	// Connect to the server
	session, err := client.Connect(m.ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	server.Session = session

	return m.captureTools(server)
}

// captureTools lists the server's tools and caches them in advertised order
func (m *Manager) captureTools(server *MCPServer) error {
	toolsList, err := server.Session.ListTools(m.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	server.mu.Lock()
	for _, tool := range toolsList.Tools {
		server.Tools[tool.Name] = tool
		server.toolOrder = append(server.toolOrder, tool.Name)
	}
	server.mu.Unlock()

	return nil
}

// headerRoundTripper injects static headers into every outgoing request
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// GetServer returns a server by name
func (m *Manager) GetServer(name string) (*MCPServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	server, exists := m.servers[name]
	if !exists {
		return nil, &ServerNotFoundError{
			Name:        name,
			Suggestions: suggest(name, m.serverNamesLocked()),
		}
	}

	return server, nil
}

// GetTool returns a tool from a specific server
func (m *Manager) GetTool(serverName, toolName string) (*mcp.Tool, error) {
	server, err := m.GetServer(serverName)
	if err != nil {
		return nil, err
	}

	server.mu.RLock()
	defer server.mu.RUnlock()

	tool, exists := server.Tools[toolName]
	if !exists {
		return nil, &ToolNotFoundError{
			Server:      serverName,
			Tool:        toolName,
			Suggestions: suggest(toolName, server.toolOrder),
		}
	}

	return tool, nil
}

// CallTool invokes an MCP tool
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	server, err := m.GetServer(serverName)
	if err != nil {
		return nil, err
	}

	// Verify tool exists
	if _, err := m.GetTool(serverName, toolName); err != nil {
		return nil, err
	}

	// Call the tool
	result, err := server.Session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool '%s' on server '%s': %w", toolName, serverName, err)
	}

	return result, nil
}

// ListServers returns all registered server names
func (m *Manager) ListServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.serverNamesLocked()
}

func (m *Manager) serverNamesLocked() []string {
	return lo.Keys(m.servers)
}

// ListTools returns a server's tools in the order it advertised them
func (m *Manager) ListTools(ctx context.Context, serverName string) ([]string, error) {
	server, err := m.GetServer(serverName)
	if err != nil {
		return nil, err
	}

	server.mu.RLock()
	defer server.mu.RUnlock()

	tools := make([]string, len(server.toolOrder))
	copy(tools, server.toolOrder)
	return tools, nil
}

// Close shuts down all MCP servers
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Cancel context to stop all operations
	m.cancel()

	// Close all server connections
	var errs []error
	for name, server := range m.servers {
		if server.Session != nil {
			if err := server.Session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close server '%s': %w", name, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing MCP servers: %v", errs)
	}

	return nil
}
