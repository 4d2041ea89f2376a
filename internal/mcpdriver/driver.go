// Package mcpdriver implements lab.Application on top of an automation
// bridge that exposes the desktop application's UI as MCP tools.
package mcpdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"labrunner/internal/lab"
	"labrunner/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	clientName          = "labrunner"
	defaultInitTimeout  = 30 * time.Second
	defaultCallTimeout  = 30 * time.Second
	defaultLoadInterval = 250 * time.Millisecond
	notFoundPrefix      = "not found: "
)

// Client is the part of an MCP client the driver needs. *client.Client
// satisfies it for every transport.
type Client interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Driver drives one application instance through its automation bridge.
type Driver struct {
	client       Client
	loadInterval time.Duration
	callTimeout  time.Duration
	version      string
}

// Option configures a Driver.
type Option func(*Driver)

// WithLoadInterval sets how often a loading view is re-checked.
func WithLoadInterval(interval time.Duration) Option {
	return func(d *Driver) { d.loadInterval = interval }
}

// WithCallTimeout bounds a single tool call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.callTimeout = timeout }
}

// WithClientVersion sets the version reported during initialization.
func WithClientVersion(v string) Option {
	return func(d *Driver) { d.version = v }
}

// Connect dials the bridge at endpoint over streamable HTTP.
func Connect(ctx context.Context, endpoint string, opts ...Option) (*Driver, error) {
	logging.Debug("Driver", "Connecting to automation bridge at %s", endpoint)

	httpClient, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}
	return New(ctx, httpClient, opts...)
}

// New starts c and performs the MCP handshake.
func New(ctx context.Context, c Client, opts ...Option) (*Driver, error) {
	d := &Driver{
		client:       c,
		loadInterval: defaultLoadInterval,
		callTimeout:  defaultCallTimeout,
		version:      "dev",
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: d.version}

	initCtx, cancel := context.WithTimeout(ctx, defaultInitTimeout)
	defer cancel()

	result, err := c.Initialize(initCtx, initRequest)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}
	logging.Info("Driver", "Connected to %s %s", result.ServerInfo.Name, result.ServerInfo.Version)
	return d, nil
}

// call invokes tool and returns the concatenated text content. A result
// flagged as error becomes a Go error; "not found:" errors are mapped to
// *lab.NotFoundError.
func (d *Driver) call(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	if len(args) > 0 {
		request.Params.Arguments = args
	}

	logging.Debug("Driver", "Calling %s %v", tool, args)
	result, err := d.client.CallTool(callCtx, request)
	if err != nil {
		return "", fmt.Errorf("tool call %s failed: %w", tool, err)
	}

	text := resultText(result)
	if result.IsError {
		return "", toolError(tool, text)
	}
	return text, nil
}

func (d *Driver) callBool(ctx context.Context, tool string, args map[string]interface{}) (bool, error) {
	text, err := d.call(ctx, tool, args)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(strings.TrimSpace(text))
	if err != nil {
		return false, fmt.Errorf("tool %s returned non-boolean %q", tool, text)
	}
	return v, nil
}

func (d *Driver) callJSON(ctx context.Context, tool string, args map[string]interface{}, out interface{}) error {
	text, err := d.call(ctx, tool, args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", tool, err)
	}
	return nil
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toolError turns an error result into a Go error. The bridge reports
// missing elements as `not found: <kind> "<name>"`.
func toolError(tool, text string) error {
	if rest, ok := strings.CutPrefix(text, notFoundPrefix); ok {
		if i := strings.LastIndex(rest, ` "`); i > 0 {
			if name, err := strconv.Unquote(rest[i+1:]); err == nil {
				return &lab.NotFoundError{Kind: rest[:i], Name: name}
			}
		}
		return &lab.NotFoundError{Kind: "element", Name: rest}
	}
	return fmt.Errorf("%s: %s", tool, text)
}

// waitLoaded polls ToolWaitForLoad until the view reports loaded or ctx ends.
func (d *Driver) waitLoaded(ctx context.Context, view, ref string) error {
	var lastErr error
	err := wait.PollUntilContextCancel(ctx, d.loadInterval, true, func(ctx context.Context) (bool, error) {
		state, err := d.call(ctx, ToolWaitForLoad, viewArgs(view, ref))
		if err != nil {
			if lab.IsNotFound(err) {
				return false, err
			}
			lastErr = err
			return false, nil
		}
		return strings.TrimSpace(state) == StateLoaded, nil
	})
	if err == nil {
		return nil
	}
	if lab.IsNotFound(err) {
		return err
	}
	if lastErr != nil {
		return fmt.Errorf("view %s did not load: %w", view, lastErr)
	}
	return fmt.Errorf("view %s did not load: %w", view, err)
}

func (d *Driver) open(ctx context.Context, view, ref string) (*page, error) {
	if _, err := d.call(ctx, ToolOpenView, viewArgs(view, ref)); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", view, err)
	}
	return &page{d: d, view: view, ref: ref}, nil
}

func viewArgs(view, ref string) map[string]interface{} {
	args := map[string]interface{}{"view": view}
	if ref != "" {
		args["ref"] = ref
	}
	return args
}

// ResizeViewport implements lab.Application.
func (d *Driver) ResizeViewport(ctx context.Context, width, height int) error {
	_, err := d.call(ctx, ToolResizeViewport, map[string]interface{}{"width": width, "height": height})
	return err
}

// RuntimeRunning implements lab.Application.
func (d *Driver) RuntimeRunning(ctx context.Context) (bool, error) {
	return d.callBool(ctx, ToolRuntimeRunning, nil)
}

// AttachWebview implements lab.Application.
func (d *Driver) AttachWebview(ctx context.Context) error {
	_, err := d.call(ctx, ToolAttachWebview, nil)
	return err
}

// OpenDashboard implements lab.Application.
func (d *Driver) OpenDashboard(ctx context.Context) (lab.Page, error) {
	p, err := d.open(ctx, ViewDashboard, "")
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OpenExtensions implements lab.Application.
func (d *Driver) OpenExtensions(ctx context.Context) (lab.ExtensionsPage, error) {
	p, err := d.open(ctx, ViewExtensions, "")
	if err != nil {
		return nil, err
	}
	return &extensionsPage{page: p}, nil
}

// OpenCatalog implements lab.Application.
func (d *Driver) OpenCatalog(ctx context.Context) (lab.CatalogPage, error) {
	p, err := d.open(ctx, ViewCatalog, "")
	if err != nil {
		return nil, err
	}
	return &catalogPage{page: p}, nil
}

// OpenRecipesCatalog implements lab.Application.
func (d *Driver) OpenRecipesCatalog(ctx context.Context) (lab.RecipesCatalogPage, error) {
	p, err := d.open(ctx, ViewRecipes, "")
	if err != nil {
		return nil, err
	}
	return &recipesCatalogPage{page: p}, nil
}

// OpenRunningApps implements lab.Application.
func (d *Driver) OpenRunningApps(ctx context.Context) (lab.RunningAppsPage, error) {
	p, err := d.open(ctx, ViewRunningApps, "")
	if err != nil {
		return nil, err
	}
	return &runningAppsPage{page: p}, nil
}

// OpenServices implements lab.Application.
func (d *Driver) OpenServices(ctx context.Context) (lab.ServicesPage, error) {
	p, err := d.open(ctx, ViewServices, "")
	if err != nil {
		return nil, err
	}
	return &servicesPage{page: p}, nil
}

// Close implements lab.Application.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ lab.Application = (*Driver)(nil)
