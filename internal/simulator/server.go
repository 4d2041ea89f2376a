package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"labrunner/internal/mcpdriver"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "labrunner-simulator"

// MCPServer exposes the lab as an automation bridge speaking the tool
// vocabulary of package mcpdriver.
func (l *Lab) MCPServer(version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(true))
	s.AddTools(l.tools()...)
	return s
}

func stringArg(name, description string) mcp.ToolOption {
	return mcp.WithString(name, mcp.Required(), mcp.Description(description))
}

func (l *Lab) tools() []server.ServerTool {
	view := mcp.WithString("view", mcp.Required(), mcp.Description("View identifier"))
	ref := mcp.WithString("ref", mcp.Description("Model, service, recipe or deployment shown by the view"))

	return []server.ServerTool{
		{
			Tool: mcp.NewTool(mcpdriver.ToolResizeViewport,
				mcp.WithDescription("Resize the application window"),
				mcp.WithNumber("width", mcp.Required(), mcp.Description("Width in pixels")),
				mcp.WithNumber("height", mcp.Required(), mcp.Description("Height in pixels")),
			),
			Handler: l.handleResizeViewport,
		},
		{
			Tool:    mcp.NewTool(mcpdriver.ToolRuntimeRunning, mcp.WithDescription("Report whether the container runtime is running")),
			Handler: boolHandler(func(mcp.CallToolRequest) (bool, error) { return l.RuntimeRunning(), nil }),
		},
		{
			Tool:    mcp.NewTool(mcpdriver.ToolAttachWebview, mcp.WithDescription("Attach to the AI Lab webview")),
			Handler: okHandler(func(mcp.CallToolRequest) error { return l.AttachWebview() }),
		},
		{
			Tool:    mcp.NewTool(mcpdriver.ToolOpenView, mcp.WithDescription("Navigate to a view"), view, ref),
			Handler: okHandler(func(r mcp.CallToolRequest) error { return l.OpenView(r.GetString("view", ""), r.GetString("ref", "")) }),
		},
		{
			Tool:    mcp.NewTool(mcpdriver.ToolWaitForLoad, mcp.WithDescription("Report whether a view finished loading"), view, ref),
			Handler: l.handleWaitForLoad,
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolExtensionIsInstalled,
				mcp.WithDescription("Report whether an extension is installed"),
				stringArg("label", "Extension label")),
			Handler: boolHandler(func(r mcp.CallToolRequest) (bool, error) {
				label, err := r.RequireString("label")
				return err == nil && l.ExtensionIsInstalled(label), err
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolExtensionInstall,
				mcp.WithDescription("Install an extension from an OCI image"),
				stringArg("image", "OCI image reference")),
			Handler: okHandler(func(r mcp.CallToolRequest) error {
				image, err := r.RequireString("image")
				if err != nil {
					return err
				}
				return l.InstallExtension(image)
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolExtensionStatus,
				mcp.WithDescription("Return an installed extension's status"),
				stringArg("name", "Extension name"),
				stringArg("label", "Extension label")),
			Handler: textHandler(func(r mcp.CallToolRequest) (string, error) {
				return l.ExtensionStatus(r.GetString("name", ""), r.GetString("label", ""))
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolModelIsDownloaded,
				mcp.WithDescription("Report whether a catalog model is downloaded"),
				stringArg("model", "Model name")),
			Handler: boolHandler(func(r mcp.CallToolRequest) (bool, error) {
				model, err := r.RequireString("model")
				if err != nil {
					return false, err
				}
				return l.IsModelDownloaded(model)
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolModelDownload,
				mcp.WithDescription("Start downloading a catalog model"),
				stringArg("model", "Model name")),
			Handler: okHandler(func(r mcp.CallToolRequest) error { return withString(r, "model", l.DownloadModel) }),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolModelDelete,
				mcp.WithDescription("Delete a downloaded model"),
				stringArg("model", "Model name")),
			Handler: okHandler(func(r mcp.CallToolRequest) error { return withString(r, "model", l.DeleteModel) }),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolServiceCreate,
				mcp.WithDescription("Create an inference service for a model"),
				stringArg("model", "Model name")),
			Handler: jsonHandler(func(r mcp.CallToolRequest) (interface{}, error) {
				model, err := r.RequireString("model")
				if err != nil {
					return nil, err
				}
				return l.CreateService(model)
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolServiceDetails,
				mcp.WithDescription("Return the details of an inference service"),
				stringArg("id", "Service identifier")),
			Handler: jsonHandler(func(r mcp.CallToolRequest) (interface{}, error) {
				id, err := r.RequireString("id")
				if err != nil {
					return nil, err
				}
				return l.ServiceDetails(id)
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolServiceDelete,
				mcp.WithDescription("Delete an inference service"),
				stringArg("id", "Service identifier")),
			Handler: l.handleDeleteService,
		},
		{
			Tool:    mcp.NewTool(mcpdriver.ToolServicesHeadingVisible, mcp.WithDescription("Report whether the services list is shown")),
			Handler: boolHandler(func(mcp.CallToolRequest) (bool, error) { return l.ServicesHeadingVisible(), nil }),
		},
		{
			Tool:    mcp.NewTool(mcpdriver.ToolRecipesList, mcp.WithDescription("List catalog recipes")),
			Handler: jsonHandler(func(mcp.CallToolRequest) (interface{}, error) { return l.Recipes(), nil }),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolRecipeOpen,
				mcp.WithDescription("Open a recipe by display name"),
				stringArg("name", "Recipe name")),
			Handler: jsonHandler(func(r mcp.CallToolRequest) (interface{}, error) {
				name, err := r.RequireString("name")
				if err != nil {
					return nil, err
				}
				return l.OpenRecipe(name)
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolRecipeStartDeployment,
				mcp.WithDescription("Start a new deployment of a recipe"),
				stringArg("recipe", "Recipe identifier")),
			Handler: jsonHandler(func(r mcp.CallToolRequest) (interface{}, error) {
				id, err := r.RequireString("recipe")
				if err != nil {
					return nil, err
				}
				return l.StartDeployment(id)
			}),
		},
		{
			Tool:    mcp.NewTool(mcpdriver.ToolAppsList, mcp.WithDescription("List deployed recipe applications")),
			Handler: jsonHandler(func(mcp.CallToolRequest) (interface{}, error) { return l.Applications(), nil }),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolAppExists,
				mcp.WithDescription("Report whether an app is listed"),
				stringArg("name", "Recipe name")),
			Handler: boolHandler(func(r mcp.CallToolRequest) (bool, error) {
				name, err := r.RequireString("name")
				return err == nil && l.AppExists(name), err
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolAppStatus,
				mcp.WithDescription("Return an app's status"),
				stringArg("name", "Recipe name")),
			Handler: textHandler(func(r mcp.CallToolRequest) (string, error) {
				name, err := r.RequireString("name")
				if err != nil {
					return "", err
				}
				return l.AppStatus(name)
			}),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolAppStop,
				mcp.WithDescription("Stop an app"),
				stringArg("name", "Recipe name")),
			Handler: okHandler(func(r mcp.CallToolRequest) error { return withString(r, "name", l.StopApp) }),
		},
		{
			Tool: mcp.NewTool(mcpdriver.ToolAppDelete,
				mcp.WithDescription("Delete an app"),
				stringArg("name", "Recipe name")),
			Handler: okHandler(func(r mcp.CallToolRequest) error { return withString(r, "name", l.DeleteApp) }),
		},
	}
}

func (l *Lab) handleResizeViewport(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	width, werr := intArg(args, "width")
	height, herr := intArg(args, "height")
	if werr != nil || herr != nil {
		return mcp.NewToolResultError("width and height parameters are required"), nil
	}
	if err := l.ResizeViewport(width, height); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (l *Lab) handleWaitForLoad(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := request.RequireString("view")
	if err != nil {
		return mcp.NewToolResultError("view parameter is required"), nil
	}
	loaded, err := l.ViewLoaded(view, request.GetString("ref", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if loaded {
		return mcp.NewToolResultText(mcpdriver.StateLoaded), nil
	}
	return mcp.NewToolResultText(mcpdriver.StateLoading), nil
}

func (l *Lab) handleDeleteService(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	if err := l.DeleteService(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func withString(request mcp.CallToolRequest, key string, fn func(string) error) error {
	v, err := request.RequireString(key)
	if err != nil {
		return err
	}
	return fn(v)
}

func intArg(args map[string]interface{}, key string) (int, error) {
	switch v := args[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("%s parameter is required", key)
	}
}

func textHandler(fn func(mcp.CallToolRequest) (string, error)) server.ToolHandlerFunc {
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := fn(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func okHandler(fn func(mcp.CallToolRequest) error) server.ToolHandlerFunc {
	return textHandler(func(r mcp.CallToolRequest) (string, error) { return "ok", fn(r) })
}

func boolHandler(fn func(mcp.CallToolRequest) (bool, error)) server.ToolHandlerFunc {
	return textHandler(func(r mcp.CallToolRequest) (string, error) {
		v, err := fn(r)
		return strconv.FormatBool(v), err
	})
}

func jsonHandler(fn func(mcp.CallToolRequest) (interface{}, error)) server.ToolHandlerFunc {
	return textHandler(func(r mcp.CallToolRequest) (string, error) {
		v, err := fn(r)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to format result: %w", err)
		}
		return string(data), nil
	})
}
