package mcpdriver_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"labrunner/internal/config"
	"labrunner/internal/lab"
	"labrunner/internal/mcpdriver"
	"labrunner/internal/simulator"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func fastTimings() simulator.Timings {
	d := 10 * time.Millisecond
	return simulator.Timings{
		RuntimeBoot: d, ExtensionActivation: d, ViewLoad: d, Download: d, ModelDelete: d,
		ServiceStart: d, Deployment: d, AppStart: d, AppStop: d, AppDelete: d,
	}
}

func newDriver(t *testing.T, opts ...simulator.Option) (*mcpdriver.Driver, *simulator.Lab) {
	t.Helper()
	ctx := context.Background()

	l, err := simulator.New(append([]simulator.Option{simulator.WithTimings(fastTimings())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(ctx) })

	c, err := client.NewInProcessClient(l.MCPServer("test"))
	require.NoError(t, err)

	d, err := mcpdriver.New(ctx, c, mcpdriver.WithLoadInterval(tick), mcpdriver.WithClientVersion("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, l
}

func TestBridgeExposesEveryTool(t *testing.T) {
	l, err := simulator.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	c, err := client.NewInProcessClient(l.MCPServer("test"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "test"}
	_, err = c.Initialize(ctx, init)
	require.NoError(t, err)

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}

	assert.ElementsMatch(t, []string{
		mcpdriver.ToolResizeViewport, mcpdriver.ToolRuntimeRunning, mcpdriver.ToolAttachWebview,
		mcpdriver.ToolOpenView, mcpdriver.ToolWaitForLoad,
		mcpdriver.ToolExtensionIsInstalled, mcpdriver.ToolExtensionInstall, mcpdriver.ToolExtensionStatus,
		mcpdriver.ToolModelIsDownloaded, mcpdriver.ToolModelDownload, mcpdriver.ToolModelDelete,
		mcpdriver.ToolServiceCreate, mcpdriver.ToolServiceDetails, mcpdriver.ToolServiceDelete,
		mcpdriver.ToolServicesHeadingVisible,
		mcpdriver.ToolRecipesList, mcpdriver.ToolRecipeOpen, mcpdriver.ToolRecipeStartDeployment,
		mcpdriver.ToolAppsList, mcpdriver.ToolAppExists, mcpdriver.ToolAppStatus, mcpdriver.ToolAppStop, mcpdriver.ToolAppDelete,
	}, names)
}

func TestDriver_SetupFlow(t *testing.T) {
	d, l := newDriver(t)
	ctx := context.Background()

	require.NoError(t, d.ResizeViewport(ctx, 1280, 900))
	w, h := l.Viewport()
	assert.Equal(t, []int{1280, 900}, []int{w, h})

	dashboard, err := d.OpenDashboard(ctx)
	require.NoError(t, err)
	require.NoError(t, dashboard.WaitForLoad(ctx))

	require.Eventually(t, func() bool {
		running, err := d.RuntimeRunning(ctx)
		return err == nil && running
	}, waitFor, tick)

	extensions, err := d.OpenExtensions(ctx)
	require.NoError(t, err)
	installed, err := extensions.ExtensionIsInstalled(ctx, config.DefaultExtensionLabel)
	require.NoError(t, err)
	assert.False(t, installed)

	_, err = extensions.GetInstalledExtension(ctx, config.DefaultExtensionName, config.DefaultExtensionLabel)
	var nf *lab.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "extension", nf.Kind)

	require.NoError(t, extensions.InstallExtensionFromOCIImage(ctx, config.DefaultExtensionImage))
	ext, err := extensions.GetInstalledExtension(ctx, config.DefaultExtensionName, config.DefaultExtensionLabel)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		status, err := ext.Status(ctx)
		return err == nil && status == lab.StatusActive
	}, waitFor, tick)

	require.NoError(t, d.AttachWebview(ctx))
	assert.Equal(t, 1, l.WebviewAttaches())
}

func TestDriver_ModelAndService(t *testing.T) {
	d, _ := newDriver(t, simulator.WithPreinstalledExtension())
	ctx := context.Background()
	const model = "ggerganov/whisper.cpp"

	catalog, err := d.OpenCatalog(ctx)
	require.NoError(t, err)
	require.NoError(t, catalog.WaitForLoad(ctx))

	require.NoError(t, catalog.DownloadModel(ctx, model))
	require.Eventually(t, func() bool {
		ok, err := catalog.IsModelDownloaded(ctx, model)
		return err == nil && ok
	}, waitFor, tick)

	creation, err := catalog.CreateModelService(ctx, model)
	require.NoError(t, err)
	require.NoError(t, creation.WaitForLoad(ctx))

	details, err := creation.CreateService(ctx)
	require.NoError(t, err)
	require.NoError(t, details.WaitForLoad(ctx))

	name, err := details.ModelName(ctx)
	require.NoError(t, err)
	assert.Equal(t, model, name)
	serverType, err := details.InferenceServerType(ctx)
	require.NoError(t, err)
	assert.Equal(t, "whisper-cpp", serverType)
	port, err := details.InferenceServerPort(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, waitFor, tick)

	services, err := details.DeleteService(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ok, err := services.HeadingVisible(ctx)
		return err == nil && ok
	}, waitFor, tick)

	_, err = details.ModelName(ctx)
	assert.True(t, lab.IsNotFound(err))

	require.NoError(t, catalog.DeleteModel(ctx, model))
	require.Eventually(t, func() bool {
		ok, err := catalog.IsModelDownloaded(ctx, model)
		return err == nil && !ok
	}, waitFor, tick)

	err = catalog.DeleteModel(ctx, model)
	var nf *lab.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, &lab.NotFoundError{Kind: "downloaded model", Name: model}, nf)
}

func TestDriver_RecipeLifecycle(t *testing.T) {
	d, _ := newDriver(t, simulator.WithPreinstalledExtension())
	ctx := context.Background()
	const name = "Object Detection"

	recipes, err := d.OpenRecipesCatalog(ctx)
	require.NoError(t, err)
	require.NoError(t, recipes.WaitForLoad(ctx))

	all, err := recipes.Recipes(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, lab.Recipe{ID: "object_detection", Name: name})

	_, err = recipes.OpenRecipesCatalogApp(ctx, "No Such Recipe")
	var nf *lab.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "recipe", nf.Kind)
	assert.Equal(t, "No Such Recipe", nf.Name)

	details, err := recipes.OpenRecipesCatalogApp(ctx, name)
	require.NoError(t, err)
	require.NoError(t, details.WaitForLoad(ctx))

	deployment, err := details.StartNewDeployment(ctx)
	require.NoError(t, err)
	require.NoError(t, deployment.WaitForLoad(ctx))

	apps, err := d.OpenRunningApps(ctx)
	require.NoError(t, err)
	exists, err := apps.AppExists(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	require.Eventually(t, func() bool {
		status, err := apps.GetCurrentStatusForApp(ctx, name)
		return err == nil && status == lab.StatusRunning
	}, waitFor, tick)

	listed, err := apps.Applications(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, []int{8501, 8000}, listed[0].AppPorts)

	require.NoError(t, apps.StopApp(ctx, name))
	require.Eventually(t, func() bool {
		status, err := apps.GetCurrentStatusForApp(ctx, name)
		return err == nil && status == lab.StatusUnknown
	}, waitFor, tick)

	require.NoError(t, apps.DeleteAIApp(ctx, name))
	require.Eventually(t, func() bool {
		exists, err := apps.AppExists(ctx, name)
		return err == nil && !exists
	}, waitFor, tick)

	_, err = apps.GetCurrentStatusForApp(ctx, name)
	assert.True(t, lab.IsNotFound(err))
}

func TestDriver_WaitForLoadHonoursContext(t *testing.T) {
	timings := fastTimings()
	timings.ViewLoad = time.Hour
	d, _ := newDriver(t, simulator.WithPreinstalledExtension(), simulator.WithTimings(timings))

	page, err := d.OpenCatalog(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, page.WaitForLoad(ctx))
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestDriver_ToolErrorsSurface(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()

	err := d.AttachWebview(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webview is not available")
	assert.False(t, lab.IsNotFound(err))

	_, err = d.OpenCatalog(ctx)
	assert.Error(t, err, "catalog requires an active extension")
}
