package mcpdriver

// Tool names exposed by an automation bridge. Arguments are listed after
// each name; results are plain text unless marked JSON.
const (
	// width, height (numbers)
	ToolResizeViewport = "app_resize_viewport"
	// -> "true" | "false"
	ToolRuntimeRunning = "app_runtime_running"
	ToolAttachWebview  = "app_attach_webview"

	// view, ref (optional)
	ToolOpenView = "navigation_open"
	// view, ref (optional) -> "loaded" | "loading"
	ToolWaitForLoad = "view_wait_for_load"

	// label -> "true" | "false"
	ToolExtensionIsInstalled = "extension_is_installed"
	// image
	ToolExtensionInstall = "extension_install"
	// name, label -> status
	ToolExtensionStatus = "extension_status"

	// model -> "true" | "false"
	ToolModelIsDownloaded = "catalog_is_model_downloaded"
	// model
	ToolModelDownload = "catalog_download_model"
	// model
	ToolModelDelete = "catalog_delete_model"

	// model -> JSON ServiceRef
	ToolServiceCreate = "service_create"
	// id -> JSON ServiceDetails
	ToolServiceDetails = "service_details"
	// id
	ToolServiceDelete = "service_delete"
	// -> "true" | "false"
	ToolServicesHeadingVisible = "services_heading_visible"

	// -> JSON []lab.Recipe
	ToolRecipesList = "recipes_list"
	// name -> JSON lab.Recipe
	ToolRecipeOpen = "recipe_open"
	// recipe (id) -> JSON DeploymentRef
	ToolRecipeStartDeployment = "recipe_start_deployment"

	// -> JSON []lab.AppInfo
	ToolAppsList = "apps_list"
	// name -> "true" | "false"
	ToolAppExists = "app_exists"
	// name -> status
	ToolAppStatus = "app_status"
	// name
	ToolAppStop = "app_stop"
	// name
	ToolAppDelete = "app_delete"
)

// View identifiers accepted by ToolOpenView and ToolWaitForLoad.
const (
	ViewDashboard     = "dashboard"
	ViewExtensions    = "extensions"
	ViewCatalog       = "catalog"
	ViewRecipes       = "recipes"
	ViewRecipe        = "recipe"
	ViewRunningApps   = "running-apps"
	ViewServices      = "services"
	ViewServiceCreate = "service-create"
	ViewServiceDetail = "service-details"
	ViewDeployment    = "deployment"
)

// Load states returned by ToolWaitForLoad.
const (
	StateLoaded  = "loaded"
	StateLoading = "loading"
)

// ServiceRef identifies a created inference service.
type ServiceRef struct {
	ID string `json:"id"`
}

// ServiceDetails is what the service details view displays.
type ServiceDetails struct {
	ID         string `json:"id"`
	ModelName  string `json:"modelName"`
	ServerType string `json:"serverType"`
	Port       int    `json:"port"`
}

// DeploymentRef identifies a started recipe deployment.
type DeploymentRef struct {
	ID string `json:"id"`
}
