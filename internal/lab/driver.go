// Package lab defines the contract between the lifecycle runner and the
// application it drives: the application handle, the page objects it opens,
// and the error kinds a phase can fail with.
package lab

import "context"

// Well-known status values reported by the application.
const (
	StatusRunning = "RUNNING"
	StatusUnknown = "UNKNOWN"
	// StatusActive is the status of a started extension.
	StatusActive = "ACTIVE"
)

// Page is any application view that can report when it finished loading.
type Page interface {
	WaitForLoad(ctx context.Context) error
}

// Application is the driver of one running desktop application instance.
type Application interface {
	ResizeViewport(ctx context.Context, width, height int) error
	// RuntimeRunning reports whether the container runtime (machine) is up.
	RuntimeRunning(ctx context.Context) (bool, error)
	// AttachWebview re-acquires the extension's embedded content view. It
	// may be torn down and recreated between test cases.
	AttachWebview(ctx context.Context) error

	OpenDashboard(ctx context.Context) (Page, error)
	OpenExtensions(ctx context.Context) (ExtensionsPage, error)
	OpenCatalog(ctx context.Context) (CatalogPage, error)
	OpenRecipesCatalog(ctx context.Context) (RecipesCatalogPage, error)
	OpenRunningApps(ctx context.Context) (RunningAppsPage, error)
	OpenServices(ctx context.Context) (ServicesPage, error)

	Close() error
}

// ExtensionsPage manages installed extensions.
type ExtensionsPage interface {
	Page
	ExtensionIsInstalled(ctx context.Context, label string) (bool, error)
	InstallExtensionFromOCIImage(ctx context.Context, uri string) error
	GetInstalledExtension(ctx context.Context, name, label string) (InstalledExtension, error)
}

// InstalledExtension is the details handle of one installed extension.
type InstalledExtension interface {
	Status(ctx context.Context) (string, error)
}

// CatalogPage is the model catalog.
type CatalogPage interface {
	Page
	IsModelDownloaded(ctx context.Context, model string) (bool, error)
	DownloadModel(ctx context.Context, model string) error
	DeleteModel(ctx context.Context, model string) error
	CreateModelService(ctx context.Context, model string) (ServiceCreationPage, error)
}

// ServiceCreationPage is the form creating an inference service for a model.
type ServiceCreationPage interface {
	Page
	CreateService(ctx context.Context) (ServiceDetailsPage, error)
}

// ServiceDetailsPage shows one inference service.
type ServiceDetailsPage interface {
	Page
	ModelName(ctx context.Context) (string, error)
	InferenceServerType(ctx context.Context) (string, error)
	InferenceServerPort(ctx context.Context) (int, error)
	DeleteService(ctx context.Context) (ServicesPage, error)
}

// ServicesPage lists inference services.
type ServicesPage interface {
	Page
	HeadingVisible(ctx context.Context) (bool, error)
}

// RecipesCatalogPage lists the recipes bundled with the extension.
type RecipesCatalogPage interface {
	Page
	// OpenRecipesCatalogApp returns a *NotFoundError when no recipe has the
	// given display name.
	OpenRecipesCatalogApp(ctx context.Context, name string) (RecipeDetailsPage, error)
	Recipes(ctx context.Context) ([]Recipe, error)
}

// RecipeDetailsPage is the details view of a single recipe.
type RecipeDetailsPage interface {
	Page
	StartNewDeployment(ctx context.Context) (Page, error)
}

// RunningAppsPage lists deployed recipe applications.
type RunningAppsPage interface {
	Page
	AppExists(ctx context.Context, name string) (bool, error)
	GetCurrentStatusForApp(ctx context.Context, name string) (string, error)
	StopApp(ctx context.Context, name string) error
	DeleteAIApp(ctx context.Context, name string) error
	Applications(ctx context.Context) ([]AppInfo, error)
}
