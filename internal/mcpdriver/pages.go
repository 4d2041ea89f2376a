package mcpdriver

import (
	"context"
	"fmt"
	"strings"

	"labrunner/internal/lab"
)

// page is a view opened through the bridge.
type page struct {
	d    *Driver
	view string
	ref  string
}

// WaitForLoad blocks until the view reports loaded or ctx ends.
func (p *page) WaitForLoad(ctx context.Context) error {
	return p.d.waitLoaded(ctx, p.view, p.ref)
}

type extensionsPage struct {
	*page
}

func (e *extensionsPage) ExtensionIsInstalled(ctx context.Context, label string) (bool, error) {
	return e.d.callBool(ctx, ToolExtensionIsInstalled, map[string]interface{}{"label": label})
}

func (e *extensionsPage) InstallExtensionFromOCIImage(ctx context.Context, uri string) error {
	_, err := e.d.call(ctx, ToolExtensionInstall, map[string]interface{}{"image": uri})
	return err
}

func (e *extensionsPage) GetInstalledExtension(ctx context.Context, name, label string) (lab.InstalledExtension, error) {
	installed, err := e.ExtensionIsInstalled(ctx, label)
	if err != nil {
		return nil, err
	}
	if !installed {
		return nil, &lab.NotFoundError{Kind: "extension", Name: label}
	}
	return &installedExtension{d: e.d, name: name, label: label}, nil
}

type installedExtension struct {
	d     *Driver
	name  string
	label string
}

func (e *installedExtension) Status(ctx context.Context) (string, error) {
	status, err := e.d.call(ctx, ToolExtensionStatus, map[string]interface{}{"name": e.name, "label": e.label})
	return strings.TrimSpace(status), err
}

type catalogPage struct {
	*page
}

func modelArgs(model string) map[string]interface{} {
	return map[string]interface{}{"model": model}
}

func (c *catalogPage) IsModelDownloaded(ctx context.Context, model string) (bool, error) {
	return c.d.callBool(ctx, ToolModelIsDownloaded, modelArgs(model))
}

func (c *catalogPage) DownloadModel(ctx context.Context, model string) error {
	_, err := c.d.call(ctx, ToolModelDownload, modelArgs(model))
	return err
}

func (c *catalogPage) DeleteModel(ctx context.Context, model string) error {
	_, err := c.d.call(ctx, ToolModelDelete, modelArgs(model))
	return err
}

func (c *catalogPage) CreateModelService(ctx context.Context, model string) (lab.ServiceCreationPage, error) {
	p, err := c.d.open(ctx, ViewServiceCreate, model)
	if err != nil {
		return nil, err
	}
	return &serviceCreationPage{page: p, model: model}, nil
}

type serviceCreationPage struct {
	*page
	model string
}

func (s *serviceCreationPage) CreateService(ctx context.Context) (lab.ServiceDetailsPage, error) {
	var ref ServiceRef
	if err := s.d.callJSON(ctx, ToolServiceCreate, modelArgs(s.model), &ref); err != nil {
		return nil, err
	}
	if ref.ID == "" {
		return nil, fmt.Errorf("%s returned no service id", ToolServiceCreate)
	}
	return &serviceDetailsPage{page: &page{d: s.d, view: ViewServiceDetail, ref: ref.ID}}, nil
}

type serviceDetailsPage struct {
	*page
}

func (s *serviceDetailsPage) details(ctx context.Context) (ServiceDetails, error) {
	var details ServiceDetails
	err := s.d.callJSON(ctx, ToolServiceDetails, map[string]interface{}{"id": s.ref}, &details)
	return details, err
}

func (s *serviceDetailsPage) ModelName(ctx context.Context) (string, error) {
	details, err := s.details(ctx)
	return details.ModelName, err
}

func (s *serviceDetailsPage) InferenceServerType(ctx context.Context) (string, error) {
	details, err := s.details(ctx)
	return details.ServerType, err
}

func (s *serviceDetailsPage) InferenceServerPort(ctx context.Context) (int, error) {
	details, err := s.details(ctx)
	return details.Port, err
}

func (s *serviceDetailsPage) DeleteService(ctx context.Context) (lab.ServicesPage, error) {
	if _, err := s.d.call(ctx, ToolServiceDelete, map[string]interface{}{"id": s.ref}); err != nil {
		return nil, err
	}
	return &servicesPage{page: &page{d: s.d, view: ViewServices}}, nil
}

type servicesPage struct {
	*page
}

func (s *servicesPage) HeadingVisible(ctx context.Context) (bool, error) {
	return s.d.callBool(ctx, ToolServicesHeadingVisible, nil)
}

type recipesCatalogPage struct {
	*page
}

func (r *recipesCatalogPage) OpenRecipesCatalogApp(ctx context.Context, name string) (lab.RecipeDetailsPage, error) {
	var recipe lab.Recipe
	if err := r.d.callJSON(ctx, ToolRecipeOpen, map[string]interface{}{"name": name}, &recipe); err != nil {
		return nil, err
	}
	return &recipeDetailsPage{page: &page{d: r.d, view: ViewRecipe, ref: recipe.ID}, recipe: recipe}, nil
}

func (r *recipesCatalogPage) Recipes(ctx context.Context) ([]lab.Recipe, error) {
	var recipes []lab.Recipe
	err := r.d.callJSON(ctx, ToolRecipesList, nil, &recipes)
	return recipes, err
}

type recipeDetailsPage struct {
	*page
	recipe lab.Recipe
}

func (r *recipeDetailsPage) StartNewDeployment(ctx context.Context) (lab.Page, error) {
	var ref DeploymentRef
	if err := r.d.callJSON(ctx, ToolRecipeStartDeployment, map[string]interface{}{"recipe": r.recipe.ID}, &ref); err != nil {
		return nil, err
	}
	return &page{d: r.d, view: ViewDeployment, ref: ref.ID}, nil
}

type runningAppsPage struct {
	*page
}

func appArgs(name string) map[string]interface{} {
	return map[string]interface{}{"name": name}
}

func (a *runningAppsPage) AppExists(ctx context.Context, name string) (bool, error) {
	return a.d.callBool(ctx, ToolAppExists, appArgs(name))
}

func (a *runningAppsPage) GetCurrentStatusForApp(ctx context.Context, name string) (string, error) {
	status, err := a.d.call(ctx, ToolAppStatus, appArgs(name))
	return strings.TrimSpace(status), err
}

func (a *runningAppsPage) StopApp(ctx context.Context, name string) error {
	_, err := a.d.call(ctx, ToolAppStop, appArgs(name))
	return err
}

func (a *runningAppsPage) DeleteAIApp(ctx context.Context, name string) error {
	_, err := a.d.call(ctx, ToolAppDelete, appArgs(name))
	return err
}

func (a *runningAppsPage) Applications(ctx context.Context) ([]lab.AppInfo, error) {
	var apps []lab.AppInfo
	err := a.d.callJSON(ctx, ToolAppsList, nil, &apps)
	return apps, err
}
