// Package simulator is an in-memory stand-in for the AI Lab desktop
// extension. It keeps the state the lifecycle runner observes (runtime,
// extension, downloads, services and deployed recipes), advances it on a
// clock, and serves it as an MCP automation bridge.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"labrunner/internal/config"
	"labrunner/internal/lab"
	"labrunner/internal/mcpdriver"
	"labrunner/pkg/logging"
)

// Transitional statuses only the simulator reports.
const (
	StatusStarting = "STARTING"
	StatusStopping = "STOPPING"
	StatusDeleting = "DELETING"
)

// Timings controls how long each simulated transition takes.
type Timings struct {
	RuntimeBoot         time.Duration `yaml:"runtimeBoot"`
	ExtensionActivation time.Duration `yaml:"extensionActivation"`
	ViewLoad            time.Duration `yaml:"viewLoad"`
	Download            time.Duration `yaml:"download"`
	ModelDelete         time.Duration `yaml:"modelDelete"`
	ServiceStart        time.Duration `yaml:"serviceStart"`
	Deployment          time.Duration `yaml:"deployment"`
	AppStart            time.Duration `yaml:"appStart"`
	AppStop             time.Duration `yaml:"appStop"`
	AppDelete           time.Duration `yaml:"appDelete"`
}

// DefaultTimings returns delays in the range of a fast real machine.
func DefaultTimings() Timings {
	return Timings{
		RuntimeBoot:         2 * time.Second,
		ExtensionActivation: 3 * time.Second,
		ViewLoad:            200 * time.Millisecond,
		Download:            5 * time.Second,
		ModelDelete:         time.Second,
		ServiceStart:        2 * time.Second,
		Deployment:          3 * time.Second,
		AppStart:            3 * time.Second,
		AppStop:             2 * time.Second,
		AppDelete:           2 * time.Second,
	}
}

// Lab is the simulated application state. It is safe for concurrent use.
type Lab struct {
	mu sync.Mutex

	now      func() time.Time
	timings  Timings
	catalog  Catalog
	bootedAt time.Time

	viewport  [2]int
	attaches  int
	extension *extension
	views     map[string]time.Time
	models    map[string]*download
	services  map[string]*service
	apps      map[string]*app
	nextID    int

	stuckApps     map[string]bool
	brokenModels  map[string]bool
	unhealthy     bool
	preinstalled  bool
	preDownloaded []string
}

type extension struct {
	image    string
	activeAt time.Time
}

type download struct {
	readyAt  time.Time
	deleting bool
	goneAt   time.Time
}

type app struct {
	recipe       Recipe
	model        string
	deploymentID string
	deployedAt   time.Time
	runningAt    time.Time
	stopping     bool
	unknownAt    time.Time
	deleting     bool
	goneAt       time.Time
}

// Option configures a Lab.
type Option func(*Lab)

// WithTimings replaces the default transition delays.
func WithTimings(t Timings) Option {
	return func(l *Lab) { l.timings = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Lab) { l.now = now }
}

// WithCatalog replaces the embedded catalog.
func WithCatalog(c Catalog) Option {
	return func(l *Lab) { l.catalog = c }
}

// WithPreinstalledExtension starts the lab with an active extension.
func WithPreinstalledExtension() Option {
	return func(l *Lab) { l.preinstalled = true }
}

// WithDownloadedModels starts the lab with models already downloaded.
func WithDownloadedModels(names ...string) Option {
	return func(l *Lab) { l.preDownloaded = append(l.preDownloaded, names...) }
}

// WithStuckApps makes the named recipes' apps stay STARTING forever.
func WithStuckApps(names ...string) Option {
	return func(l *Lab) {
		for _, n := range names {
			l.stuckApps[n] = true
		}
	}
}

// WithBrokenModels makes downloads of the named models never complete.
func WithBrokenModels(names ...string) Option {
	return func(l *Lab) {
		for _, n := range names {
			l.brokenModels[n] = true
		}
	}
}

// WithUnhealthyServices makes every inference endpoint answer 503.
func WithUnhealthyServices() Option {
	return func(l *Lab) { l.unhealthy = true }
}

// New creates a Lab whose runtime starts booting immediately.
func New(opts ...Option) (*Lab, error) {
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}

	l := &Lab{
		now:          time.Now,
		timings:      DefaultTimings(),
		catalog:      catalog,
		views:        make(map[string]time.Time),
		models:       make(map[string]*download),
		services:     make(map[string]*service),
		apps:         make(map[string]*app),
		stuckApps:    make(map[string]bool),
		brokenModels: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}

	now := l.now()
	l.bootedAt = now.Add(l.timings.RuntimeBoot)
	if l.preinstalled {
		l.extension = &extension{image: "preinstalled", activeAt: now}
	}
	for _, name := range l.preDownloaded {
		if _, err := l.catalog.Model(name); err != nil {
			return nil, err
		}
		l.models[name] = &download{readyAt: now}
	}
	return l, nil
}

// Catalog returns the catalog the lab serves.
func (l *Lab) Catalog() Catalog {
	return l.catalog
}

func (l *Lab) id(prefix string) string {
	l.nextID++
	return fmt.Sprintf("%s-%d", prefix, l.nextID)
}

// ResizeViewport records the requested viewport size.
func (l *Lab) ResizeViewport(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d", width, height)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.viewport = [2]int{width, height}
	return nil
}

// Viewport returns the last requested viewport size.
func (l *Lab) Viewport() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewport[0], l.viewport[1]
}

// RuntimeRunning reports whether the container machine finished booting.
func (l *Lab) RuntimeRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.now().Before(l.bootedAt)
}

// AttachWebview succeeds once the extension is active.
func (l *Lab) AttachWebview() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.extensionActive() {
		return errors.New("AI Lab webview is not available")
	}
	l.attaches++
	return nil
}

// WebviewAttaches counts successful AttachWebview calls.
func (l *Lab) WebviewAttaches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attaches
}

func (l *Lab) extensionActive() bool {
	return l.extension != nil && !l.now().Before(l.extension.activeAt)
}

func isExtension(nameOrLabel string) bool {
	return nameOrLabel == config.DefaultExtensionName || nameOrLabel == config.DefaultExtensionLabel
}

// ExtensionIsInstalled reports whether the AI Lab extension is installed.
func (l *Lab) ExtensionIsInstalled(label string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return isExtension(label) && l.extension != nil
}

// InstallExtension installs the extension from an OCI image reference.
func (l *Lab) InstallExtension(image string) error {
	if image == "" {
		return errors.New("image reference is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Before(l.bootedAt) {
		return errors.New("container runtime is not running")
	}
	if l.extension != nil {
		return fmt.Errorf("extension already installed from %s", l.extension.image)
	}
	l.extension = &extension{image: image, activeAt: l.now().Add(l.timings.ExtensionActivation)}
	logging.Info("Simulator", "Installing extension from %s", image)
	return nil
}

// ExtensionStatus returns STARTING until activation completes, then ACTIVE.
func (l *Lab) ExtensionStatus(name, label string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.extension == nil || !(isExtension(name) || isExtension(label)) {
		return "", &lab.NotFoundError{Kind: "extension", Name: label}
	}
	if l.extensionActive() {
		return lab.StatusActive, nil
	}
	return StatusStarting, nil
}

func viewKey(view, ref string) string {
	if ref == "" {
		return view
	}
	return view + "/" + ref
}

// OpenView navigates to view. ref names the model, service, recipe or
// deployment for views that show a single item.
func (l *Lab) OpenView(view, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch view {
	case mcpdriver.ViewDashboard, mcpdriver.ViewExtensions:
	case mcpdriver.ViewCatalog, mcpdriver.ViewRecipes, mcpdriver.ViewRunningApps, mcpdriver.ViewServices:
		if !l.extensionActive() {
			return fmt.Errorf("view %s requires an active extension", view)
		}
	case mcpdriver.ViewServiceCreate:
		m, err := l.catalog.Model(ref)
		if err != nil {
			return err
		}
		if !m.Servable() {
			return fmt.Errorf("model %s cannot be served", ref)
		}
	case mcpdriver.ViewServiceDetail:
		if _, ok := l.services[ref]; !ok {
			return &lab.NotFoundError{Kind: "service", Name: ref}
		}
	case mcpdriver.ViewRecipe:
		if _, err := l.catalog.RecipeByID(ref); err != nil {
			return err
		}
	case mcpdriver.ViewDeployment:
		if l.deployment(ref) == nil {
			return &lab.NotFoundError{Kind: "deployment", Name: ref}
		}
	default:
		return fmt.Errorf("unknown view %q", view)
	}

	l.views[viewKey(view, ref)] = l.now().Add(l.timings.ViewLoad)
	return nil
}

// ViewLoaded reports whether an opened view finished loading. A deployment
// view loads once the deployment itself completes.
func (l *Lab) ViewLoaded(view, ref string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	if view == mcpdriver.ViewDeployment {
		a := l.deployment(ref)
		if a == nil {
			return false, &lab.NotFoundError{Kind: "deployment", Name: ref}
		}
		return !now.Before(a.deployedAt.Add(l.timings.Deployment)), nil
	}
	if view == mcpdriver.ViewServiceDetail {
		if _, ok := l.services[ref]; !ok {
			return false, &lab.NotFoundError{Kind: "service", Name: ref}
		}
	}

	loadedAt, ok := l.views[viewKey(view, ref)]
	if !ok {
		return false, fmt.Errorf("view %s is not open", viewKey(view, ref))
	}
	return !now.Before(loadedAt), nil
}

// ServicesHeadingVisible reports whether the services list is displayed.
func (l *Lab) ServicesHeadingVisible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	loadedAt, ok := l.views[mcpdriver.ViewServices]
	return ok && !l.now().Before(loadedAt)
}

// sweep drops models and apps whose deletion finished.
func (l *Lab) sweep() {
	now := l.now()
	for name, d := range l.models {
		if d.deleting && !now.Before(d.goneAt) {
			delete(l.models, name)
		}
	}
	for name, a := range l.apps {
		if a.deleting && !now.Before(a.goneAt) {
			delete(l.apps, name)
		}
	}
}

func (l *Lab) downloaded(name string) bool {
	d, ok := l.models[name]
	if !ok || l.brokenModels[name] {
		return false
	}
	return !l.now().Before(d.readyAt)
}

// IsModelDownloaded reports whether the model is fully downloaded. A model
// being deleted still counts as present until deletion completes.
func (l *Lab) IsModelDownloaded(name string) (bool, error) {
	if _, err := l.catalog.Model(name); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	return l.downloaded(name), nil
}

// DownloadModel starts a download. Starting an in-progress or completed
// download again is a no-op.
func (l *Lab) DownloadModel(name string) error {
	if _, err := l.catalog.Model(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	if d, ok := l.models[name]; ok {
		if d.deleting {
			return fmt.Errorf("model %s is being deleted", name)
		}
		return nil
	}
	l.models[name] = &download{readyAt: l.now().Add(l.timings.Download)}
	logging.Info("Simulator", "Downloading model %s", name)
	return nil
}

// DeleteModel removes a downloaded model that no service or app uses.
func (l *Lab) DeleteModel(name string) error {
	if _, err := l.catalog.Model(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()

	d, ok := l.models[name]
	if !ok || !l.downloaded(name) {
		return &lab.NotFoundError{Kind: "downloaded model", Name: name}
	}
	if d.deleting {
		return nil
	}
	for _, s := range l.services {
		if s.model == name {
			return fmt.Errorf("model %s is used by service %s", name, s.id)
		}
	}
	for _, a := range l.apps {
		if a.model == name && !a.deleting {
			return fmt.Errorf("model %s is used by app %s", name, a.recipe.Name)
		}
	}
	d.deleting = true
	d.goneAt = l.now().Add(l.timings.ModelDelete)
	logging.Info("Simulator", "Deleting model %s", name)
	return nil
}

// CreateService starts an inference server for a downloaded model.
func (l *Lab) CreateService(model string) (mcpdriver.ServiceRef, error) {
	m, err := l.catalog.Model(model)
	if err != nil {
		return mcpdriver.ServiceRef{}, err
	}
	if !m.Servable() {
		return mcpdriver.ServiceRef{}, fmt.Errorf("model %s cannot be served", model)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	if !l.downloaded(model) {
		return mcpdriver.ServiceRef{}, fmt.Errorf("model %s is not downloaded", model)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return mcpdriver.ServiceRef{}, fmt.Errorf("failed to listen for service: %w", err)
	}

	s := &service{
		id:        l.id("service"),
		model:     m.Name,
		backend:   m.Backend,
		port:      listener.Addr().(*net.TCPAddr).Port,
		readyAt:   l.now().Add(l.timings.ServiceStart),
		unhealthy: l.unhealthy,
		now:       l.now,
	}
	s.server = &http.Server{Handler: s.router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Error("Simulator", err, "Inference service %s stopped", s.id)
		}
	}()

	l.services[s.id] = s
	l.views[viewKey(mcpdriver.ViewServiceDetail, s.id)] = l.now().Add(l.timings.ViewLoad)
	logging.Info("Simulator", "Service %s for %s listening on port %d", s.id, model, s.port)
	return mcpdriver.ServiceRef{ID: s.id}, nil
}

// ServiceDetails returns what the service details view displays.
func (l *Lab) ServiceDetails(id string) (mcpdriver.ServiceDetails, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.services[id]
	if !ok {
		return mcpdriver.ServiceDetails{}, &lab.NotFoundError{Kind: "service", Name: id}
	}
	return mcpdriver.ServiceDetails{ID: s.id, ModelName: s.model, ServerType: s.backend, Port: s.port}, nil
}

// DeleteService stops the inference server and shows the services list.
func (l *Lab) DeleteService(ctx context.Context, id string) error {
	l.mu.Lock()
	s, ok := l.services[id]
	if ok {
		delete(l.services, id)
		delete(l.views, viewKey(mcpdriver.ViewServiceDetail, id))
		l.views[mcpdriver.ViewServices] = l.now().Add(l.timings.ViewLoad)
	}
	l.mu.Unlock()

	if !ok {
		return &lab.NotFoundError{Kind: "service", Name: id}
	}
	logging.Info("Simulator", "Deleting service %s", id)
	return s.server.Shutdown(ctx)
}

// Recipes lists the catalog's recipes.
func (l *Lab) Recipes() []lab.Recipe {
	return l.catalog.LabRecipes()
}

// OpenRecipe opens the details view of the recipe with the given name.
func (l *Lab) OpenRecipe(name string) (lab.Recipe, error) {
	r, err := l.catalog.RecipeByName(name)
	if err != nil {
		return lab.Recipe{}, err
	}
	if err := l.OpenView(mcpdriver.ViewRecipe, r.ID); err != nil {
		return lab.Recipe{}, err
	}
	return lab.Recipe{ID: r.ID, Name: r.Name}, nil
}

// StartDeployment deploys a recipe with its first recommended model. The
// model is pulled as part of the deployment when missing.
func (l *Lab) StartDeployment(recipeID string) (mcpdriver.DeploymentRef, error) {
	r, err := l.catalog.RecipeByID(recipeID)
	if err != nil {
		return mcpdriver.DeploymentRef{}, err
	}
	if len(r.Models) == 0 {
		return mcpdriver.DeploymentRef{}, fmt.Errorf("recipe %s has no recommended model", r.Name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	if existing, ok := l.apps[r.Name]; ok && !existing.deleting {
		return mcpdriver.DeploymentRef{}, fmt.Errorf("recipe %s is already deployed", r.Name)
	}

	now := l.now()
	a := &app{
		recipe:       r,
		model:        r.Models[0],
		deploymentID: l.id("deployment"),
		deployedAt:   now,
		runningAt:    now.Add(l.timings.Deployment + l.timings.AppStart),
	}
	if _, ok := l.models[a.model]; !ok {
		l.models[a.model] = &download{readyAt: now.Add(l.timings.Deployment)}
	}
	l.apps[r.Name] = a
	logging.Info("Simulator", "Deploying recipe %s with model %s", r.Name, a.model)
	return mcpdriver.DeploymentRef{ID: a.deploymentID}, nil
}

func (l *Lab) deployment(id string) *app {
	for _, a := range l.apps {
		if a.deploymentID == id {
			return a
		}
	}
	return nil
}

func (l *Lab) status(a *app) string {
	now := l.now()
	switch {
	case a.deleting:
		return StatusDeleting
	case a.stopping && now.Before(a.unknownAt):
		return StatusStopping
	case a.stopping:
		return lab.StatusUnknown
	case l.stuckApps[a.recipe.Name] || now.Before(a.runningAt):
		return StatusStarting
	default:
		return lab.StatusRunning
	}
}

func (l *Lab) lookupApp(name string) (*app, error) {
	l.sweep()
	a, ok := l.apps[name]
	if !ok {
		return nil, &lab.NotFoundError{Kind: "app", Name: name}
	}
	return a, nil
}

// AppExists reports whether the running apps table lists the app.
func (l *Lab) AppExists(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.lookupApp(name)
	return err == nil
}

// AppStatus returns the status column of the app's row.
func (l *Lab) AppStatus(name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.lookupApp(name)
	if err != nil {
		return "", err
	}
	return l.status(a), nil
}

// StopApp stops a running app's containers.
func (l *Lab) StopApp(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.lookupApp(name)
	if err != nil {
		return err
	}
	if status := l.status(a); status != lab.StatusRunning {
		return fmt.Errorf("app %s cannot be stopped while %s", name, status)
	}
	a.stopping = true
	a.unknownAt = l.now().Add(l.timings.AppStop)
	logging.Info("Simulator", "Stopping app %s", name)
	return nil
}

// DeleteApp removes an app. Running apps must be stopped first.
func (l *Lab) DeleteApp(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, err := l.lookupApp(name)
	if err != nil {
		return err
	}
	if a.deleting {
		return nil
	}
	if status := l.status(a); status == lab.StatusRunning {
		return fmt.Errorf("app %s must be stopped before deletion", name)
	}
	a.deleting = true
	a.goneAt = l.now().Add(l.timings.AppDelete)
	logging.Info("Simulator", "Deleting app %s", name)
	return nil
}

// Applications lists deployed apps ordered by recipe ID.
func (l *Lab) Applications() []lab.AppInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()

	out := make([]lab.AppInfo, 0, len(l.apps))
	for _, a := range l.apps {
		info := lab.AppInfo{RecipeID: a.recipe.ID, ModelID: a.model, Status: l.status(a)}
		if info.Status == lab.StatusRunning {
			info.AppPorts = append([]int(nil), a.recipe.Ports...)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipeID < out[j].RecipeID })
	return out
}

// Close stops every inference server still running.
func (l *Lab) Close(ctx context.Context) error {
	l.mu.Lock()
	services := make([]*service, 0, len(l.services))
	for id, s := range l.services {
		services = append(services, s)
		delete(l.services, id)
	}
	l.mu.Unlock()

	var errs []error
	for _, s := range services {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("service %s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}
