package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"labrunner/internal/config"
	"labrunner/internal/lab"
	"labrunner/internal/matrix"

	"github.com/stretchr/testify/mock"
)

// fakeLab is a scriptable in-memory lab.Application that records every
// state-changing call in order.
type fakeLab struct {
	calls []string
	errs  map[string]error

	runtimeRunning     bool
	extensionInstalled bool
	extensionStatus    string

	downloaded    map[string]bool
	downloadPolls int
	pending       map[string]int

	serviceModelName string
	// staysOnDetails makes DeleteService return no services page.
	staysOnDetails bool
	serverType     string
	port           int

	recipes       map[string]bool
	startingReads int
	stuckStatus   string
	apps          map[string]*fakeApp
}

type fakeApp struct {
	status string
	reads  int
}

func newFakeLab() *fakeLab {
	return &fakeLab{
		errs:               map[string]error{},
		runtimeRunning:     true,
		extensionInstalled: true,
		extensionStatus:    lab.StatusActive,
		downloaded:         map[string]bool{},
		pending:            map[string]int{},
		serverType:         "whisper-cpp",
		port:               35000,
		recipes: map[string]bool{
			"Audio to Text":    true,
			"Object Detection": true,
			"Chatbot":          true,
			"Summarizer":       true,
		},
		startingReads: 1,
		apps:          map[string]*fakeApp{},
	}
}

func (l *fakeLab) record(format string, args ...interface{}) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *fakeLab) ResizeViewport(_ context.Context, w, h int) error {
	l.record("ResizeViewport(%dx%d)", w, h)
	return l.errs["ResizeViewport"]
}

func (l *fakeLab) RuntimeRunning(context.Context) (bool, error) {
	return l.runtimeRunning, l.errs["RuntimeRunning"]
}

func (l *fakeLab) AttachWebview(context.Context) error {
	l.record("AttachWebview")
	return l.errs["AttachWebview"]
}

func (l *fakeLab) OpenDashboard(context.Context) (lab.Page, error) {
	return fakePage{}, l.errs["OpenDashboard"]
}

func (l *fakeLab) OpenExtensions(context.Context) (lab.ExtensionsPage, error) {
	return &fakeExtensions{l: l}, l.errs["OpenExtensions"]
}

func (l *fakeLab) OpenCatalog(context.Context) (lab.CatalogPage, error) {
	if err := l.errs["OpenCatalog"]; err != nil {
		return nil, err
	}
	return &fakeCatalog{l: l}, nil
}

func (l *fakeLab) OpenRecipesCatalog(context.Context) (lab.RecipesCatalogPage, error) {
	return &fakeRecipes{l: l}, l.errs["OpenRecipesCatalog"]
}

func (l *fakeLab) OpenRunningApps(context.Context) (lab.RunningAppsPage, error) {
	return &fakeApps{l: l}, l.errs["OpenRunningApps"]
}

func (l *fakeLab) OpenServices(context.Context) (lab.ServicesPage, error) {
	l.record("OpenServices")
	return fakeServices{}, l.errs["OpenServices"]
}

func (l *fakeLab) Close() error {
	l.record("Close")
	return nil
}

type fakePage struct{}

func (fakePage) WaitForLoad(context.Context) error { return nil }

type fakeExtensions struct {
	fakePage
	l *fakeLab
}

func (e *fakeExtensions) ExtensionIsInstalled(_ context.Context, label string) (bool, error) {
	e.l.record("ExtensionIsInstalled(%s)", label)
	return e.l.extensionInstalled, nil
}

func (e *fakeExtensions) InstallExtensionFromOCIImage(_ context.Context, uri string) error {
	e.l.record("InstallExtension(%s)", uri)
	e.l.extensionInstalled = true
	return nil
}

func (e *fakeExtensions) GetInstalledExtension(_ context.Context, name, label string) (lab.InstalledExtension, error) {
	if !e.l.extensionInstalled {
		return nil, &lab.NotFoundError{Kind: "extension", Name: label}
	}
	return fakeExtension{e.l}, nil
}

type fakeExtension struct{ l *fakeLab }

func (e fakeExtension) Status(context.Context) (string, error) { return e.l.extensionStatus, nil }

type fakeCatalog struct {
	fakePage
	l *fakeLab
}

func (c *fakeCatalog) IsModelDownloaded(_ context.Context, model string) (bool, error) {
	if n, ok := c.l.pending[model]; ok {
		if n <= 1 {
			delete(c.l.pending, model)
			c.l.downloaded[model] = true
		} else {
			c.l.pending[model] = n - 1
		}
	}
	return c.l.downloaded[model], nil
}

func (c *fakeCatalog) DownloadModel(_ context.Context, model string) error {
	c.l.record("DownloadModel(%s)", model)
	if c.l.downloadPolls == 0 {
		c.l.downloaded[model] = true
	} else {
		c.l.pending[model] = c.l.downloadPolls
	}
	return nil
}

func (c *fakeCatalog) DeleteModel(_ context.Context, model string) error {
	c.l.record("DeleteModel(%s)", model)
	delete(c.l.downloaded, model)
	return nil
}

func (c *fakeCatalog) CreateModelService(_ context.Context, model string) (lab.ServiceCreationPage, error) {
	c.l.record("CreateModelService(%s)", model)
	return &fakeCreation{l: c.l, model: model}, nil
}

type fakeCreation struct {
	fakePage
	l     *fakeLab
	model string
}

func (c *fakeCreation) CreateService(context.Context) (lab.ServiceDetailsPage, error) {
	c.l.record("CreateService")
	if err := c.l.errs["CreateService"]; err != nil {
		return nil, err
	}
	return &fakeDetails{l: c.l, model: c.model}, nil
}

type fakeDetails struct {
	fakePage
	l     *fakeLab
	model string
}

func (d *fakeDetails) ModelName(context.Context) (string, error) {
	if d.l.serviceModelName != "" {
		return d.l.serviceModelName, nil
	}
	return d.model, nil
}

func (d *fakeDetails) InferenceServerType(context.Context) (string, error) {
	return d.l.serverType, nil
}

func (d *fakeDetails) InferenceServerPort(context.Context) (int, error) {
	return d.l.port, nil
}

func (d *fakeDetails) DeleteService(context.Context) (lab.ServicesPage, error) {
	d.l.record("DeleteService")
	if d.l.staysOnDetails {
		return nil, nil
	}
	return fakeServices{}, nil
}

type fakeServices struct{ fakePage }

func (fakeServices) HeadingVisible(context.Context) (bool, error) { return true, nil }

type fakeRecipes struct {
	fakePage
	l *fakeLab
}

func (r *fakeRecipes) OpenRecipesCatalogApp(_ context.Context, name string) (lab.RecipeDetailsPage, error) {
	r.l.record("OpenRecipe(%s)", name)
	if !r.l.recipes[name] {
		return nil, &lab.NotFoundError{Kind: "recipe", Name: name}
	}
	return &fakeRecipe{l: r.l, name: name}, nil
}

func (r *fakeRecipes) Recipes(context.Context) ([]lab.Recipe, error) {
	var out []lab.Recipe
	for name := range r.l.recipes {
		out = append(out, lab.Recipe{ID: name, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeRecipe struct {
	fakePage
	l    *fakeLab
	name string
}

func (r *fakeRecipe) StartNewDeployment(context.Context) (lab.Page, error) {
	r.l.record("StartNewDeployment(%s)", r.name)
	r.l.apps[r.name] = &fakeApp{status: "STARTING"}
	return fakePage{}, nil
}

type fakeApps struct {
	fakePage
	l *fakeLab
}

func (a *fakeApps) AppExists(_ context.Context, name string) (bool, error) {
	return a.l.apps[name] != nil, nil
}

func (a *fakeApps) GetCurrentStatusForApp(_ context.Context, name string) (string, error) {
	app := a.l.apps[name]
	if app == nil {
		return "", &lab.NotFoundError{Kind: "app", Name: name}
	}
	if a.l.stuckStatus != "" {
		a.l.record("Status(%s)=%s", name, a.l.stuckStatus)
		return a.l.stuckStatus, nil
	}
	if app.status == "STARTING" && app.reads >= a.l.startingReads {
		app.status = lab.StatusRunning
	}
	app.reads++
	a.l.record("Status(%s)=%s", name, app.status)
	return app.status, nil
}

func (a *fakeApps) StopApp(_ context.Context, name string) error {
	a.l.record("StopApp(%s)", name)
	if app := a.l.apps[name]; app != nil {
		app.status = lab.StatusUnknown
	}
	return nil
}

func (a *fakeApps) DeleteAIApp(_ context.Context, name string) error {
	a.l.record("DeleteAIApp(%s)", name)
	delete(a.l.apps, name)
	return nil
}

func (a *fakeApps) Applications(context.Context) ([]lab.AppInfo, error) {
	var out []lab.AppInfo
	for name, app := range a.l.apps {
		out = append(out, lab.AppInfo{RecipeID: name, Status: app.status})
	}
	return out, nil
}

// mockProber is a testify mock of HealthProber.
type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, url string, timeout time.Duration) error {
	args := m.Called(ctx, url, timeout)
	return args.Error(0)
}

// recordingReporter keeps every event it receives.
type recordingReporter struct {
	started      bool
	casesStarted []string
	phaseStarts  []string
	phases       map[string][]PhaseResult
	cases        []CaseResult
	suite        *SuiteResult
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{phases: map[string][]PhaseResult{}}
}

func (r *recordingReporter) ReportStart(RunConfiguration, []matrix.TestCase) { r.started = true }

func (r *recordingReporter) ReportCaseStart(tc matrix.TestCase, _ []Phase) {
	r.casesStarted = append(r.casesStarted, tc.Model)
}

func (r *recordingReporter) ReportPhaseStart(tc matrix.TestCase, phase Phase) {
	r.phaseStarts = append(r.phaseStarts, phase.String())
}

func (r *recordingReporter) ReportPhaseResult(tc matrix.TestCase, result PhaseResult) {
	r.phases[tc.Model] = append(r.phases[tc.Model], result)
}

func (r *recordingReporter) ReportCaseResult(result CaseResult) {
	r.cases = append(r.cases, result)
}

func (r *recordingReporter) ReportSuiteResult(result SuiteResult) {
	r.suite = &result
}

func testSettings() config.Settings {
	s := config.Default()
	s.Platform = "darwin"
	d := 300 * time.Millisecond
	s.Timeouts = config.Timeouts{
		Runtime: d, ExtensionActive: d, Download: d, ServiceCreate: d,
		HealthCheck: d, ServiceDelete: d, RecipeDeploy: d, AppExists: d,
		AppRunning: d, AppStopped: d, AppDeleted: d, ModelDelete: d,
	}
	s.Intervals = config.Intervals{Poll: 2 * time.Millisecond, Download: 2 * time.Millisecond}
	return s
}

func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}

func countOf(calls []string, want string) int {
	n := 0
	for _, c := range calls {
		if c == want {
			n++
		}
	}
	return n
}
