package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labrunner/internal/config"
	"labrunner/internal/health"
	"labrunner/internal/lab"
	"labrunner/internal/matrix"
	"labrunner/internal/poll"
	"labrunner/pkg/logging"
)

// caseState is what one phase hands to the next within a test case.
type caseState struct {
	tc matrix.TestCase
	// details is the service details page opened by CreateService. It is
	// cleared once the service is deleted.
	details lab.ServiceDetailsPage
}

// skipError marks a phase that was gated off rather than executed.
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return e.reason }

func skip(format string, args ...interface{}) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

// phases executes the individual lifecycle phases of one case.
type phases struct {
	app      lab.Application
	prober   HealthProber
	settings config.Settings
	state    *caseState
}

func (p phases) download(ctx context.Context) error {
	model := p.state.tc.Model
	catalog, err := p.app.OpenCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}

	downloaded, err := catalog.IsModelDownloaded(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to check model %s: %w", model, err)
	}
	if downloaded {
		logging.Info("Runner", "Model %s already downloaded", model)
		return nil
	}

	logging.Info("Runner", "Downloading model %s", model)
	if err := catalog.DownloadModel(ctx, model); err != nil {
		return fmt.Errorf("failed to start download of %s: %w", model, err)
	}

	timeout := p.settings.Timeouts.Download
	if p.state.tc.TimeoutOverride > 0 {
		timeout = p.state.tc.TimeoutOverride
	}
	return awaitTrue(ctx, fmt.Sprintf("model %s to be downloaded", model),
		p.settings.Intervals.Download, timeout,
		func(ctx context.Context) (bool, error) { return catalog.IsModelDownloaded(ctx, model) })
}

func (p phases) createService(ctx context.Context) error {
	model := p.state.tc.Model
	catalog, err := p.app.OpenCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}

	creation, err := catalog.CreateModelService(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to open service creation for %s: %w", model, err)
	}
	if err := waitForLoad(ctx, "service creation form to load", p.settings.Timeouts.ServiceCreate, creation); err != nil {
		return err
	}

	details, err := creation.CreateService(ctx)
	if err != nil {
		return fmt.Errorf("failed to create service for %s: %w", model, err)
	}
	p.state.details = details

	if err := waitForLoad(ctx, "service details to load", p.settings.Timeouts.ServiceCreate, details); err != nil {
		return err
	}

	name, err := details.ModelName(ctx)
	if err != nil {
		return fmt.Errorf("failed to read service model name: %w", err)
	}
	if !strings.Contains(name, model) {
		return &lab.AssertionError{Field: "service model name", Expected: model, Actual: name}
	}

	serverType, err := details.InferenceServerType(ctx)
	if err != nil {
		return fmt.Errorf("failed to read inference server type: %w", err)
	}
	if want := p.state.tc.ServiceType; want != "" {
		if !strings.Contains(serverType, want) {
			return &lab.AssertionError{Field: "inference server type", Expected: want, Actual: serverType}
		}
	} else if strings.TrimSpace(serverType) == "" {
		return &lab.AssertionError{Field: "inference server type", Expected: "a non-empty type", Actual: serverType}
	}

	logging.Info("Runner", "Service for %s created (%s)", model, serverType)
	return nil
}

func (p phases) healthCheck(ctx context.Context) error {
	if p.state.details == nil {
		return fmt.Errorf("cannot check service health: %w", lab.ErrNoServiceDetails)
	}

	port, err := p.state.details.InferenceServerPort(ctx)
	if err != nil {
		return fmt.Errorf("failed to read inference server port: %w", err)
	}
	if port <= 0 || port > 65535 {
		return &lab.AssertionError{Field: "inference server port", Expected: "a port in 1-65535", Actual: fmt.Sprint(port)}
	}

	url := health.ServiceURL(port)
	logging.Info("Runner", "Probing inference service at %s", url)
	return p.prober.Probe(ctx, url, p.settings.Timeouts.HealthCheck)
}

func (p phases) deleteService(ctx context.Context) error {
	if p.state.details == nil {
		return fmt.Errorf("cannot delete service: %w", lab.ErrNoServiceDetails)
	}

	services, err := p.state.details.DeleteService(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	p.state.details = nil

	// Some drivers stay on the details view after deleting.
	if services == nil {
		if services, err = p.app.OpenServices(ctx); err != nil {
			return fmt.Errorf("failed to open services list: %w", err)
		}
	}
	return awaitTrue(ctx, "services list to be shown", p.settings.Intervals.Poll, p.settings.Timeouts.ServiceDelete, services.HeadingVisible)
}

func (p phases) deployRecipe(ctx context.Context, recipe string) error {
	catalog, err := p.app.OpenRecipesCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to open recipes catalog: %w", err)
	}
	if err := waitForLoad(ctx, "recipes catalog to load", p.settings.Timeouts.RecipeDeploy, catalog); err != nil {
		return err
	}

	details, err := catalog.OpenRecipesCatalogApp(ctx, recipe)
	if err != nil {
		var nf *lab.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return fmt.Errorf("failed to open recipe %s: %w", recipe, err)
	}
	if err := waitForLoad(ctx, fmt.Sprintf("recipe %s to load", recipe), p.settings.Timeouts.RecipeDeploy, details); err != nil {
		return err
	}

	logging.Info("Runner", "Deploying recipe %s", recipe)
	deployment, err := details.StartNewDeployment(ctx)
	if err != nil {
		return fmt.Errorf("failed to start deployment of %s: %w", recipe, err)
	}
	return waitForLoad(ctx, fmt.Sprintf("deployment of %s to finish", recipe), p.settings.Timeouts.RecipeDeploy, deployment)
}

// deleteRecipe walks the running application through RUNNING, stop,
// UNKNOWN and delete, checking each state before moving on.
func (p phases) deleteRecipe(ctx context.Context, recipe string) error {
	s := p.settings
	apps, err := p.app.OpenRunningApps(ctx)
	if err != nil {
		return fmt.Errorf("failed to open running apps: %w", err)
	}

	if err := awaitTrue(ctx, fmt.Sprintf("app %s to be listed", recipe), s.Intervals.Poll, s.Timeouts.AppExists,
		func(ctx context.Context) (bool, error) { return apps.AppExists(ctx, recipe) }); err != nil {
		return err
	}

	status := func(ctx context.Context) (string, error) { return apps.GetCurrentStatusForApp(ctx, recipe) }
	if _, err := awaitStatus(ctx, fmt.Sprintf("app %s to be %s", recipe, lab.StatusRunning),
		s.Intervals.Poll, s.Timeouts.AppRunning, lab.StatusRunning, status); err != nil {
		return err
	}

	if err := apps.StopApp(ctx, recipe); err != nil {
		return fmt.Errorf("failed to stop app %s: %w", recipe, err)
	}
	if _, err := awaitStatus(ctx, fmt.Sprintf("app %s to be %s", recipe, lab.StatusUnknown),
		s.Intervals.Poll, s.Timeouts.AppStopped, lab.StatusUnknown, status); err != nil {
		return err
	}

	if err := apps.DeleteAIApp(ctx, recipe); err != nil {
		return fmt.Errorf("failed to delete app %s: %w", recipe, err)
	}
	return awaitTrue(ctx, fmt.Sprintf("app %s to be removed", recipe), s.Intervals.Poll, s.Timeouts.AppDeleted,
		func(ctx context.Context) (bool, error) {
			exists, err := apps.AppExists(ctx, recipe)
			return !exists, err
		})
}

// deleteModel only runs in CI on platforms where deletion is supported. It
// verifies the model is present and deletes it when DeleteModels is set.
func (p phases) deleteModel(ctx context.Context) error {
	s := p.settings
	model := p.state.tc.Model
	if !s.CI {
		return skip("model deletion only runs in CI")
	}
	if !s.ModelDeletionEnabled() {
		return skip("model deletion is disabled on %s", s.Platform)
	}

	catalog, err := p.app.OpenCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	present, err := catalog.IsModelDownloaded(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to check model %s: %w", model, err)
	}
	if !present {
		return &lab.NotFoundError{Kind: "downloaded model", Name: model}
	}

	if !s.DeleteModels {
		logging.Info("Runner", "Model %s present, deletion not enabled", model)
		return nil
	}

	logging.Info("Runner", "Deleting model %s", model)
	if err := catalog.DeleteModel(ctx, model); err != nil {
		return fmt.Errorf("failed to delete model %s: %w", model, err)
	}
	return awaitTrue(ctx, fmt.Sprintf("model %s to be deleted", model), s.Intervals.Poll, s.Timeouts.ModelDelete,
		func(ctx context.Context) (bool, error) {
			downloaded, err := catalog.IsModelDownloaded(ctx, model)
			return !downloaded, err
		})
}

// waitForLoad bounds page.WaitForLoad by timeout and reports expiry as a
// *lab.TimeoutError.
func waitForLoad(ctx context.Context, what string, timeout time.Duration, page lab.Page) error {
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := page.WaitForLoad(loadCtx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case loadCtx.Err() != nil:
		return &lab.TimeoutError{What: what, Timeout: timeout, LastErr: err}
	default:
		return fmt.Errorf("failed waiting for %s: %w", what, err)
	}
}

func awaitTrue(ctx context.Context, what string, interval, timeout time.Duration, fn poll.ConditionFunc) error {
	return poll.AwaitCondition(ctx, what, interval, timeout, fn)
}

func awaitStatus(ctx context.Context, what string, interval, timeout time.Duration, want string, get func(context.Context) (string, error)) (string, error) {
	return poll.AwaitValue(ctx, what, interval, timeout, get, poll.Equals(want))
}
