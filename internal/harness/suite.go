package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario directory holds no
// scenario files.
type ScenarioNotFoundError struct {
	Dir    string
	Filter string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	if e.Filter != "" {
		return fmt.Sprintf("no scenario in %s matches filter %q", e.Dir, e.Filter)
	}
	return fmt.Sprintf("no scenario files (*.yaml, *.yml) in %s", e.Dir)
}

// SuiteResult summarizes the runs of a scenario directory.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`

	// Results holds the result of every scenario that ran, keyed by path.
	Results map[string]*Result `json:"-"`
}

// ScenarioFailure is one failed scenario.
type ScenarioFailure struct {
	Name         string   `json:"name,omitempty"`
	ScenarioPath string   `json:"scenario_path"`
	Errors       []string `json:"errors"`
}

// FindScenarios returns the scenario files of dir in lexical order.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in dir whose name contains
// filter (all when empty).
//
// A scenario that fails to load, cannot run, or fails an expectation is
// recorded in Failures; RunSuite itself only fails when dir cannot be read
// or holds no matching scenario.
func RunSuite(ctx context.Context, dir, filter string) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{Results: make(map[string]*Result)}
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			if filter != "" && !strings.Contains(filepath.Base(path), filter) {
				continue
			}
			result.fail("", path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}
		if filter != "" && !strings.Contains(scenario.Name, filter) {
			continue
		}

		run, err := RunContext(ctx, scenario)
		if err != nil {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		result.Results[path] = run
		if !run.Pass {
			result.fail(scenario.Name, path, run.Errors...)
			continue
		}
		result.Total++
		result.Passed++
	}

	if result.Total == 0 {
		return nil, &ScenarioNotFoundError{Dir: dir, Filter: filter}
	}
	return result, nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Total++
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Name: name, ScenarioPath: path, Errors: errs})
}
