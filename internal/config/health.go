package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Component health states
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Timestamp       time.Time         `json:"timestamp" yaml:"timestamp"`
	OverallHealth   string            `json:"overall_health" yaml:"overall_health"`
	ComponentStatus map[string]string `json:"component_status" yaml:"component_status"`
	Issues          []string          `json:"issues" yaml:"issues"`
	Recommendations []string          `json:"recommendations" yaml:"recommendations"`
}

// HealthChecker inspects the environment a configuration points at before a run
type HealthChecker struct {
	config *Config
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(config *Config) *HealthChecker {
	return &HealthChecker{config: config}
}

// RunHealthCheck checks that every path in the configuration is usable.
// Missing source, catalog or tool make the result unhealthy; unwritable
// staging or target directories degrade it.
func (hc *HealthChecker) RunHealthCheck() *HealthCheckResult {
	result := &HealthCheckResult{
		Timestamp:       time.Now(),
		OverallHealth:   HealthHealthy,
		ComponentStatus: make(map[string]string),
		Issues:          []string{},
		Recommendations: []string{},
	}

	if err := hc.config.Validate(); err != nil {
		result.ComponentStatus["configuration"] = HealthUnhealthy
		result.Issues = append(result.Issues, fmt.Sprintf("Configuration validation failed: %v", err))
		result.OverallHealth = HealthUnhealthy
		return result
	}
	result.ComponentStatus["configuration"] = HealthHealthy

	hc.check(result, "source", HealthUnhealthy, func() error { return checkDirectory(hc.config.Source) })
	hc.check(result, "catalog", HealthUnhealthy, func() error { return checkFile(hc.config.DBLocation) })
	hc.check(result, "tool", HealthUnhealthy, func() error { return checkFile(hc.config.ToolPath) })
	hc.check(result, "temp_folder", HealthDegraded, func() error { return checkWritable(hc.config.TempFolder) })
	hc.check(result, "target", HealthDegraded, func() error { return checkWritable(hc.config.Target) })

	if hc.config.Upload.Enabled && hc.config.Upload.Encryption.Enabled {
		hc.check(result, "encryption", HealthDegraded, func() error {
			_, err := hc.config.Upload.Encryption.Passphrase()
			return err
		})
	}

	hc.generateRecommendations(result)
	return result
}

func (hc *HealthChecker) check(result *HealthCheckResult, component, failState string, fn func() error) {
	if err := fn(); err != nil {
		result.ComponentStatus[component] = failState
		result.Issues = append(result.Issues, fmt.Sprintf("%s: %v", component, err))
		if result.OverallHealth != HealthUnhealthy {
			result.OverallHealth = failState
		}
		return
	}
	result.ComponentStatus[component] = HealthHealthy
}

func (hc *HealthChecker) generateRecommendations(result *HealthCheckResult) {
	if hc.config.Upload.Enabled && !hc.config.Upload.Encryption.Enabled && hc.config.Upload.Provider != UploadProviderLocal {
		result.Recommendations = append(result.Recommendations,
			"Consider enabling encryption for backups uploaded to remote storage")
	}
	if hc.config.Parallelism > 1 {
		result.Recommendations = append(result.Recommendations,
			"Parallel runs require the snapshot tool to tolerate concurrent invocations")
	}
	if hc.config.SnapshotTimeout == 0 {
		result.Recommendations = append(result.Recommendations,
			"Set snapshot_timeout so a hung snapshot tool cannot stall the run")
	}
}

func checkDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func checkWritable(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}

	testFile := filepath.Join(path, ".permission_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return fmt.Errorf("insufficient write permissions for %s: %w", path, err)
	}
	os.Remove(testFile)
	return nil
}
