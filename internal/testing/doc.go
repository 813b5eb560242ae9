// Package testing provides test utilities, builders, and fixtures for phase tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - ConfigBuilder: Fluent builder for creating valid provisioning configurations
//   - HostFixture: A scripted fake host preloaded with a healthy Debian server
//   - RecordingObserver: Captures events emitted by phases
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithDatabases("app_dev", "app_prod").
//	    Build()
//
//	host := testing.NewHostFixture().Debian(13)
//	ctx, obs := testing.NewContext(t, cfg, host.Fake())
package testing
