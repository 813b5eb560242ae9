// Package devenv turns the dev workload into a development machine: system
// packages, Python managed with uv, Node.js from NodeSource, optional extras,
// a shell profile block and helper scripts.
package devenv
