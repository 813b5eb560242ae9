// Package common applies the shared package list and firewall policy to the
// workloads listed under common_setup.
package common
