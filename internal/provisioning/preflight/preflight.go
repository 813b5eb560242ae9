package preflight

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/util/async"
	"github.com/conway-vibehost/vibehost-setup/internal/util/netutil"
	"github.com/conway-vibehost/vibehost-setup/internal/util/prerequisites"
)

const phase = "validate"

// Thresholds below which a warning is raised.
const (
	MinMemoryMB     = 8 * 1024
	MinDiskFreeGB   = 50
	MinDebianMajor  = 12
	pingCount       = 3
	reachabilityTTL = 10 * time.Second
)

// Severity classifies a finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one result of a preflight check.
type Finding struct {
	Check    string
	Severity Severity
	Message  string
}

// OSInfo is the subset of /etc/os-release the checks need.
type OSInfo struct {
	ID         string
	VersionID  string
	PrettyName string
	Codename   string
}

// Major returns the major version number, or 0 when unknown.
func (o OSInfo) Major() int {
	major, _, _ := strings.Cut(o.VersionID, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// Resources describes host capacity.
type Resources struct {
	MemoryMB   int
	CPUs       int
	DiskFreeGB int
}

// Report collects everything preflight learned about the host.
type Report struct {
	OS        OSInfo
	Resources Resources
	Findings  []Finding

	mu sync.Mutex
}

func (r *Report) add(check string, sev Severity, format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Findings = append(r.Findings, Finding{Check: check, Severity: sev, Message: fmt.Sprintf(format, v...)})
}

// Warnings returns the advisory findings.
func (r *Report) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

// Errors returns the blocking findings.
func (r *Report) Errors() []Finding {
	return r.filter(SeverityError)
}

func (r *Report) filter(sev Severity) []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// Err joins the blocking findings into one error, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Errors() {
		errs = append(errs, fmt.Errorf("%s: %s", f.Check, f.Message))
	}
	return errors.Join(errs...)
}

// Local reachability probes. Tests replace them.
var (
	checkPort = netutil.CheckPort
	ping      = netutil.Ping
)

// Run executes every check against the host reachable through exec.
// The returned error covers transport failures only; check failures are
// reported as findings.
func Run(ctx context.Context, exec ssh.Executor, cfg *config.Config) (*Report, error) {
	report := &Report{}

	checkReachability(ctx, cfg, report)

	if err := checkOS(ctx, exec, report); err != nil {
		return report, err
	}
	if err := checkResources(ctx, exec, cfg, report); err != nil {
		return report, err
	}
	if err := checkTools(ctx, exec, report); err != nil {
		return report, err
	}

	for _, w := range cfg.Warnings() {
		report.add("config", SeverityWarning, "%s", w)
	}
	return report, nil
}

// checkReachability probes SSH and ICMP from the operator machine. Both are
// advisory: ICMP is often filtered and SSH has already been exercised by
// the time remote checks run.
func checkReachability(ctx context.Context, cfg *config.Config, report *Report) {
	host := cfg.Server.Host
	port := cfg.Server.SSHPort
	if port == 0 {
		port = config.DefaultSSHPort
	}

	tasks := []async.Task{
		{Name: "tcp", Func: func(ctx context.Context) error {
			if err := checkPort(ctx, host, port); err != nil {
				report.add("reachability", SeverityWarning, "SSH port %d not reachable from here: %v", port, err)
			}
			return nil
		}},
		{Name: "icmp", Func: func(ctx context.Context) error {
			stats, err := ping(ctx, host, pingCount, reachabilityTTL)
			switch {
			case err != nil:
				report.add("reachability", SeverityWarning, "ICMP probe failed: %v", err)
			case stats.Received == 0:
				report.add("reachability", SeverityWarning, "no ICMP replies from %s (may be filtered)", host)
			case stats.Loss > 0:
				report.add("reachability", SeverityWarning, "%.0f%% packet loss to %s", stats.Loss, host)
			}
			return nil
		}},
	}
	_ = async.RunParallel(ctx, tasks)
}

func checkOS(ctx context.Context, exec ssh.Executor, report *Report) error {
	data, err := exec.ReadFile(ctx, "/etc/os-release")
	if err != nil {
		var cmdErr *ssh.CommandError
		if errors.As(err, &cmdErr) {
			report.add("os", SeverityError, "cannot read /etc/os-release")
			return nil
		}
		return fmt.Errorf("failed to read os-release: %w", err)
	}

	report.OS = ParseOSRelease(string(data))
	switch {
	case report.OS.ID != "debian":
		report.add("os", SeverityError, "unsupported distribution %q, Debian %d or newer is required", report.OS.ID, MinDebianMajor)
	case report.OS.Major() < MinDebianMajor:
		report.add("os", SeverityError, "Debian %s is too old, %d or newer is required", report.OS.VersionID, MinDebianMajor)
	}
	return nil
}

// ParseOSRelease parses the KEY=value lines of /etc/os-release.
func ParseOSRelease(content string) OSInfo {
	values := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || strings.HasPrefix(key, "#") {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}
	return OSInfo{
		ID:         values["ID"],
		VersionID:  values["VERSION_ID"],
		PrettyName: values["PRETTY_NAME"],
		Codename:   values["VERSION_CODENAME"],
	}
}

func checkResources(ctx context.Context, exec ssh.Executor, cfg *config.Config, report *Report) error {
	meminfo, err := ssh.Output(ctx, exec, "grep MemTotal /proc/meminfo")
	if err != nil {
		return fmt.Errorf("failed to read memory size: %w", err)
	}
	report.Resources.MemoryMB = parseMemTotal(meminfo)

	cpus, err := ssh.Output(ctx, exec, "nproc")
	if err != nil {
		return fmt.Errorf("failed to read CPU count: %w", err)
	}
	report.Resources.CPUs, _ = strconv.Atoi(strings.TrimSpace(cpus))

	df, err := ssh.Output(ctx, exec, "df -BG --output=avail / | tail -1")
	if err != nil {
		return fmt.Errorf("failed to read free disk: %w", err)
	}
	report.Resources.DiskFreeGB, _ = strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(df), "G"))

	if report.Resources.MemoryMB < MinMemoryMB {
		report.add("resources", SeverityWarning, "only %d MB of memory, at least %d MB is recommended",
			report.Resources.MemoryMB, MinMemoryMB)
	}
	if report.Resources.DiskFreeGB < MinDiskFreeGB {
		report.add("resources", SeverityWarning, "only %d GB free on /, at least %d GB is recommended",
			report.Resources.DiskFreeGB, MinDiskFreeGB)
	}

	total := 0
	for _, w := range config.Workloads {
		pool, _ := cfg.Resources.Pool(w)
		mb, err := config.ParseMemoryMB(pool.Memory)
		if err != nil {
			continue
		}
		total += mb
	}
	if report.Resources.MemoryMB > 0 && total > report.Resources.MemoryMB {
		report.add("resources", SeverityWarning, "workload memory limits (%d MB) exceed host memory (%d MB)",
			total, report.Resources.MemoryMB)
	}
	return nil
}

// parseMemTotal converts "MemTotal:  65843212 kB" to megabytes.
func parseMemTotal(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	kb, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return kb / 1024
}

func checkTools(ctx context.Context, exec ssh.Executor, report *Report) error {
	results, err := prerequisites.CheckAll(ctx, exec)
	if err != nil {
		return err
	}
	if err := results.Error(); err != nil {
		report.add("tools", SeverityError, "%v", err)
	}
	for _, tool := range results.Missing {
		if !tool.Required {
			report.add("tools", SeverityWarning, "%s is missing and will be installed when needed", tool.Name)
		}
	}
	return nil
}
