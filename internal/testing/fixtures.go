package testing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh/sshtest"
)

// HostFixture provides a pre-scripted fake host for common test scenarios.
type HostFixture struct {
	fake *sshtest.Fake
}

// NewHostFixture creates a fixture describing a healthy, well-sized server
// where every looked-up command is installed.
func NewHostFixture() *HostFixture {
	f := sshtest.New()
	f.On(`^command -v `, ssh.Result{Stdout: "/usr/bin/tool\n"})
	f.On(`grep MemTotal /proc/meminfo`, ssh.Result{Stdout: "MemTotal:       65843212 kB\n"})
	f.On(`^nproc$`, ssh.Result{Stdout: "8\n"})
	f.On(`^df -BG`, ssh.Result{Stdout: "412G\n"})
	fixture := &HostFixture{fake: f}
	return fixture.Debian(13)
}

// Fake returns the underlying fake for custom configuration.
func (h *HostFixture) Fake() *sshtest.Fake {
	return h.fake
}

// Debian sets /etc/os-release to the given Debian major release.
func (h *HostFixture) Debian(major int) *HostFixture {
	codenames := map[int]string{11: "bullseye", 12: "bookworm", 13: "trixie"}
	h.fake.SetFile("/etc/os-release", []byte(fmt.Sprintf(
		"PRETTY_NAME=\"Debian GNU/Linux %d (%s)\"\nNAME=\"Debian GNU/Linux\"\nVERSION_ID=\"%d\"\nVERSION_CODENAME=%s\nID=debian\n",
		major, codenames[major], major, codenames[major])))
	return h
}

// OS sets /etc/os-release to an arbitrary distribution.
func (h *HostFixture) OS(id, version string) *HostFixture {
	h.fake.SetFile("/etc/os-release", []byte(fmt.Sprintf("ID=%s\nVERSION_ID=\"%s\"\nPRETTY_NAME=\"%s %s\"\n", id, version, id, version)))
	return h
}

// Memory overrides the reported memory size in gigabytes.
func (h *HostFixture) Memory(gb int) *HostFixture {
	h.fake.On(`grep MemTotal /proc/meminfo`, ssh.Result{Stdout: fmt.Sprintf("MemTotal: %d kB\n", gb*1024*1024)})
	return h
}

// DiskFree overrides the free space on / in gigabytes.
func (h *HostFixture) DiskFree(gb int) *HostFixture {
	h.fake.On(`^df -BG`, ssh.Result{Stdout: fmt.Sprintf("%dG\n", gb)})
	return h
}

// Missing makes `command -v name` fail.
func (h *HostFixture) Missing(name string) *HostFixture {
	h.fake.On(`^command -v '`+name+`'$`, ssh.Result{ExitCode: 1})
	return h
}

var (
	pushPattern = regexp.MustCompile(`^incus file push --mode \d+(?: --uid \d+)?(?: --gid \d+)? '([^']+)' '([^'/]+)(/[^']*)'$`)
	catPattern  = regexp.MustCompile(`^incus exec (\S+) -- bash -c 'cat '"'"'([^']+)'"'"''$`)
	testPattern = regexp.MustCompile(`^incus exec (\S+) -- bash -c 'test -e '"'"'([^']+)'"'"''$`)
	rmPattern   = regexp.MustCompile(`^incus exec (\S+) -- bash -c 'rm -f '"'"'([^']+)'"'"''$`)
	execPattern = regexp.MustCompile(`^incus exec (\S+) -- bash -c '(.*)'$`)
	dpkgPattern = regexp.MustCompile(`^dpkg-query -W -f='\$\{Status\}' '([^']+)'$`)
)

// Unwrap splits a recorded command into the workload it ran in ("" for the
// host) and the command as written by the caller.
func Unwrap(command string) (workload, inner string) {
	m := execPattern.FindStringSubmatch(command)
	if m == nil {
		return "", command
	}
	return m[1], strings.ReplaceAll(m[2], `'"'"'`, `'`)
}

// EmulatePackages answers dpkg-query probes from the apt-get install
// commands that already ran on the same host or workload.
func (h *HostFixture) EmulatePackages() *HostFixture {
	f := h.fake
	f.OnFunc(`dpkg-query -W`, func(cmd string) ssh.Result {
		target, inner := Unwrap(cmd)
		m := dpkgPattern.FindStringSubmatch(inner)
		if m == nil {
			return ssh.Result{ExitCode: 1}
		}
		for _, c := range f.Commands() {
			w, ran := Unwrap(c)
			if w == target && strings.Contains(ran, "apt-get install ") && strings.Contains(ran, " "+ssh.Quote(m[1])) {
				return ssh.Result{Stdout: "install ok installed"}
			}
		}
		return ssh.Result{ExitCode: 1, Stderr: "dpkg-query: no packages found matching " + m[1]}
	})
	return h
}

// WorkloadFile is the virtual path under which EmulateWorkloadFiles keeps a
// file of a workload.
func WorkloadFile(workload, path string) string {
	return workload + ":" + path
}

// EmulateWorkloadFiles makes incus file push, and cat, test -e and rm -f
// inside workloads, operate on the virtual filesystem under WorkloadFile keys.
func (h *HostFixture) EmulateWorkloadFiles() *HostFixture {
	f := h.fake
	f.OnFunc(`^incus file push `, func(cmd string) ssh.Result {
		m := pushPattern.FindStringSubmatch(cmd)
		if m == nil {
			return ssh.Result{ExitCode: 1, Stderr: "unexpected push: " + cmd}
		}
		tmp, ok := f.File(m[1])
		if !ok {
			return ssh.Result{ExitCode: 1, Stderr: "Error: stat " + m[1] + ": no such file"}
		}
		f.SetFile(WorkloadFile(m[2], m[3]), tmp.Content)
		return ssh.Result{}
	})
	f.OnFunc(`^incus exec \S+ -- bash -c 'cat '`, func(cmd string) ssh.Result {
		m := catPattern.FindStringSubmatch(cmd)
		if m == nil {
			return ssh.Result{ExitCode: 1}
		}
		file, ok := f.File(WorkloadFile(m[1], m[2]))
		if !ok {
			return ssh.Result{ExitCode: 1, Stderr: "cat: " + m[2] + ": No such file or directory"}
		}
		return ssh.Result{Stdout: string(file.Content)}
	})
	f.OnFunc(`^incus exec \S+ -- bash -c 'test -e '`, func(cmd string) ssh.Result {
		m := testPattern.FindStringSubmatch(cmd)
		if m == nil {
			return ssh.Result{ExitCode: 1}
		}
		if _, ok := f.File(WorkloadFile(m[1], m[2])); ok {
			return ssh.Result{}
		}
		return ssh.Result{ExitCode: 1}
	})
	f.OnFunc(`^incus exec \S+ -- bash -c 'rm -f '`, func(cmd string) ssh.Result {
		if m := rmPattern.FindStringSubmatch(cmd); m != nil {
			f.RemoveFile(WorkloadFile(m[1], m[2]))
		}
		return ssh.Result{}
	})
	return h
}
