// Package sshtest provides a scripted in-memory ssh.Executor for tests.
//
// The fake records every command, answers commands from registered rules
// (the most recently registered match wins, unmatched commands succeed with
// empty output) and keeps a virtual filesystem that backs Exists, ReadFile,
// Materialize and Append. An unmatched `rm -f '<path>'` removes the file.
package sshtest

import (
	"context"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/conway-vibehost/vibehost-setup/internal/platform/ssh"
)

// Call is one recorded command.
type Call struct {
	Command string
	Options ssh.ExecOptions
	Stdin   string
}

// Responder computes a result for a matched command.
type Responder func(command string) ssh.Result

type rule struct {
	pattern *regexp.Regexp
	respond Responder
}

// File is a file in the virtual filesystem.
type File struct {
	Content []byte
	Spec    ssh.FileSpec
}

// Fake is an in-memory ssh.Executor.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	calls []Call
	files map[string]*File
	// Writes records Materialize and Append targets in order.
	writes []string
	// FailWrites makes Materialize and Append to matching paths fail.
	failWrites *regexp.Regexp
}

var _ ssh.Executor = (*Fake)(nil)

var removePattern = regexp.MustCompile(`^rm -f '([^']+)'$`)

// New returns an empty fake.
func New() *Fake {
	return &Fake{files: make(map[string]*File)}
}

// On registers a fixed result for commands matching the regular expression.
func (f *Fake) On(pattern string, res ssh.Result) *Fake {
	return f.OnFunc(pattern, func(string) ssh.Result { return res })
}

// OnFunc registers a responder for commands matching the regular expression.
// Rules registered later take precedence.
func (f *Fake) OnFunc(pattern string, respond Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append([]rule{{pattern: regexp.MustCompile(pattern), respond: respond}}, f.rules...)
	return f
}

// FailWritesTo makes writes to paths matching pattern return ssh.ErrWrite.
func (f *Fake) FailWritesTo(pattern string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = regexp.MustCompile(pattern)
	return f
}

// SetFile places a file in the virtual filesystem.
func (f *Fake) SetFile(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = &File{Content: append([]byte(nil), content...)}
}

// RemoveFile deletes a file from the virtual filesystem.
func (f *Fake) RemoveFile(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

// File returns a copy of a virtual file.
func (f *Fake) File(path string) (File, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	if !ok {
		return File{}, false
	}
	return File{Content: append([]byte(nil), file.Content...), Spec: file.Spec}, true
}

// Paths returns the sorted paths in the virtual filesystem.
func (f *Fake) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.files))
	for p := range f.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Calls returns the recorded commands.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns the recorded command strings.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Command)
	}
	return out
}

// Writes returns the paths written so far, in order.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// Count returns how many recorded commands match pattern.
func (f *Fake) Count(pattern string) int {
	re := regexp.MustCompile(pattern)
	n := 0
	for _, c := range f.Commands() {
		if re.MatchString(c) {
			n++
		}
	}
	return n
}

// Ran reports whether any recorded command matches pattern.
func (f *Fake) Ran(pattern string) bool {
	return f.Count(pattern) > 0
}

// Reset forgets recorded calls and writes but keeps rules and files.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.writes = nil
}

// Execute records the command and answers it from the rules.
func (f *Fake) Execute(ctx context.Context, command string, opts ssh.ExecOptions) (*ssh.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stdin string
	if opts.Stdin != nil {
		data, _ := io.ReadAll(opts.Stdin)
		stdin = string(data)
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Command: command, Options: opts, Stdin: stdin})
	var respond Responder
	for _, r := range f.rules {
		if r.pattern.MatchString(command) {
			respond = r.respond
			break
		}
	}
	f.mu.Unlock()

	res := ssh.Result{}
	switch {
	case respond != nil:
		res = respond(command)
	case removePattern.MatchString(command):
		f.RemoveFile(removePattern.FindStringSubmatch(command)[1])
	}
	if !opts.Capture {
		res.Stdout = ""
	}
	if res.ExitCode != 0 && !opts.TolerateFailure {
		shown := command
		if opts.Sensitive {
			shown = "<redacted>"
		}
		return &res, &ssh.CommandError{Command: shown, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return &res, nil
}

// Exists reports whether path is in the virtual filesystem.
func (f *Fake) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Command: "test -e " + ssh.Quote(path)})
	if _, ok := f.files[path]; ok {
		return true, nil
	}
	// Directories exist when some file lives below them.
	prefix := strings.TrimSuffix(path, "/") + "/"
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// ReadFile returns a virtual file's content.
func (f *Fake) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Command: "cat " + ssh.Quote(path)})
	file, ok := f.files[path]
	if !ok {
		return nil, &ssh.CommandError{Command: "cat " + ssh.Quote(path), ExitCode: 1, Stderr: "cat: " + path + ": No such file or directory"}
	}
	return append([]byte(nil), file.Content...), nil
}

// Materialize replaces a virtual file.
func (f *Fake) Materialize(ctx context.Context, path string, content []byte, spec ssh.FileSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, path)
	if f.failWrites != nil && f.failWrites.MatchString(path) {
		return ssh.ErrWrite
	}
	f.files[path] = &File{Content: append([]byte(nil), content...), Spec: spec}
	return nil
}

// Append extends a virtual file, creating it if needed.
func (f *Fake) Append(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, path)
	if f.failWrites != nil && f.failWrites.MatchString(path) {
		return ssh.ErrWrite
	}
	file, ok := f.files[path]
	if !ok {
		file = &File{Spec: ssh.FileSpec{Mode: 0o644}}
		f.files[path] = file
	}
	file.Content = append(file.Content, content...)
	return nil
}
