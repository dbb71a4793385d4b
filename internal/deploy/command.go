package deploy

import (
	"bytes"
	"os/exec"
	"strings"
)

// CommandExecutor is one buildable process: configure stdin, run it once,
// collect combined output. Deployment flows hold this instead of *exec.Cmd
// so tests never spawn ssh.
type CommandExecutor interface {
	// Run executes the command and returns combined stdout and stderr.
	Run() ([]byte, error)

	// SetStdin supplies stdin for the command.
	SetStdin(stdin []byte)
}

// CommandBuilder constructs the processes an Executor spawns. The real
// builder wraps os/exec; MockCommandBuilder records and scripts them.
type CommandBuilder interface {
	// BuildCommand prepares a process from an argument vector.
	BuildCommand(name string, args ...string) CommandExecutor

	// BuildShellCommand prepares a process that runs through sh -c.
	BuildShellCommand(command string) CommandExecutor
}

// RealCommandBuilder implements CommandBuilder on os/exec.
type RealCommandBuilder struct{}

// NewRealCommandBuilder creates the production command builder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

// BuildCommand prepares a process for the given argument vector.
func (b *RealCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	return &realCommand{cmd: exec.Command(name, args...)}
}

// BuildShellCommand prepares a process that runs command through sh -c.
func (b *RealCommandBuilder) BuildShellCommand(command string) CommandExecutor {
	return &realCommand{cmd: exec.Command("sh", "-c", command)}
}

type realCommand struct {
	cmd *exec.Cmd
}

func (c *realCommand) Run() ([]byte, error) {
	return c.cmd.CombinedOutput()
}

func (c *realCommand) SetStdin(stdin []byte) {
	c.cmd.Stdin = bytes.NewReader(stdin)
}

// MockResponse is the scripted result of one mocked command.
type MockResponse struct {
	Output []byte
	Err    error
}

// MockBuiltCommand records one command a flow under test tried to run.
type MockBuiltCommand struct {
	Name  string
	Args  []string
	Shell bool

	// Stdin holds whatever the flow piped into the command.
	Stdin []byte
}

// String renders the command the way it would appear in a shell, which
// keeps test assertions readable.
func (c MockBuiltCommand) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// MockCommandBuilder implements CommandBuilder for tests. Every built
// command is recorded. Results come from the Respond hook when set,
// otherwise from the Responses queue in order, otherwise empty success.
type MockCommandBuilder struct {
	Commands  []MockBuiltCommand
	Responses []MockResponse

	// Respond, when set, picks the response per command and bypasses
	// the Responses queue.
	Respond func(name string, args []string) MockResponse

	next int
}

// NewMockCommandBuilder creates an empty mock builder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// BuildCommand records the command and returns its scripted executor.
func (b *MockCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	return b.record(MockBuiltCommand{Name: name, Args: args})
}

// BuildShellCommand records a sh -c command and returns its scripted executor.
func (b *MockCommandBuilder) BuildShellCommand(command string) CommandExecutor {
	return b.record(MockBuiltCommand{Name: "sh", Args: []string{"-c", command}, Shell: true})
}

func (b *MockCommandBuilder) record(cmd MockBuiltCommand) *MockCommandExecutor {
	b.Commands = append(b.Commands, cmd)
	resp := b.response(cmd)
	return &MockCommandExecutor{
		Output:  resp.Output,
		Err:     resp.Err,
		builder: b,
		index:   len(b.Commands) - 1,
	}
}

func (b *MockCommandBuilder) response(cmd MockBuiltCommand) MockResponse {
	if b.Respond != nil {
		return b.Respond(cmd.Name, cmd.Args)
	}
	if b.next < len(b.Responses) {
		resp := b.Responses[b.next]
		b.next++
		return resp
	}
	return MockResponse{}
}

// Reply queues a response for the next unscripted command. Returns the
// builder so setup can chain.
func (b *MockCommandBuilder) Reply(output string, err error) *MockCommandBuilder {
	b.Responses = append(b.Responses, MockResponse{Output: []byte(output), Err: err})
	return b
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}

// FindCommand returns the first recorded command whose rendered form
// contains substr, or nil.
func (b *MockCommandBuilder) FindCommand(substr string) *MockBuiltCommand {
	for i := range b.Commands {
		if strings.Contains(b.Commands[i].String(), substr) {
			return &b.Commands[i]
		}
	}
	return nil
}

// Reset clears recorded commands and scripted responses.
func (b *MockCommandBuilder) Reset() {
	b.Commands = nil
	b.Responses = nil
	b.Respond = nil
	b.next = 0
}

// MockCommandExecutor is the CommandExecutor handed out by
// MockCommandBuilder. It also works standalone as a canned command.
type MockCommandExecutor struct {
	Output    []byte
	Err       error
	Stdin     []byte
	RunCalled bool

	builder *MockCommandBuilder
	index   int
}

// Run marks the command executed and returns the scripted result.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	return m.Output, m.Err
}

// SetStdin records stdin on the executor and on the builder's command
// record, so flows that pipe content stay assertable.
func (m *MockCommandExecutor) SetStdin(stdin []byte) {
	m.Stdin = stdin
	if m.builder != nil {
		m.builder.Commands[m.index].Stdin = stdin
	}
}
