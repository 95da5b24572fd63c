// Package interactive provides the interactive command-line interface
// for sila-server.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/inspect"
	"github.com/sila-protocol/sila-go/pkg/service"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Console handles interactive mode for sila-server. Calls go through a
// client connected to the server's own listener, so they take the same
// path as remote requests.
type Console struct {
	svc       *service.Server
	remote    *inspect.RemoteInspector
	inspector *inspect.Inspector
	formatter *inspect.Formatter
	rl        *readline.Instance
	out       io.Writer
}

// New creates a new interactive console. The client must be connected to
// svc.
func New(svc *service.Server, client inspect.Caller) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sila> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsole(svc, client, rl.Stdout())
	c.rl = rl
	svc.OnEvent(c.handleEvent)
	return c, nil
}

func newConsole(svc *service.Server, client inspect.Caller, out io.Writer) *Console {
	return &Console{
		svc:       svc,
		remote:    inspect.NewRemoteInspector(client),
		inspector: inspect.NewInspector(svc.Registry()),
		formatter: inspect.NewFormatter(),
		out:       out,
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the console
// should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "features", "inspect", "i":
		c.cmdFeatures(args)

	case "get", "g":
		c.cmdGet(ctx, args)

	case "call", "c":
		c.cmdCall(ctx, args)

	case "info":
		c.cmdInfo()

	case "rename":
		c.cmdRename(ctx, args)

	case "connections", "conns":
		fmt.Fprintf(c.out, "%d client connection(s)\n", c.svc.ConnectionCount())

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
SiLA Server Commands:
  Inspection:
    features [path]          - List features (or one feature)
    get <path>               - Read a property
    call <path> [k=v ...]    - Run a command and print its responses

  Server:
    info                     - Show server identity and state
    rename <name>            - Change the server name
    connections              - Show the number of client connections

  General:
    help                     - Show this help
    quit                     - Exit server

  Path Format:
    Feature/Member, e.g. GreetingProvider/SayHello
    or a fully qualified identifier`)
}

func (c *Console) resolve(path string) (fqi.FQI, bool) {
	id, err := inspect.Resolve(c.svc.Registry(), path)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid path: %v\n", err)
		return fqi.FQI{}, false
	}
	return id, true
}

func (c *Console) cmdFeatures(args []string) {
	if len(args) == 0 {
		fmt.Fprint(c.out, c.formatter.FormatFeatures(c.inspector.Features()))
		return
	}
	id, ok := c.resolve(args[0])
	if !ok {
		return
	}
	info, err := c.inspector.InspectFeature(id)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(c.out, c.formatter.FormatFeature(*info))
}

func (c *Console) cmdGet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: get <path>")
		fmt.Fprintln(c.out, "  Example: get GreetingProvider/StartYear")
		return
	}
	id, ok := c.resolve(args[0])
	if !ok {
		return
	}
	value, err := c.remote.ReadProperty(ctx, id)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s = %s\n", id.Identifier(), c.formatter.FormatValue(value))
}

func (c *Console) cmdCall(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: call <path> [name=value ...]")
		fmt.Fprintln(c.out, "  Example: call ObservableCommandTest/Count N=5 Delay=1")
		return
	}
	id, ok := c.resolve(args[0])
	if !ok {
		return
	}
	cmd, err := c.inspector.Command(id)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	params, err := inspect.ParseParameters(cmd, args[1:])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	responses, err := c.remote.Call(ctx, id, params, func(info wire.ExecutionInfoPayload) {
		fmt.Fprintf(c.out, "  [%s]\n", c.formatter.FormatExecution(info))
	})
	if err != nil {
		fmt.Fprintf(c.out, "Call failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s:\n%s", id.Identifier(), c.formatter.FormatResponses(responses))
}

func (c *Console) cmdInfo() {
	info := c.svc.Core().Info()
	addr := "-"
	if a := c.svc.Addr(); a != nil {
		addr = a.String()
	}
	fmt.Fprintf(c.out, "Name:        %s\n", info.Name)
	fmt.Fprintf(c.out, "Type:        %s\n", info.Type)
	fmt.Fprintf(c.out, "UUID:        %s\n", info.UUID)
	fmt.Fprintf(c.out, "Version:     %s\n", info.Version)
	if info.Description != "" {
		fmt.Fprintf(c.out, "Description: %s\n", info.Description)
	}
	fmt.Fprintf(c.out, "Address:     %s\n", addr)
	fmt.Fprintf(c.out, "State:       %s\n", c.svc.State())
}

func (c *Console) cmdRename(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: rename <name>")
		return
	}
	name := strings.Join(args, " ")
	_, err := c.remote.Call(ctx, core.FeatureID.Command("SetServerName"),
		map[string]wire.Value{"ServerName": wire.Str(name)}, nil)
	if err != nil {
		fmt.Fprintf(c.out, "Rename failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) handleEvent(event service.Event) {
	switch event.Type {
	case service.EventConnected:
		fmt.Fprintf(c.out, "\n[EVENT] Client connected: %s\n", event.RemoteAddr)
	case service.EventDisconnected:
		fmt.Fprintf(c.out, "\n[EVENT] Client disconnected: %s\n", event.RemoteAddr)
	case service.EventRenamed:
		fmt.Fprintf(c.out, "\n[EVENT] Server renamed to %q\n", event.Name)
	}
}
