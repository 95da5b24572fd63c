// Package interactive provides the interactive command-line interface
// for sila-client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/sila-protocol/sila-go/pkg/connection"
	"github.com/sila-protocol/sila-go/pkg/core"
	"github.com/sila-protocol/sila-go/pkg/discovery"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/inspect"
	"github.com/sila-protocol/sila-go/pkg/model"
	"github.com/sila-protocol/sila-go/pkg/service"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// defaultWatchCount is how many updates watch prints without a count.
const defaultWatchCount = 5

// watchTimeout bounds a watch command.
const watchTimeout = time.Minute

// Console handles interactive mode for sila-client.
type Console struct {
	config    Config
	formatter *inspect.Formatter
	rl        *readline.Instance
	out       io.Writer

	mu      sync.Mutex
	session *session
}

// New creates a new interactive console.
func New(config Config) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sila-client> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := NewWithOutput(config, rl.Stdout())
	c.rl = rl
	return c, nil
}

// NewWithOutput creates a console without line editing that writes to out.
// Commands are passed to Execute.
func NewWithOutput(config Config, out io.Writer) *Console {
	f := inspect.NewFormatter()
	f.MarkUnimplemented = false
	return &Console{config: config, formatter: f, out: out}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	if c.rl == nil {
		return c.out
	}
	return c.rl.Stdout()
}

// Close ends the connection.
func (c *Console) Close() {
	c.replaceSession(nil)
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

	case "discover":
		c.cmdDiscover(ctx)

	case "connect":
		c.cmdConnect(ctx, args)

	case "disconnect":
		c.replaceSession(nil)
		fmt.Fprintln(c.out, "Disconnected")

	case "status":
		c.cmdStatus(ctx)

	case "features", "inspect", "i":
		c.cmdFeatures(args)

	case "get", "g":
		c.cmdGet(ctx, args)

	case "watch", "w":
		c.cmdWatch(ctx, args)

	case "call", "c":
		c.cmdCall(ctx, args)

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
SiLA Client Commands:
  Discovery & Connection:
    discover                 - Find servers on the local network
    connect <address|uuid>   - Connect to a server
    disconnect               - Close the connection
    status                   - Show the connection state

  Inspection:
    features [path]          - List features (or one feature)
    get <path>               - Read a property
    watch <path> [count]     - Print updates of an observable property
    call <path> [k=v ...]    - Run a command and print its responses

  General:
    help                     - Show this help
    quit                     - Exit client

  Path Format:
    Feature/Member, e.g. GreetingProvider/SayHello
    or a fully qualified identifier`)
}

func (c *Console) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// replaceSession installs s and closes the previous session.
func (c *Console) replaceSession(s *session) {
	c.mu.Lock()
	old := c.session
	c.session = s
	c.mu.Unlock()
	if old != nil {
		_ = old.manager.Close()
	}
}

// connected returns the current client and its feature registry.
func (c *Console) connected() (*service.Client, *model.Registry, bool) {
	s := c.current()
	if s == nil {
		fmt.Fprintln(c.out, "Not connected (use 'connect <address|uuid>')")
		return nil, nil, false
	}
	client, err := s.client()
	if err != nil {
		fmt.Fprintf(c.out, "Not connected to %s (%s)\n", s.target, s.manager.State())
		return nil, nil, false
	}
	reg, err := s.features()
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return nil, nil, false
	}
	return client, reg, true
}

func (c *Console) resolve(reg *model.Registry, path string) (fqi.FQI, bool) {
	id, err := inspect.Resolve(reg, path)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid path: %v\n", err)
		return fqi.FQI{}, false
	}
	return id, true
}

func (c *Console) cmdDiscover(ctx context.Context) {
	if c.config.Browser == nil {
		fmt.Fprintln(c.out, "Discovery is disabled")
		return
	}
	timeout := c.config.BrowseTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	fmt.Fprintln(c.out, "Discovering servers...")

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	servers, err := Discover(browseCtx, c.config.Browser)
	if err != nil {
		fmt.Fprintf(c.out, "Discovery error: %v\n", err)
		return
	}
	if len(servers) == 0 {
		fmt.Fprintln(c.out, "No servers found")
		return
	}
	fmt.Fprintf(c.out, "Found %d server(s):\n", len(servers))
	for _, s := range servers {
		fmt.Fprint(c.out, FormatServer(s))
	}
}

// Discover collects the servers seen until ctx is done.
func Discover(ctx context.Context, browser discovery.Browser) ([]*discovery.ServerService, error) {
	results, err := browser.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var servers []*discovery.ServerService
	for {
		select {
		case s, ok := <-results:
			if !ok {
				return sortServers(servers), nil
			}
			servers = append(servers, s)
		case <-ctx.Done():
			return sortServers(servers), nil
		}
	}
}

func sortServers(servers []*discovery.ServerService) []*discovery.ServerService {
	sort.Slice(servers, func(i, j int) bool {
		if servers[i].Name != servers[j].Name {
			return servers[i].Name < servers[j].Name
		}
		return servers[i].UUID < servers[j].UUID
	})
	return servers
}

// FormatServer formats a discovered server on two lines.
func FormatServer(s *discovery.ServerService) string {
	port := strconv.Itoa(int(s.Port))
	addrs := make([]string, len(s.Addresses))
	for i, a := range s.Addresses {
		addrs[i] = joinHostPort(a, port)
	}
	security := ""
	if s.Secure {
		security = ", TLS"
	}
	return fmt.Sprintf("  %s (%s %s%s)\n      UUID: %s  Addresses: %s\n",
		s.Name, s.Type, s.Version, security, s.UUID, strings.Join(addrs, " "))
}

func joinHostPort(host, port string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: connect <address|uuid>")
		fmt.Fprintln(c.out, "  Example: connect 192.168.1.20:50052")
		return
	}
	target := args[0]
	c.replaceSession(nil)

	s := newSession(target, c.config)
	s.manager.OnStateChange(func(oldState, newState connection.State) {
		if oldState == connection.StateConnecting || newState == connection.StateConnecting || newState == connection.StateClosed {
			return
		}
		fmt.Fprintf(c.out, "\n[EVENT] %s: %s -> %s\n", target, oldState, newState)
	})

	fmt.Fprintf(c.out, "Connecting to %s...\n", target)
	if err := s.manager.Connect(ctx); err != nil {
		_ = s.manager.Close()
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return
	}
	c.replaceSession(s)

	client, err := s.client()
	if err != nil {
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return
	}
	name, err := client.GetProperty(ctx, core.FeatureID.Property("ServerName").String())
	if err != nil {
		fmt.Fprintf(c.out, "Connected to %s\n", client.RemoteAddr())
		return
	}
	fmt.Fprintf(c.out, "Connected to %q at %s\n", name.String, client.RemoteAddr())
}

func (c *Console) cmdStatus(ctx context.Context) {
	s := c.current()
	if s == nil {
		fmt.Fprintln(c.out, "Not connected")
		return
	}
	fmt.Fprintf(c.out, "Server:      %s\n", s.target)
	fmt.Fprintf(c.out, "State:       %s\n", s.manager.State())
	if n := s.manager.Attempts(); n > 0 {
		fmt.Fprintf(c.out, "Attempts:    %d\n", n)
	}

	client, err := s.client()
	if err != nil {
		return
	}
	fmt.Fprintf(c.out, "Remote:      %s\n", client.RemoteAddr())
	fmt.Fprintf(c.out, "TLS:         %t\n", client.Secure())
	for _, p := range []string{"ServerName", "ServerType", "ServerUUID", "ServerVersion"} {
		v, err := client.GetProperty(ctx, core.FeatureID.Property(p).String())
		if err != nil {
			continue
		}
		label := strings.TrimPrefix(p, "Server") + ":"
		fmt.Fprintf(c.out, "%-12s %s\n", label, v.String)
	}
	if reg, err := s.features(); err == nil {
		fmt.Fprintf(c.out, "Features:    %d\n", len(reg.Features()))
	}
}

func (c *Console) cmdFeatures(args []string) {
	_, reg, ok := c.connected()
	if !ok {
		return
	}
	inspector := inspect.NewInspector(reg)
	if len(args) == 0 {
		fmt.Fprint(c.out, c.formatter.FormatFeatures(inspector.Features()))
		return
	}
	id, ok := c.resolve(reg, args[0])
	if !ok {
		return
	}
	info, err := inspector.InspectFeature(id)
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
	client, reg, ok := c.connected()
	if !ok {
		return
	}
	id, ok := c.resolve(reg, args[0])
	if !ok {
		return
	}
	value, err := inspect.NewRemoteInspector(client).ReadProperty(ctx, id)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s = %s\n", id.Identifier(), c.formatter.FormatValue(value))
}

func (c *Console) cmdWatch(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.out, "Usage: watch <path> [count]")
		fmt.Fprintln(c.out, "  Example: watch ObservablePropertyTest/Editable 3")
		return
	}
	count := defaultWatchCount
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			fmt.Fprintf(c.out, "Invalid count: %s\n", args[1])
			return
		}
		count = n
	}
	client, reg, ok := c.connected()
	if !ok {
		return
	}
	id, ok := c.resolve(reg, args[0])
	if !ok {
		return
	}
	if p, found := reg.Property(id); !found || !p.Observable {
		fmt.Fprintf(c.out, "Error: %s is not an observable property\n", id.Identifier())
		return
	}

	ctx, cancel := context.WithTimeout(ctx, watchTimeout)
	defer cancel()
	stream, err := client.SubscribeProperty(ctx, id.String())
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	defer func() {
		_ = stream.Close(context.Background())
	}()

	for seen := 0; seen < count; seen++ {
		select {
		case v, ok := <-stream.Values():
			if !ok {
				if err := stream.Err(); err != nil {
					fmt.Fprintf(c.out, "Error: %v\n", err)
				}
				return
			}
			fmt.Fprintf(c.out, "%s = %s\n", id.Identifier(), c.formatter.FormatValue(v.Value))
		case <-ctx.Done():
			fmt.Fprintln(c.out, "Watch timed out")
			return
		}
	}
}

func (c *Console) cmdCall(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: call <path> [name=value ...]")
		fmt.Fprintln(c.out, "  Example: call ObservableCommandTest/Count N=5 Delay=1")
		return
	}
	client, reg, ok := c.connected()
	if !ok {
		return
	}
	id, ok := c.resolve(reg, args[0])
	if !ok {
		return
	}
	cmd, err := inspect.NewInspector(reg).Command(id)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	params, err := inspect.ParseParameters(cmd, args[1:])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	responses, err := inspect.NewRemoteInspector(client).Call(ctx, id, params, func(info wire.ExecutionInfoPayload) {
		fmt.Fprintf(c.out, "  [%s]\n", c.formatter.FormatExecution(info))
	})
	if err != nil {
		fmt.Fprintf(c.out, "Call failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s:\n%s", id.Identifier(), c.formatter.FormatResponses(responses))
}
