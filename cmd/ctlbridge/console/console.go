// Package console provides the interactive terminal front end for ctlbridge.
//
// Lines typed at the prompt are run on the service's UI loop. While the
// service is waiting for a yes/no answer, the next line answers it instead.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/persistence"
	"github.com/ctlbridge/ctlbridge-go/pkg/profile"
	"github.com/ctlbridge/ctlbridge-go/pkg/service"
)

const owner = "console"

// Console errors.
var (
	ErrUsage         = errors.New("usage")
	ErrUnknownAction = errors.New("unknown command")
	ErrNoInput       = errors.New("no input port for send")
)

// LineReader is the source of console input. *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// Options configures the console.
type Options struct {
	// Reader supplies input lines. Nil means a readline prompt on the terminal.
	Reader LineReader

	// Output receives console text. Nil means the readline stdout, or
	// io.Discard when Reader is set.
	Output io.Writer

	// Input is the port "send" injects device messages into. May be nil.
	Input device.OutputPort

	// Feedback is read for messages sent back to the device, which are
	// printed. May be nil.
	Feedback device.InputPort
}

// Console implements service.FrontEnd on a terminal.
type Console struct {
	deps   service.FrontEndDeps
	reader LineReader
	out    io.Writer
	input  device.OutputPort

	mu      sync.Mutex
	pending chan bool
	closed  bool
	done    chan struct{}
	cancel  context.CancelFunc
	loop    sync.WaitGroup
}

// Factory returns a service.FrontEndFactory building a console with opts.
func Factory(opts Options) service.FrontEndFactory {
	return func(deps service.FrontEndDeps) (service.FrontEnd, error) {
		return New(deps, opts)
	}
}

// New creates the console, registers its listeners and starts reading input.
func New(deps service.FrontEndDeps, opts Options) (*Console, error) {
	c := &Console{
		deps:   deps,
		reader: opts.Reader,
		out:    opts.Output,
		input:  opts.Input,
		done:   make(chan struct{}),
	}
	if c.deps.Translate == nil {
		c.deps.Translate = func(s string) string { return s }
	}
	if c.deps.Logger == nil {
		c.deps.Logger = slog.Default()
	}

	if c.reader == nil {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "ctlbridge> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
			AutoComplete:    completer(deps),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create readline: %w", err)
		}
		c.reader = rl
		if c.out == nil {
			c.out = rl.Stdout()
		}
	}
	if c.out == nil {
		c.out = io.Discard
	}

	if deps.RemoteOut != nil {
		deps.RemoteOut.OnConnection(owner, c.handleConnection)
	}
	if deps.Profiles != nil {
		deps.Profiles.OnProfileChange(owner, c.handleProfileChange)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if opts.Feedback != nil {
		c.loop.Add(1)
		go c.watchFeedback(ctx, opts.Feedback)
	}

	c.loop.Add(1)
	go c.run()
	return c, nil
}

func completer(deps service.FrontEndDeps) readline.AutoCompleter {
	kinds := func() []readline.PrefixCompleterInterface {
		return []readline.PrefixCompleterInterface{
			readline.PcItem("note"),
			readline.PcItem("cc"),
			readline.PcItem("pb"),
		}
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("status"),
		readline.PcItem("profile",
			readline.PcItem("list"),
			readline.PcItem("next"),
			readline.PcItem("prev"),
		),
		readline.PcItem("map", kinds()...),
		readline.PcItem("unmap", kinds()...),
		readline.PcItem("send", kinds()...),
		readline.PcItem("save"),
		readline.PcItem("quit"),
	)
}

// run reads lines until the reader fails or the console closes.
func (c *Console) run() {
	defer c.loop.Done()
	defer crash.Guard(c.deps.PanicHandler)

	for {
		line, err := c.reader.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				c.answer(false)
				continue
			}
			// EOF on input: answer any open question with no and quit.
			c.answer(false)
			if !c.isClosed() {
				c.deps.Quit()
			}
			return
		}

		input := strings.TrimSpace(line)
		if c.answer(isYes(input)) {
			continue
		}
		if input == "" {
			continue
		}

		err = c.deps.PostUI(func() {
			if err := c.Execute(input); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		})
		if errors.Is(err, service.ErrQuitting) {
			return
		}
	}
}

// watchFeedback prints what the bridge sends back to the device.
func (c *Console) watchFeedback(ctx context.Context, port device.InputPort) {
	defer c.loop.Done()
	defer crash.Guard(c.deps.PanicHandler)
	for {
		msg, err := port.Read(ctx)
		if err != nil {
			return
		}
		fmt.Fprintf(c.out, "> %s\n", msg)
	}
}

// answer delivers v to a pending Confirm and reports whether one was waiting.
func (c *Console) answer(v bool) bool {
	c.mu.Lock()
	ch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- v
	return true
}

func isYes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes", "j", "ja", "o", "oui":
		return true
	default:
		return false
	}
}

func (c *Console) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Confirm prints the question and blocks until the next input line.
func (c *Console) Confirm(title, question string) bool {
	ch := make(chan bool, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.pending = ch
	c.mu.Unlock()

	fmt.Fprintf(c.out, "%s\n%s [y/N] ", title, question)
	select {
	case v := <-ch:
		return v
	case <-c.done:
		return false
	}
}

// Alert prints msg.
func (c *Console) Alert(msg string) {
	fmt.Fprintf(c.out, "! %s\n", msg)
}

// SaveProfile saves the profile under the active profile's name, or
// untitled.xml when none is active.
func (c *Console) SaveProfile() error {
	name := ""
	if c.deps.Profiles != nil {
		name = c.deps.Profiles.Current()
	}
	return c.saveAs(name)
}

func (c *Console) saveAs(name string) error {
	if c.deps.Profiles == nil || c.deps.Profile == nil {
		return errors.New("no profile to save")
	}
	if name == "" {
		name = "untitled.xml"
	}
	if !strings.EqualFold(filepath.Ext(name), ".xml") {
		name += ".xml"
	}
	dir := c.deps.Profiles.Directory()
	if dir == "" {
		return errors.New("no profile directory")
	}

	path := filepath.Join(dir, filepath.Base(name))
	if err := persistence.NewXMLFile(path).Save(c.deps.Profile); err != nil {
		return err
	}
	c.deps.Profile.MarkSaved()
	if err := c.deps.Profiles.Rescan(); err != nil {
		c.deps.Logger.Warn("profile rescan failed", "error", err)
	}
	fmt.Fprintf(c.out, "Saved %s\n", path)
	return nil
}

// Close stops the input loop and releases the terminal.
func (c *Console) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	c.cancel()

	if c.deps.Profiles != nil {
		c.deps.Profiles.RemoveListeners(owner)
	}
	return c.reader.Close()
}

func (c *Console) handleConnection(connected bool) {
	if connected {
		fmt.Fprintln(c.out, c.deps.Translate("remote connected"))
	} else {
		fmt.Fprintln(c.out, c.deps.Translate("remote disconnected"))
	}
}

func (c *Console) handleProfileChange(name string) {
	fmt.Fprintf(c.out, "Profile: %s\n", name)
}

// Execute runs one console command.
func (c *Console) Execute(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	args := parts[1:]

	switch strings.ToLower(parts[0]) {
	case "help", "?":
		c.printHelp()
		return nil
	case "status", "st":
		c.cmdStatus()
		return nil
	case "profile", "p":
		return c.cmdProfile(args)
	case "map", "m":
		return c.cmdMap(args)
	case "unmap":
		return c.cmdUnmap(args)
	case "send", "s":
		return c.cmdSend(args)
	case "save":
		if len(args) > 0 {
			return c.saveAs(args[0])
		}
		return c.SaveProfile()
	case "quit", "exit", "q":
		c.deps.Quit()
		return nil
	default:
		return fmt.Errorf("%w: %s (try help)", ErrUnknownAction, parts[0])
	}
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  status                          Show connection and profile state
  profile [list|next|prev|NAME]   List or switch profiles
  map KIND CH NUM COMMAND         Map a control (KIND: note, cc, pb)
  unmap KIND CH NUM               Remove a mapping
  send KIND CH NUM VALUE          Inject a device message
  save [NAME]                     Save the profile
  quit                            Quit
`)
}

func (c *Console) cmdStatus() {
	d := c.deps
	if d.RemoteOut != nil {
		state := "disconnected"
		if d.RemoteOut.Connected() {
			state = "connected"
		}
		fmt.Fprintf(c.out, "Host:      %s (%d lines sent)\n", state, d.RemoteOut.Sent())
	}
	if d.Receiver != nil {
		fmt.Fprintf(c.out, "Received:  %d device messages\n", d.Receiver.Received())
	}
	if d.Sender != nil {
		fmt.Fprintf(c.out, "Sent:      %d device messages\n", d.Sender.Sent())
	}
	if d.Devices != nil {
		fmt.Fprintf(c.out, "Inputs:    %s\n", strings.Join(d.Devices.InputNames(), ", "))
		fmt.Fprintf(c.out, "Outputs:   %s\n", strings.Join(d.Devices.OutputNames(), ", "))
	}
	if d.Profiles != nil {
		current := d.Profiles.Current()
		if current == "" {
			current = "(default)"
		}
		fmt.Fprintf(c.out, "Profile:   %s in %s\n", current, d.Profiles.Directory())
	}
	if d.Profile != nil {
		unsaved := ""
		if d.Profile.Unsaved() {
			unsaved = " (unsaved)"
		}
		fmt.Fprintf(c.out, "Mappings:  %d%s\n", d.Profile.Len(), unsaved)
		rows := d.Profile.Rows()
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
		for _, r := range rows {
			label := r.Command
			if d.Commands != nil {
				label = d.Commands.Label(r.Command)
			}
			fmt.Fprintf(c.out, "  %-12s %s\n", r.ID, label)
		}
	}
}

func (c *Console) cmdProfile(args []string) error {
	m := c.deps.Profiles
	if m == nil {
		return errors.New("profiles unavailable")
	}
	if len(args) == 0 || args[0] == "list" {
		current := m.Current()
		names := m.Profiles()
		if len(names) == 0 {
			fmt.Fprintf(c.out, "No profiles in %s\n", m.Directory())
			return nil
		}
		for _, name := range names {
			marker := " "
			if name == current {
				marker = "*"
			}
			fmt.Fprintf(c.out, "%s %s\n", marker, name)
		}
		return nil
	}

	switch args[0] {
	case "next":
		return m.Next()
	case "prev":
		return m.Prev()
	default:
		name := args[0]
		if !strings.EqualFold(filepath.Ext(name), ".xml") {
			name += ".xml"
		}
		return m.SwitchToProfile(name)
	}
}

func (c *Console) cmdMap(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: map KIND CH [NUM] COMMAND", ErrUsage)
	}
	id, rest, err := parseID(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("%w: map KIND CH [NUM] COMMAND", ErrUsage)
	}
	command := rest[0]
	if c.deps.Commands != nil && !c.deps.Commands.Contains(command) {
		return fmt.Errorf("%w: %s", ErrUnknownAction, command)
	}
	c.deps.Profile.SetCommand(id, command)
	fmt.Fprintf(c.out, "%s -> %s\n", id, command)
	return nil
}

func (c *Console) cmdUnmap(args []string) error {
	id, rest, err := parseID(args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: unmap KIND CH [NUM]", ErrUsage)
	}
	if !c.deps.Profile.RemoveRow(id) {
		fmt.Fprintf(c.out, "%s is not mapped\n", id)
	}
	return nil
}

func (c *Console) cmdSend(args []string) error {
	if c.input == nil {
		return ErrNoInput
	}
	id, rest, err := parseID(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("%w: send KIND CH [NUM] VALUE", ErrUsage)
	}
	value, err := strconv.Atoi(rest[0])
	if err != nil {
		return fmt.Errorf("%w: value %q", ErrUsage, rest[0])
	}
	return c.input.Write(device.Message{
		Kind:    id.Kind,
		Channel: id.Channel,
		Number:  id.Number,
		Value:   value,
	})
}

// parseID reads KIND CH [NUM] from args, with a one-based channel. Pitch
// bend takes no number. The remaining arguments are returned.
func parseID(args []string) (profile.MessageID, []string, error) {
	var id profile.MessageID
	if len(args) < 2 {
		return id, nil, fmt.Errorf("%w: KIND CH [NUM]", ErrUsage)
	}

	kind, err := parseKind(args[0])
	if err != nil {
		return id, nil, err
	}
	ch, err := strconv.Atoi(args[1])
	if err != nil || ch < 1 || ch > device.MaxChannel+1 {
		return id, nil, fmt.Errorf("%w: channel %q (1-16)", ErrUsage, args[1])
	}
	id = profile.MessageID{Kind: kind, Channel: uint8(ch - 1)}
	if kind == device.KindPitchBend {
		return id, args[2:], nil
	}

	if len(args) < 3 {
		return id, nil, fmt.Errorf("%w: KIND CH NUM", ErrUsage)
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n < 0 || n > device.MaxNumber {
		return id, nil, fmt.Errorf("%w: number %q (0-127)", ErrUsage, args[2])
	}
	id.Number = uint16(n)
	return id, args[3:], nil
}

func parseKind(s string) (device.Kind, error) {
	switch strings.ToLower(s) {
	case "note":
		return device.KindNoteOn, nil
	case "cc":
		return device.KindCC, nil
	case "pb", "pitch":
		return device.KindPitchBend, nil
	default:
		return device.ParseKind(s)
	}
}
