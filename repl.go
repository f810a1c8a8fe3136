package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mstarongithub/twm/compositor"
	"github.com/mstarongithub/twm/events"
	"github.com/mstarongithub/twm/repl"
	"github.com/mstarongithub/twm/surface"
	"github.com/mstarongithub/twm/util"
	"github.com/mstarongithub/twm/util/wrappers"
	"github.com/sirupsen/logrus"
)

var errQuit = errors.New("normal stop")

const (
	consoleTimeout = 5 * time.Second
	watcherName    = "console"
)

// console answers the repl's commands. Everything touching compositor state goes through the scheduler
type console struct {
	sched    *compositor.Scheduler
	events   *events.Broadcast
	watching bool
}

func replRunner(sched *compositor.Scheduler, broadcast *events.Broadcast) {
	// Give repl some wrappers around stdin and stdout so that it closes those instead of stdin & stdout themselves
	commandRepl := repl.NewRepl(wrappers.NewReaderWrapper(os.Stdin), wrappers.NewWriterWrapper(os.Stdout))
	commandRepl.Prompt = "twm> "
	c := &console{sched: sched, events: broadcast}
	logrus.Debugln("Starting repl")
	if err := commandRepl.Run(c.handle); err != nil && !errors.Is(err, errQuit) {
		logrus.WithError(err).Warnln("Repl stopped")
	}
	c.unwatch()
}

func (c *console) handle(input string, r *repl.Repl) (string, error) {
	input = strings.TrimSpace(input)
	if cmdString, ok := strings.CutPrefix(input, "run "); ok {
		return runCommand(cmdString, r.Output), nil
	}
	if rawCmdString, ok := strings.CutPrefix(input, "inspect "); ok {
		// Can't unpack slices directly like in Python, so do it this roundabout way
		var target, args string
		util.Unpack(strings.SplitN(rawCmdString, " ", 2), &target, &args)
		logrus.WithFields(logrus.Fields{
			"target": target,
			"args":   args,
		}).Debugln("Parsed inspect command")
		return c.inspect(target)
	}
	if rawID, ok := strings.CutPrefix(input, "restore "); ok {
		return c.restore(rawID)
	}
	switch input {
	case "":
		return "", nil
	case "quit":
		_, err := c.exec(func(st *compositor.State) (string, error) {
			st.Quit("console")
			return "", nil
		})
		if err != nil {
			return "", err
		}
		return "Quitting", errQuit
	case "watch":
		return c.watch(r.Output)
	case "unwatch":
		if !c.unwatch() {
			return "Not watching", nil
		}
		return "Stopped watching", nil
	case "help":
		return consoleHelp, nil
	default:
		return "Unknown command", nil
	}
}

const consoleHelp = `Commands:
	run <cmd> [args]: Start a client
	inspect windows|seat|outputs|selection|clients
	restore <surface id>: Bring back a minimized window
	watch / unwatch: Print compositor events as they happen
	quit`

func (c *console) exec(cmd compositor.Command) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), consoleTimeout)
	defer cancel()
	return c.sched.Exec(ctx, cmd)
}

func (c *console) inspect(target string) (string, error) {
	var cmd compositor.Command
	switch target {
	case "windows":
		cmd = inspectWindows
	case "seat":
		cmd = inspectSeat
	case "outputs":
		cmd = inspectOutputs
	case "selection":
		cmd = inspectSelection
	case "clients":
		cmd = c.inspectClients
	default:
		return "Unknown inspect target: " + target, nil
	}
	out, err := c.exec(cmd)
	if err != nil {
		return "Inspect failed: " + err.Error(), nil
	}
	return out, nil
}

func inspectWindows(st *compositor.State) (string, error) {
	b := strings.Builder{}
	windows := st.Space().Elements()
	fmt.Fprintf(&b, "%d windows (bottom to top)", len(windows))
	for _, w := range windows {
		loc, _ := st.Locate(w)
		geo := w.Geometry()
		fmt.Fprintf(&b, "\n\t- %d %q (%s) at %d,%d size %dx%d client %d",
			w.Surface().ID(), w.Title(), w.AppID(),
			loc.X, loc.Y, geo.Size.X, geo.Size.Y,
			w.Surface().Client())
		if w.Activated() {
			b.WriteString(" [active]")
		}
	}
	for _, w := range st.Minimized() {
		fmt.Fprintf(&b, "\n\t- %d %q minimized", w.Surface().ID(), w.Title())
	}
	return b.String(), nil
}

func inspectSeat(st *compositor.State) (string, error) {
	s := st.Seat()
	pointer := s.PointerLocation()
	focus := "none"
	if f := s.KeyboardFocus(); f != nil {
		focus = strconv.Itoa(int(f.ID()))
	}
	pointerFocus := "none"
	if f, _ := s.PointerFocus(); f != nil {
		pointerFocus = strconv.Itoa(int(f.ID()))
	}
	return fmt.Sprintf(
		"Seat %s: pointer at (%.1f:%.1f) over %s, keyboard focus %s, modifiers %#x, buttons held %d",
		s.Name(), pointer.X, pointer.Y, pointerFocus, focus, uint32(s.Modifiers()), s.ButtonsHeld(),
	), nil
}

func inspectOutputs(st *compositor.State) (string, error) {
	b := strings.Builder{}
	for i, o := range st.Space().Outputs() {
		mode := o.CurrentMode()
		size := o.LogicalSize()
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Output %s: %dx%d@%d, transform %s, scale %d, logical %dx%d",
			o.Name(), mode.Size.X, mode.Size.Y, mode.Refresh, o.Transform(), o.Scale(), size.X, size.Y)
	}
	if b.Len() == 0 {
		return "No outputs", nil
	}
	return b.String(), nil
}

func inspectSelection(st *compositor.State) (string, error) {
	src := st.Data().Selection()
	out := "Selection: none"
	if src != nil {
		out = fmt.Sprintf("Selection: source %d of client %d offering %s",
			src.ID(), src.Client(), strings.Join(src.MimeTypes(), ", "))
	}
	if drag := st.Data().Drag(); drag != nil {
		out += "\nDrag in progress"
	}
	if n := len(st.Data().Awaiting()); n > 0 {
		out += fmt.Sprintf("\n%d drops waiting for finish", n)
	}
	return out, nil
}

func (c *console) inspectClients(st *compositor.State) (string, error) {
	clients := c.sched.Display().Clients()
	b := strings.Builder{}
	fmt.Fprintf(&b, "%d clients", len(clients))
	for _, cl := range clients {
		fmt.Fprintf(&b, "\n\t- %d", cl.ID())
		if cred := cl.Credentials(); cred != nil {
			fmt.Fprintf(&b, " pid %d uid %d", cred.PID, cred.UID)
		}
		for kind, count := range cl.Objects() {
			fmt.Fprintf(&b, " %s:%d", kind, count)
		}
	}
	return b.String(), nil
}

func (c *console) restore(rawID string) (string, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 32)
	if err != nil {
		return "Not a surface id: " + rawID, nil
	}
	out, err := c.exec(func(st *compositor.State) (string, error) {
		w, ok := st.Window(surface.ID(id))
		if !ok {
			return fmt.Sprintf("No window %d", id), nil
		}
		if !st.Restore(w) {
			return fmt.Sprintf("Window %d is not minimized", id), nil
		}
		return fmt.Sprintf("Restored %d", id), nil
	})
	if err != nil {
		return "Restore failed: " + err.Error(), nil
	}
	return out, nil
}

// watch prints every compositor event to out until unwatch
func (c *console) watch(out io.Writer) (string, error) {
	if c.events == nil {
		return "Events are not being broadcast", nil
	}
	if c.watching {
		return "Already watching", nil
	}
	feed, err := c.events.Subscribe(watcherName, 64)
	if err != nil {
		return "Watch failed: " + err.Error(), nil
	}
	c.watching = true
	go func() {
		for ev := range feed {
			if _, err := fmt.Fprintln(out, ev.String()); err != nil {
				return
			}
		}
	}()
	return "Watching events", nil
}

func (c *console) unwatch() bool {
	if !c.watching {
		return false
	}
	c.events.Unsubscribe(watcherName)
	c.watching = false
	return true
}

// runCommand starts cmdString as a client of the compositor, piping its output to out
func runCommand(cmdString string, out io.Writer) string {
	parts, err := util.SplitArgs(cmdString)
	if err != nil {
		return "Can't parse command: " + err.Error()
	}
	if len(parts) == 0 {
		return "Nothing to run"
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	go func(cmd *exec.Cmd, cmdString string) {
		err := cmd.Start()
		if err != nil {
			logrus.WithError(err).WithField("command", cmdString).Errorln("Command failed to start")
			return
		}
		err = cmd.Wait()
		if exiterr, ok := err.(*exec.ExitError); ok {
			logrus.WithError(err).WithFields(logrus.Fields{
				"exit-code": exiterr.ExitCode(),
				"command":   cmdString,
			}).Warningln("Bad command completion")
		}
	}(cmd, cmdString)
	return "Running " + parts[0]
}
