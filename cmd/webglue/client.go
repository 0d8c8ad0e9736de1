package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/philippseith/webglue"
	"github.com/philippseith/webglue/pages"
)

func clientCmd() *cobra.Command {
	var (
		address   string
		heartbeat bool
		binary    bool
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a server and navigate its functions from the terminal",
		Long: `Connect to a server and read paths from stdin. Every line is navigated to:

  /                                 list the discovered functions and events
  /call?api=math&fnc=add&args=[2,3] call a function, args is a JSON array
  back                              go back to the previous path
  quit                              stop the client

Received events are printed as they arrive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			format := "Text"
			if binary {
				format = "Binary"
			}
			client, err := webglue.NewClient(ctx,
				webglue.WithConnector(func() (webglue.Connection, error) {
					return dial(ctx, address)
				}),
				webglue.TransferFormat(format),
				webglue.Logger(newLogger("logfmt"), false))
			if err != nil {
				return err
			}
			if err = client.Start(); err != nil {
				return err
			}
			defer func() { _ = client.Stop() }()
			t := newTerminal(client, cmd.OutOrStdout())
			t.attachHooks(heartbeat)
			return t.run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&address, "url", "u", "ws://localhost:8080/webglue", "ws:// or tcp:// address of the server")
	cmd.Flags().BoolVar(&heartbeat, "heartbeat", false, "print the local heartbeat event")
	cmd.Flags().BoolVar(&binary, "binary", false, "use the MessagePack protocol")
	return cmd
}

// terminal is the display and the single event target of the client command
type terminal struct {
	client  webglue.Client
	out     io.Writer
	mx      sync.Mutex
	history []string
	router  *pages.Router
}

func newTerminal(client webglue.Client, out io.Writer) *terminal {
	t := &terminal{client: client, out: out}
	t.router = pages.New(t, t)
	t.router.Register("home", pages.Page{Title: "Discovery", Render: t.renderHome})
	t.router.Register("call", pages.Page{Check: checkCall, Render: t.renderCall})
	return t
}

func (t *terminal) ParentTarget() webglue.Target {
	return nil
}

func (t *terminal) Clear() {
	t.println("")
}

func (t *terminal) SetTitle(title string) {
	t.println("== " + title + " ==")
}

func (t *terminal) Append(content string) {
	t.println(content)
}

func (t *terminal) Push(path string) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.history = append(t.history, path)
}

func (t *terminal) Replace(path string) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if len(t.history) == 0 {
		t.history = append(t.history, path)
		return
	}
	t.history[len(t.history)-1] = path
}

// back removes the current path and returns the previous one
func (t *terminal) back() (string, bool) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if len(t.history) < 2 {
		return "", false
	}
	t.history = t.history[:len(t.history)-1]
	return t.history[len(t.history)-1], true
}

func (t *terminal) println(line string) {
	t.mx.Lock()
	defer t.mx.Unlock()
	fmt.Fprintln(t.out, line)
}

func (t *terminal) attachHooks(heartbeat bool) {
	discovery := t.client.Discovery()
	for apiName, events := range discovery.Events {
		for _, eventName := range events {
			if hook := t.client.Hook(webglue.HookName(apiName, eventName)); hook != nil {
				name := eventName
				if apiName != "" {
					name = apiName + "." + eventName
				}
				hook.Attach(t, func(args ...interface{}) {
					t.println(fmt.Sprintf("-> %v %v", name, formatValue(args)))
				})
			}
		}
	}
	if heartbeat {
		if hook := t.client.Hook(webglue.HookName("", "Heartbeat")); hook != nil {
			hook.Attach(t, func(...interface{}) {
				t.println("-> Heartbeat " + time.Now().Format(time.TimeOnly))
			})
		}
	}
}

func (t *terminal) run(ctx context.Context, in io.Reader) error {
	if err := t.router.Goto(ctx, "/", true); err != nil {
		return err
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	for {
		select {
		case line, ok := <-lines:
			if !ok || line == "quit" {
				return nil
			}
			var err error
			switch line {
			case "":
				continue
			case "back":
				if path, ok := t.back(); ok {
					err = t.router.Goto(ctx, path, true)
				}
			default:
				err = t.router.Goto(ctx, line, false)
			}
			if err != nil {
				t.println("error: " + err.Error())
			}
		case <-ctx.Done():
			return nil
		case <-t.client.Context().Done():
			return t.client.Context().Err()
		}
	}
}

func (t *terminal) renderHome(_ context.Context, display pages.Display, _ string, _ pages.Params) error {
	discovery := t.client.Discovery()
	for _, apiName := range sortedNames(discovery.API) {
		display.Append(fmt.Sprintf("%v: %v", apiName, strings.Join(discovery.API[apiName], ", ")))
	}
	for _, apiName := range sortedNames(discovery.Events) {
		for _, eventName := range discovery.Events[apiName] {
			display.Append("event " + webglue.HookName(apiName, eventName))
		}
	}
	return nil
}

func checkCall(_ context.Context, _ string, params pages.Params) (string, error) {
	if params["api"] == "" || params["fnc"] == "" {
		return "/", nil
	}
	return "", nil
}

func (t *terminal) renderCall(ctx context.Context, display pages.Display, _ string, params pages.Params) error {
	var args []interface{}
	if raw := params["args"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return fmt.Errorf("args must be a JSON array: %w", err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, err := t.client.Call(ctx, params["api"], params["fnc"], args...)
	if err != nil {
		display.Append("error: " + err.Error())
		return nil
	}
	display.Append(formatValue(result))
	return nil
}

func formatValue(value interface{}) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
