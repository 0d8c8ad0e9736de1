package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/philippseith/webglue"
)

const userKey = "user"

var errLoginRequired = errors.New("login required")

type mathAPI struct{}

func (mathAPI) Add(a, b float64) float64 {
	return a + b
}

func (mathAPI) Multiply(a, b float64) float64 {
	return a * b
}

func (mathAPI) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (mathAPI) Sum(values ...float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}

type sessionAPI struct {
	users map[string]string
}

func (s *sessionAPI) Login(state *webglue.ConnectionState, user, password string) (string, error) {
	if expected, ok := s.users[user]; !ok || expected != password {
		return "", errors.New("invalid user or password")
	}
	state.Items().Store(userKey, user)
	return "Welcome " + user, nil
}

func (s *sessionAPI) Logout(state *webglue.ConnectionState) {
	state.Items().Delete(userKey)
}

func (s *sessionAPI) Whoami(state *webglue.ConnectionState) string {
	return loggedInUser(state)
}

type chatAPI struct {
	said *webglue.EventSlot
}

func (c *chatAPI) Say(state *webglue.ConnectionState, text string) {
	c.said.Emit(loggedInUser(state), text)
}

func loggedInUser(state *webglue.ConnectionState) string {
	if user, ok := state.Items().Load(userKey); ok {
		return user.(string)
	}
	return ""
}

// demo holds the modules served by the serve command
type demo struct {
	modules []webglue.Module
	tick    *webglue.EventSlot
}

func newDemo(users map[string]string) *demo {
	tick := webglue.NewEventSlot()
	chat := &chatAPI{said: webglue.NewEventSlot()}
	return &demo{
		tick: tick,
		modules: []webglue.Module{
			{
				API:    map[string]webglue.Functions{"math": webglue.MethodsOf(mathAPI{})},
				Events: webglue.Events{"tick": tick},
			},
			{
				API: map[string]webglue.Functions{
					"session": webglue.MethodsOf(&sessionAPI{users: users}),
					"chat":    webglue.MethodsOf(chat),
				},
				Events: webglue.Events{"chat": webglue.Events{"said": chat.said}},
				CheckCall: func(_ context.Context, state *webglue.ConnectionState, call *webglue.Call) error {
					if call.APIName == "chat" && loggedInUser(state) == "" {
						return fmt.Errorf("%w for %v.%v", errLoginRequired, call.APIName, call.FncName)
					}
					return nil
				},
				FilterEvent: func(_ context.Context, state *webglue.ConnectionState, emission webglue.Emission) (bool, error) {
					if emission.APIName == "chat" {
						return loggedInUser(state) != "", nil
					}
					return true, nil
				},
			},
		},
	}
}

// runTicker emits the tick event until ctx is canceled
func (d *demo) runTicker(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			d.tick.Emit(now.UTC().Format(time.RFC3339))
		case <-ctx.Done():
			return
		}
	}
}
