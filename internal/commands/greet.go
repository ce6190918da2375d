// Package commands holds the functions the front-end can invoke by name.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hakawati/hakawati/internal/host"
)

// Greet returns the front-end wiring smoke-test greeting.
func Greet(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Rust!", name)
}

// GreetCommand serves Greet over IPC. The body is {"name": "..."}.
func GreetCommand(_ context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := host.DecodeArgs(args, &in); err != nil {
		return nil, err
	}
	return Greet(in.Name), nil
}

// Register adds every command in this package to b.
func Register(b *host.Builder) {
	b.Command("greet", GreetCommand)
}
