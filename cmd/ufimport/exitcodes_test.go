package main

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain error", errors.New("boom"), exitFailure},
		{"config", withCode(exitConfig, errors.New("bad env")), exitConfig},
		{"wrapped store", fmt.Errorf("run: %w", withCode(exitStore, errors.New("refused"))), exitStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithCodeNil(t *testing.T) {
	if withCode(exitStore, nil) != nil {
		t.Error("withCode(nil) should be nil")
	}
}

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()
	want := map[string]bool{"import": false, "schema": false, "check": false}
	for _, c := range cmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if cmd.PersistentFlags().Lookup("profile") == nil {
		t.Error("missing --profile flag")
	}
}
