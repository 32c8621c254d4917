package bootstrap

import (
	"context"
	"testing"
)

func TestBuildCommandPlain(t *testing.T) {
	cmd := buildCommand(context.Background(), "apt-get update -y")
	if len(cmd.Args) != 3 || cmd.Args[0] != "apt-get" {
		t.Fatalf("args = %v", cmd.Args)
	}
}

func TestBuildCommandShellFallback(t *testing.T) {
	cmd := buildCommand(context.Background(), "grep -q swapfile /etc/fstab || echo missing")
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("metacharacter line should run under sh -c, got %v", cmd.Args)
	}
}

func TestBuildCommandEmpty(t *testing.T) {
	cmd := buildCommand(context.Background(), "   ")
	if cmd.Args[0] != "/bin/true" {
		t.Fatalf("args = %v", cmd.Args)
	}
}
