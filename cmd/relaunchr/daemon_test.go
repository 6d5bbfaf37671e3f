package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
)

func TestPidFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test_daemon.pid")

	if err := writePidFile(pidFile, os.Getpid()); err != nil {
		t.Fatalf("writePidFile failed: %v", err)
	}
	b, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if string(b) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file content %q", b)
	}
	if err := removePidFile(pidFile); err != nil {
		t.Fatalf("removePidFile failed: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatal("PID file was not removed")
	}
	if err := removePidFile(""); err != nil {
		t.Fatalf("empty pid file path: %v", err)
	}
}

func TestDaemonArgs(t *testing.T) {
	in := []string{"--config", "c.toml", "serve", "--daemonize", "--logfile", "out.log", "--pidfile", "p.pid", "--logfile=x"}
	want := []string{"--config", "c.toml", "serve", "--pidfile", "p.pid"}
	if got := daemonArgs(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("daemonArgs = %v, want %v", got, want)
	}
}

func TestParseServiceEnvVars(t *testing.T) {
	m, err := parseServiceEnvVars([]string{"A=1", " B = two ", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m["A"] != "1" || m["B"] != "two" || len(m) != 2 {
		t.Fatalf("unexpected map: %v", m)
	}
	if _, err := parseServiceEnvVars([]string{"NOVALUE"}); err == nil {
		t.Fatalf("expected error for missing '='")
	}
	if _, err := parseServiceEnvVars([]string{"=x"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestServiceConfigArguments(t *testing.T) {
	c := command{global: &GlobalFlags{ConfigPath: "relaunchr.toml"}}
	conf, err := newSVCConfig(c, &serviceFlags{Name: "rl", Env: []string{"X=1"}})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if conf.Name != "rl" || conf.EnvVars["X"] != "1" {
		t.Fatalf("unexpected config: %+v", conf)
	}
	if len(conf.Arguments) < 4 || conf.Arguments[0] != "--config" || !filepath.IsAbs(conf.Arguments[1]) {
		t.Fatalf("arguments: %v", conf.Arguments)
	}
	n := len(conf.Arguments)
	if conf.Arguments[n-4] != "service" || conf.Arguments[n-3] != "run" || conf.Arguments[n-1] != "rl" {
		t.Fatalf("arguments: %v", conf.Arguments)
	}
}
