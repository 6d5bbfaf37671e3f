package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const defaultServiceName = "relaunchr"

// serviceStopTimeout bounds how long the service manager waits for serve to
// return, which includes a background run in progress.
const serviceStopTimeout = 30 * time.Second

// program adapts serve to the service manager.
type program struct {
	c      command
	cancel context.CancelFunc
	done   chan error
}

// Start must not block.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- p.c.Serve(ctx) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		return errors.New("timed out waiting for serve to stop")
	}
}

type serviceFlags struct {
	Name string
	Env  []string
}

func newSVCConfig(c command, f *serviceFlags) (*service.Config, error) {
	args := []string{}
	if c.global.ConfigPath != "" {
		abs, err := filepath.Abs(c.global.ConfigPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	for _, e := range c.global.EnvFiles {
		abs, err := filepath.Abs(e)
		if err != nil {
			return nil, err
		}
		args = append(args, "--env-file", abs)
	}
	args = append(args, "service", "run", "--service-name", f.Name)

	envVars, err := parseServiceEnvVars(f.Env)
	if err != nil {
		return nil, fmt.Errorf("parse service environment variables: %w", err)
	}
	return &service.Config{
		Name:        f.Name,
		DisplayName: "relaunchr",
		Description: "Keeps a managed executable updated and running",
		Arguments:   args,
		EnvVars:     envVars,
		Option:      make(service.KeyValue),
	}, nil
}

func parseServiceEnvVars(envVars []string) (map[string]string, error) {
	envMap := make(map[string]string)
	for _, env := range envVars {
		if env == "" {
			continue
		}
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			return nil, fmt.Errorf("invalid environment variable format: %s (expected KEY=VALUE)", env)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty environment variable key in: %s", env)
		}
		envMap[key] = strings.TrimSpace(value)
	}
	return envMap, nil
}

func createServiceCommand(c command) *cobra.Command {
	f := &serviceFlags{}
	svcCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage relaunchr serve as an OS service",
	}
	svcCmd.PersistentFlags().StringVar(&f.Name, "service-name", defaultServiceName, "system service name")

	newSVC := func() (service.Service, error) {
		conf, err := newSVCConfig(c, f)
		if err != nil {
			return nil, err
		}
		return service.New(&program{c: c}, conf)
	}
	action := func(use, short, done string, do func(service.Service) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := newSVC()
				if err != nil {
					return err
				}
				if err := do(s); err != nil {
					return err
				}
				cmd.Println(done)
				return nil
			},
		}
	}

	install := action("install", "Install relaunchr as a system service", "relaunchr service has been installed",
		func(s service.Service) error { return s.Install() })
	install.Flags().StringSliceVar(&f.Env, "service-env", nil, "extra KEY=VALUE environment for the service, comma separated")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run serve under the service manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSVC()
			if err != nil {
				return err
			}
			return s.Run()
		},
	}

	svcCmd.AddCommand(
		install,
		action("uninstall", "Remove the system service", "relaunchr service has been uninstalled",
			func(s service.Service) error { return s.Uninstall() }),
		action("start", "Start the system service", "relaunchr service has been started",
			func(s service.Service) error { return s.Start() }),
		action("stop", "Stop the system service", "relaunchr service has been stopped",
			func(s service.Service) error { return s.Stop() }),
		run,
	)
	return svcCmd
}
