package main

import (
	"context"
	"time"

	"github.com/kardianos/service"

	"printbrowsed/browse"
	"printbrowsed/logger"
)

// program implements service.Interface
type program struct {
	daemon *browse.Daemon
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("printbrowsed service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)
	if err := p.daemon.Run(p.ctx); err != nil {
		p.log.Error("daemon failed", "err", err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("printbrowsed service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}

	timeout := time.After(30 * time.Second)
	select {
	case <-p.done:
	case <-timeout:
		if p.svcLogger != nil {
			p.svcLogger.Warning("printbrowsed service stopped with timeout")
		}
	}
	return nil
}

// getServiceConfig returns the service configuration for this platform
func getServiceConfig() *service.Config {
	return &service.Config{
		Name:        "printbrowsed",
		DisplayName: "Print Queue Browser Daemon",
		Description: "Discovers remote printers over DNS-SD, legacy CUPS broadcasts and server polling, and maintains matching local print queues.",
	}
}

// runService runs the daemon under the platform service manager.
func runService(daemon *browse.Daemon, log *logger.Logger) int {
	prg := &program{daemon: daemon, log: log}
	svc, err := service.New(prg, getServiceConfig())
	if err != nil {
		log.Error("could not initialise service wrapper", "err", err)
		return 1
	}
	if err := svc.Run(); err != nil {
		log.Error("service run failed", "err", err)
		return 1
	}
	return 0
}
