package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// ServiceManager runs the catalogue seed to completion and then keeps the API
// running until the context is cancelled.
type ServiceManager struct {
	binDir      string
	binExt      string
	gracePeriod time.Duration

	apiCmd *exec.Cmd
}

func NewServiceManager(binDir, binExt string, gracePeriod time.Duration) *ServiceManager {
	if gracePeriod <= 0 {
		gracePeriod = 10 * time.Second
	}
	return &ServiceManager{binDir: binDir, binExt: binExt, gracePeriod: gracePeriod}
}

func (sm *ServiceManager) command(ctx context.Context, name string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, sm.binDir+"/"+name+sm.binExt)
	cmd.Stdout = log.Logger
	cmd.Stderr = log.Logger
	// SIGTERM on cancel, killed after WaitDelay
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = sm.gracePeriod
	return cmd
}

// RunSeed imports the catalogue and waits for it. A failed seed is logged and
// the API starts on whatever catalogue is already stored.
func (sm *ServiceManager) RunSeed(ctx context.Context) {
	log.Info().Msg("Starting catalogue seed...")
	start := time.Now()
	if err := sm.command(ctx, "seed").Run(); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Catalogue seed failed")
		return
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Catalogue seed finished")
}

// StartAPIService starts the API service
func (sm *ServiceManager) StartAPIService(ctx context.Context) error {
	log.Info().Msg("Starting API service...")
	sm.apiCmd = sm.command(ctx, "api")
	if err := sm.apiCmd.Start(); err != nil {
		return fmt.Errorf("start api: %w", err)
	}
	return nil
}

// Wait blocks until the API exits. When ctx is cancelled the API gets SIGTERM
// and gracePeriod to stop before it is killed.
func (sm *ServiceManager) Wait() error {
	if sm.apiCmd == nil {
		return fmt.Errorf("api service not started")
	}
	err := sm.apiCmd.Wait()
	if err != nil {
		log.Error().Err(err).Msg("API service exited with error")
		return err
	}
	log.Info().Msg("API service exited")
	return nil
}
