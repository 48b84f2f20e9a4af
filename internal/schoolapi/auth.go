package schoolapi

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenProvider supplies the bearer token for API requests
type TokenProvider interface {
	GetToken() (string, error)
}

// StaticToken is a fixed token from configuration. An empty token sends no
// Authorization header.
type StaticToken string

// GetToken returns the configured token
func (s StaticToken) GetToken() (string, error) {
	return string(s), nil
}

// ErrNoToken is returned by TokenManager before the first successful refresh
var ErrNoToken = errors.New("api token not available")

// commandTimeout bounds a single run of the token command
const commandTimeout = 30 * time.Second

// TokenManager runs an external command that prints an API token on stdout
// and re-runs it every refreshInterval. A failed re-run keeps the last token.
type TokenManager struct {
	command         string
	refreshInterval time.Duration
	logger          *zap.Logger
	ctx             context.Context
	cancel          context.CancelFunc

	mu    sync.RWMutex
	token string
}

// NewTokenManager creates a token manager; zero refreshInterval disables background refresh
func NewTokenManager(command string, refreshInterval time.Duration, logger *zap.Logger) *TokenManager {
	ctx, cancel := context.WithCancel(context.Background())

	return &TokenManager{
		command:         command,
		refreshInterval: refreshInterval,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start obtains the first token, then keeps it fresh in the background
func (tm *TokenManager) Start() error {
	if err := tm.Refresh(); err != nil {
		return fmt.Errorf("initial token: %w", err)
	}

	if tm.refreshInterval > 0 {
		go tm.loop()
	}

	tm.logger.Info("Token manager started", zap.Duration("refresh_interval", tm.refreshInterval))
	return nil
}

// Stop ends background refresh and kills a running token command
func (tm *TokenManager) Stop() {
	tm.cancel()
}

// GetToken returns the current token
func (tm *TokenManager) GetToken() (string, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if tm.token == "" {
		return "", ErrNoToken
	}
	return tm.token, nil
}

// Refresh runs the token command once
func (tm *TokenManager) Refresh() error {
	token, err := tm.runCommand()
	if err == nil {
		tm.mu.Lock()
		tm.token = token
		tm.mu.Unlock()
		return nil
	}

	if _, tokenErr := tm.GetToken(); tokenErr == nil {
		tm.logger.Warn("Token refresh failed, keeping previous token", zap.Error(err))
		return nil
	}
	return err
}

func (tm *TokenManager) loop() {
	ticker := time.NewTicker(tm.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tm.ctx.Done():
			return
		case <-ticker.C:
			if err := tm.Refresh(); err != nil {
				tm.logger.Error("Background token refresh failed", zap.Error(err))
			}
		}
	}
}

func (tm *TokenManager) runCommand() (string, error) {
	args := strings.Fields(tm.command)
	if len(args) == 0 {
		return "", errors.New("token command is empty")
	}

	ctx, cancel := context.WithTimeout(tm.ctx, commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("token command %q: %w: %s", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("token command %q: %w", args[0], err)
	}

	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", fmt.Errorf("token command %q printed nothing", args[0])
	}
	return token, nil
}
