package factory

import (
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/noughts/internal/dependencies/mocks"
	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/realtime"
	"github.com/mcoot/noughts/internal/services/auth"
	"github.com/mcoot/noughts/internal/services/challenge"
	"github.com/mcoot/noughts/internal/storage/memory"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
	MockIDs   *mocks.MockIDs
}

// NewTestApp creates an App configured for testing with mocked dependencies
// Challenge rate limiting is disabled.
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockIDs := mocks.NewMockIDs()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	authCfg := auth.DefaultConfig()
	authCfg.Secret = []byte("test-secret")
	challengeCfg := challenge.Config{TTL: model.DefaultChallengeTTL}

	app := newWithDependencies(store, mockClock, mockIDs, authCfg, challengeCfg, realtime.DefaultConfig(), logger)

	return &TestApp{
		App:       app,
		MockClock: mockClock,
		MockIDs:   mockIDs,
	}
}
