/*
Copyright 2025 Intel Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package log

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFlag(t *testing.T) {
	l := NewLevelFlag(slog.LevelInfo)
	require.Equal(t, "info", l.String())

	for _, s := range []string{"debug", "INFO", "Warn", "error"} {
		require.NoError(t, l.Set(s), "level %q", s)
	}
	require.Equal(t, slog.LevelError, l.Level())
	require.Error(t, l.Set("verbose"))
	require.Equal(t, slog.LevelError, l.Level(), "failed Set must not change the level")
}

func TestNewLoggerLevel(t *testing.T) {
	lf := NewLevelFlag(slog.LevelWarn)
	logger := NewLogger("test", lf)

	require.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	// Derived loggers keep the overridden level.
	require.False(t, logger.With("cpu", 1).Enabled(context.Background(), slog.LevelDebug))

	require.NoError(t, lf.Set("debug"))
	require.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	require.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
