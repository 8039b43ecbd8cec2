package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/zoltar/internal/commitment"
)

func TestCommitCommand(t *testing.T) {
	cmd := newCommitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{" Luna ", "moon"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, commitment.Of("luna").Hex()+"\tluna", lines[0])
	assert.Equal(t, commitment.Of("moon").Hex()+"\tmoon", lines[1])
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("OPERATOR_SECRET", "")
	t.Setenv("AGENT_SECRET_KEY", "")
	cmd := newTokenCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("OPERATOR_SECRET", "s3cret")
	cmd := newTokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--ttl", "1h"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out.String()), ".")))
}

func TestWordsCommand(t *testing.T) {
	t.Setenv("WORDS_DIR", "")
	cmd := newWordsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "easy")
	assert.Contains(t, out.String(), "hard")
}

func TestServerFailureStopsBackground(t *testing.T) {
	bound := errors.New("listen tcp :5175: bind: address already in use")
	stopped := make(chan struct{})

	result := make(chan error, 1)
	go func() {
		result <- runAlongside(context.Background(),
			func(ctx context.Context) {
				<-ctx.Done()
				close(stopped)
			},
			func(context.Context) error { return bound },
		)
	}()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, bound)
	case <-time.After(2 * time.Second):
		t.Fatal("runAlongside did not return after the foreground failed")
	}
	select {
	case <-stopped:
	default:
		t.Fatal("background was not stopped")
	}
}
