package script_test

import (
	"context"
	"testing"

	"github.com/AdguardTeam/dhclient-go/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRunner_recordsCalls(t *testing.T) {
	r := &script.NoopRunner{Status: 0}

	status, err := r.Run(context.Background(), script.Env{Reason: script.ReasonBound, Interface: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	require.Len(t, r.Calls, 1)
	assert.Equal(t, script.ReasonBound, r.Calls[0].Reason)
}

func TestNoopRunner_nonzeroStatusSignalsCollision(t *testing.T) {
	r := &script.NoopRunner{Status: 1}

	status, err := r.Run(context.Background(), script.Env{Reason: script.ReasonBound})
	require.NoError(t, err)
	assert.Equal(t, 1, status)
}
