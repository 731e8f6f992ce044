package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/osintdeck/internal/classifier"
	"github.com/pbaille/osintdeck/internal/store"
	"github.com/pbaille/osintdeck/internal/tld"
)

type noFeed struct{}

func (noFeed) FetchLines(ctx context.Context, rawURL string) ([]string, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestSyncLoopPicksUpOtherProcessWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	served, err := tld.New(ctx, kv, noFeed{}, tld.Options{Logger: logger})
	require.NoError(t, err)
	servedClassifier, err := classifier.New(ctx, kv, logger)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		syncLoop(ctx, 10*time.Millisecond, logger, map[string]syncer{
			"tld":        served,
			"classifier": servedClassifier,
		})
	}()

	cli, err := tld.New(ctx, kv, noFeed{}, tld.Options{Logger: logger})
	require.NoError(t, err)
	_, err = cli.AddCustom(ctx, "onion")
	require.NoError(t, err)

	cliClassifier, err := classifier.New(ctx, kv, logger)
	require.NoError(t, err)
	_, err = cliClassifier.LoadDefaults(ctx)
	require.NoError(t, err)
	_, err = cliClassifier.Train(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, trained := servedClassifier.ModelInfo()
		return served.IsValid("onion") && trained
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sync loop did not stop on cancel")
	}
}
