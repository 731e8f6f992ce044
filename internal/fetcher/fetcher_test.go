package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLines(t *testing.T) {
	in := "# Version 2026101700, Last Updated Sat Oct 17 07:07:01 2026 UTC\nAAA\n\n  COM  \n#comment\nXN--P1AI\n"
	lines, err := ParseLines(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "COM", "XN--P1AI"}, lines)
}

func TestFetchLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "osintdeck")
		w.Write([]byte("# header\nCOM\nNET\n"))
	}))
	defer srv.Close()

	f := New(time.Second, 0)
	lines, err := f.FetchLines(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"COM", "NET"}, lines)
}

func TestFetchLinesErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := New(time.Second, 0).FetchLines(context.Background(), srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("empty feed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# only comments\n\n"))
		}))
		defer srv.Close()

		_, err := New(time.Second, 0).FetchLines(context.Background(), srv.URL)
		assert.ErrorIs(t, err, ErrEmptyFeed)
	})

	t.Run("oversized body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("COM\nNET\nORG\n"))
		}))
		defer srv.Close()

		_, err := New(time.Second, 8).FetchLines(context.Background(), srv.URL)
		assert.ErrorIs(t, err, ErrFeedTooLarge)

		// exactly at the limit is fine
		lines, err := New(time.Second, 12).FetchLines(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, []string{"COM", "NET", "ORG"}, lines)
	})

	t.Run("scheme", func(t *testing.T) {
		_, err := New(time.Second, 0).FetchLines(context.Background(), "ftp://example.com/list")
		assert.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()

		_, err := New(50*time.Millisecond, 0).FetchLines(context.Background(), srv.URL)
		assert.Error(t, err)
	})
}
