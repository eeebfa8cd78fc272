package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpreq/pkg/contract"
	"rfpreq/plugins/counter/countertest"
)

func TestConformance(t *testing.T) {
	countertest.Run(t, func(t *testing.T, dir string) contract.CounterStore {
		s, err := Open(&Options{Path: filepath.Join(dir, DefaultPath)})
		require.NoError(t, err)
		return s
	})
}

func TestNestedPath(t *testing.T) {
	s, err := Open(&Options{Path: filepath.Join(t.TempDir(), "a", "b", "c.db")})
	require.NoError(t, err)
	defer s.Close()
	n, err := s.GetAndIncrement(context.Background(), "K-V")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
