/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireNoErrorInChannel(t *testing.T) {
	ch := make(chan error, 1)

	mockT := &MockT{}
	RequireNoErrorInChannel(mockT, ch)
	require.False(t, mockT.Failed, "empty channel must pass")

	ch <- nil
	mockT = &MockT{}
	RequireNoErrorInChannel(mockT, ch)
	require.False(t, mockT.Failed, "nil error must pass")

	ch <- errors.New("worker failed")
	mockT = &MockT{}
	RequireNoErrorInChannel(mockT, ch)
	require.True(t, mockT.Failed)
}
