// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l, err := New("debug", "json")
	require.NoError(t, err)
	require.Equal(t, log.DebugLevel, l.GetLevel())
	require.IsType(t, &log.JSONFormatter{}, l.Formatter)

	_, err = New("loud", "text")
	require.Error(t, err)

	_, err = New("info", "xml")
	require.Error(t, err)
}

func TestDiscard(t *testing.T) {
	l := Discard()
	require.False(t, l.IsLevelEnabled(log.ErrorLevel))
}
