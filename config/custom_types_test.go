/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTimeDurationUnmarshal(t *testing.T) {
	type holder struct {
		Timeout TimeDuration `json:"timeout" yaml:"timeout"`
	}

	t.Run("json string", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{"timeout": "1h30m"}`), &h))
		require.Equal(t, 90*time.Minute, time.Duration(h.Timeout))
	})

	t.Run("json nanoseconds", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{"timeout": 1000000000}`), &h))
		require.Equal(t, time.Second, time.Duration(h.Timeout))
	})

	t.Run("json negative", func(t *testing.T) {
		var h holder
		require.Error(t, json.Unmarshal([]byte(`{"timeout": -1}`), &h))
	})

	t.Run("json garbage", func(t *testing.T) {
		var h holder
		require.Error(t, json.Unmarshal([]byte(`{"timeout": "soon"}`), &h))
	})

	t.Run("yaml string", func(t *testing.T) {
		var h holder
		require.NoError(t, yaml.Unmarshal([]byte("timeout: 500ms\n"), &h))
		require.Equal(t, 500*time.Millisecond, time.Duration(h.Timeout))
	})

	t.Run("yaml nanoseconds", func(t *testing.T) {
		var h holder
		require.NoError(t, yaml.Unmarshal([]byte("timeout: 1000000000\n"), &h))
		require.Equal(t, time.Second, time.Duration(h.Timeout))
	})
}

func TestTimeDurationMarshal(t *testing.T) {
	d := TimeDuration(90 * time.Minute)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"1h30m0s"`, string(data))

	yamlData, err := yaml.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, "1h30m0s\n", string(yamlData))

	require.Equal(t, "1h30m0s", d.String())
}
