/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string
	Timeout time.Duration

	keyPrefix string
}

func (c *testConfig) KeyPrefix() string {
	return c.keyPrefix
}

func (c *testConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("name", "default-name")
}

func (c *testConfig) Set(dp DataProvider) error {
	var err error
	if c.Name, err = dp.GetString("name"); err != nil {
		return err
	}
	if c.Timeout, err = dp.GetDuration("timeout"); err != nil {
		return err
	}
	return nil
}

func TestLoaderLoadFromReader(t *testing.T) {
	cfgData := bytes.NewBufferString(`
svc:
  name: my-service
  timeout: 15s
`)
	cfg := &testConfig{keyPrefix: "svc"}
	require.NoError(t, NewDefaultLoader("").LoadFromReader(cfgData, DataTypeYAML, cfg))
	require.Equal(t, "my-service", cfg.Name)
	require.Equal(t, 15*time.Second, cfg.Timeout)
}

func TestLoaderAppliesDefaults(t *testing.T) {
	cfg := &testConfig{keyPrefix: "svc"}
	require.NoError(t, NewDefaultLoader("").LoadFromReader(bytes.NewBufferString("svc: {}\n"), DataTypeYAML, cfg))
	require.Equal(t, "default-name", cfg.Name)
}

func TestLoaderLoadsMultipleConfigs(t *testing.T) {
	cfgData := bytes.NewBufferString(`
name: top-level
timeout: 3s
svc:
  name: my-service
  timeout: 15s
`)
	prefixed := &testConfig{keyPrefix: "svc"}
	plain := &testConfig{}
	require.NoError(t, NewDefaultLoader("").LoadFromReader(cfgData, DataTypeYAML, prefixed, plain))
	require.Equal(t, "my-service", prefixed.Name)
	require.Equal(t, 15*time.Second, prefixed.Timeout)
	require.Equal(t, "top-level", plain.Name)
	require.Equal(t, 3*time.Second, plain.Timeout)
}

func TestLoaderLoadFromFile(t *testing.T) {
	cfgFilePath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFilePath, []byte("svc:\n  name: from-file\n"), 0600))

	cfg := &testConfig{keyPrefix: "svc"}
	require.NoError(t, NewDefaultLoader("").LoadFromFile(cfgFilePath, DataTypeYAML, cfg))
	require.Equal(t, "from-file", cfg.Name)
}

func TestLoaderEnvVarOverride(t *testing.T) {
	t.Setenv("MYAPP_SVC_NAME", "from-env")

	cfg := &testConfig{keyPrefix: "svc"}
	require.NoError(t, NewDefaultLoader("myapp").LoadFromReader(
		bytes.NewBufferString("svc:\n  name: from-yaml\n"), DataTypeYAML, cfg))
	require.Equal(t, "from-env", cfg.Name)
}

func TestKeyPrefixedDataProvider(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString("a:\n  b:\n    c: 42\n"), DataTypeYAML))

	dp := NewKeyPrefixedDataProvider(va, "a.b")
	v, err := dp.GetInt("c")
	require.NoError(t, err)
	require.Equal(t, 42, v)

	require.EqualError(t, dp.WrapKeyErr("c", errors.New("test error")), "a.b.c: test error")
}
