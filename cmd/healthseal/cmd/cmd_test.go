package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/healthseal/crypto"
)

// resetFlags restores every flag to its default so one Execute does not leak
// values into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace([]string{})
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func baseArgs(dir string) []string {
	return []string{
		"--data-dir", dir,
		"--store", "bbolt",
		"--passphrase", "correct horse battery staple",
		"--kdf-profile", "interactive",
		"--log-level", "error",
	}
}

func TestSplitParts(t *testing.T) {
	assert.Equal(t, []string{"metformin", "500mg", ""}, splitParts("metformin:500mg", 3))
	assert.Equal(t, []string{"a", "b:c"}, splitParts("a:b:c", 2))
	assert.Equal(t, []string{"asthma", "", ""}, splitParts(" asthma ", 3))
}

func TestCLI_EncryptDecryptInspect(t *testing.T) {
	dir := t.TempDir()
	base := baseArgs(dir)

	out, err := run(t, append([]string{"encrypt", "diabetes"}, base...)...)
	require.NoError(t, err)
	envelope := strings.TrimSpace(out)
	assert.NotEqual(t, "diabetes", envelope)

	out, err = run(t, append([]string{"decrypt", envelope}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, "diabetes\n", out)

	out, err = run(t, "inspect", envelope)
	require.NoError(t, err)
	assert.Equal(t, "envelope scheme=v1 bytes=36 payload=8\n", out)

	out, err = run(t, "inspect", `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, "plaintext\n", out)

	// Flip the last character, which lies in the tag.
	last := "A"
	if strings.HasSuffix(envelope, "A") {
		last = "B"
	}
	tampered := envelope[:len(envelope)-1] + last
	_, err = run(t, append([]string{"decrypt", tampered}, base...)...)
	assert.Error(t, err)
}

func TestCLI_AEADSchemeAndJSON(t *testing.T) {
	dir := t.TempDir()
	base := baseArgs(dir)

	out, err := run(t, append([]string{"encrypt", `{"dose":"500mg"}`, "--scheme", "aesgcm"}, base...)...)
	require.NoError(t, err)
	envelope := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(envelope, "v2:aesgcm:"))

	out, err = run(t, append([]string{"decrypt", "--json", envelope}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"dose": "500mg"`)
}

func TestCLI_DecryptJSONReportsRejections(t *testing.T) {
	dir := t.TempDir()
	base := baseArgs(dir)

	out, err := run(t, append([]string{"encrypt", "null"}, base...)...)
	require.NoError(t, err)
	null := strings.TrimSpace(out)

	out, err = run(t, append([]string{"decrypt", "--json", null}, base...)...)
	require.NoError(t, err, "JSON null is a valid document")
	assert.Equal(t, "null\n", out)

	out, err = run(t, append([]string{"encrypt", "plain words"}, base...)...)
	require.NoError(t, err)
	_, err = run(t, append([]string{"decrypt", "--json", strings.TrimSpace(out)}, base...)...)
	assert.ErrorIs(t, err, crypto.ErrParse)

	// 33 bytes encode without padding, so the last character lies in the tag.
	out, err = run(t, append([]string{"encrypt", "[1,2]"}, base...)...)
	require.NoError(t, err)
	envelope := strings.TrimSpace(out)
	require.Len(t, envelope, 44)
	last := "A"
	if strings.HasSuffix(envelope, "A") {
		last = "B"
	}
	_, err = run(t, append([]string{"decrypt", "--json", envelope[:len(envelope)-1] + last}, base...)...)
	assert.ErrorIs(t, err, crypto.ErrTagMismatch)
}

func TestCLI_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, append([]string{"key", "status"}, baseArgs(dir)...)...)
	require.NoError(t, err)

	_, err = run(t, "key", "status", "--data-dir", dir, "--passphrase", "wrong", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong keychain passphrase")
}

func TestCLI_ProfileLifecycle(t *testing.T) {
	dir := t.TempDir()
	base := baseArgs(dir)

	out, err := run(t, append([]string{"profile", "put", "--id", "alice",
		"--condition", "asthma:2012",
		"--medication", "salbutamol:100mcg:as needed",
		"--allergy", "penicillin:hives:moderate"}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	out, err = run(t, append([]string{"profile", "show", "alice"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "asthma"`)
	assert.Contains(t, out, `"frequency": "as needed"`)
	assert.Contains(t, out, `"severity": "moderate"`)

	out, err = run(t, append([]string{"profile", "list"}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	out, err = run(t, append([]string{"profile", "status", "alice"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "conditions")
	assert.NotContains(t, out, "legacy")

	out, err = run(t, append([]string{"migrate"}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, "migrated 0 field(s) across 0 profile(s)\n", out)

	_, err = run(t, append([]string{"profile", "delete", "alice"}, base...)...)
	require.NoError(t, err)
	_, err = run(t, append([]string{"profile", "show", "alice"}, base...)...)
	assert.Error(t, err)
}

func TestCLI_ProfileFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bob.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"bob","supplements":[{"name":"iron","dose":"65mg"}]}`), 0o600))

	out, err := run(t, append([]string{"profile", "put", "--file", path}, baseArgs(dir)...)...)
	require.NoError(t, err)
	assert.Equal(t, "bob\n", out)

	out, err = run(t, append([]string{"profile", "show", "bob"}, baseArgs(dir)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "iron"`)
	assert.NotContains(t, out, "asthma", "flags from an earlier run must not leak")
}

func TestCLI_KeyClear(t *testing.T) {
	dir := t.TempDir()
	base := baseArgs(dir)

	out, err := run(t, append([]string{"key", "status"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "absent")

	out, err = run(t, append([]string{"encrypt", "asthma"}, base...)...)
	require.NoError(t, err)
	envelope := strings.TrimSpace(out)

	out, err = run(t, append([]string{"key", "status"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "present")

	_, err = run(t, append([]string{"key", "clear"}, base...)...)
	require.Error(t, err, "clear requires --yes")

	_, err = run(t, append([]string{"key", "clear", "--yes"}, base...)...)
	require.NoError(t, err)

	_, err = run(t, append([]string{"decrypt", envelope}, base...)...)
	assert.Error(t, err, "envelopes under the cleared key are unreadable")
}

func TestCLI_MetricsFile(t *testing.T) {
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "healthseal.prom")

	_, err := run(t, append([]string{"encrypt", "asthma", "--metrics-file", metricsPath}, baseArgs(dir)...)...)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "healthseal_crypto_operations_total")
}

func TestCLI_MemoryStore(t *testing.T) {
	out, err := run(t, "encrypt", "asthma", "--store", "memory", "--log-level", "error")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestCLI_InvalidConfig(t *testing.T) {
	_, err := run(t, "key", "status", "--store", "sqlite")
	assert.Error(t, err)

	_, err = run(t, "encrypt", "x", "--store", "memory", "--scheme", "rot13")
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version "+Version)
}
