package rules

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderMissingDirReturnsBuiltin(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent"), slog.Default())

	rules, err := l.Load()
	require.NoError(t, err)
	assert.Len(t, rules, len(builtinRules))
	assert.Equal(t, "R001", rules[0].ID)
}

func TestLoaderExtendsBuiltin(t *testing.T) {
	dir := t.TempDir()
	content := `
- id: R101
  name: MySQL Access
  protocol: TCP
  dst_port: 3306
  severity: medium
  category: suspicious
- id: R102
  name: Redis Access
  protocol: TCP
  dst_port: 6379
  severity: high
  category: suspicious
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-custom.yaml"), []byte(content), 0o644))

	l := NewLoader(dir, slog.Default())
	rules, err := l.Load()
	require.NoError(t, err)

	require.Len(t, rules, len(builtinRules)+2)
	assert.Equal(t, "R101", rules[len(builtinRules)].ID)
	assert.Equal(t, "R102", rules[len(builtinRules)+1].ID)
}

func TestLoaderSingleRuleDocument(t *testing.T) {
	dir := t.TempDir()
	content := `
id: R200
name: LDAP Access
protocol: TCP
dst_port: 389
severity: low
category: network
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ldap.yml"), []byte(content), 0o644))

	l := NewLoader(dir, slog.Default())
	rules, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "R200", rules[len(rules)-1].ID)
}

func TestLoaderSkipsInvalidRules(t *testing.T) {
	dir := t.TempDir()
	content := `
- id: ""
  name: no id
  severity: low
- id: R300
  name: bad severity
  severity: urgent
- id: R301
  name: valid
  severity: low
  category: network
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mixed.yaml"), []byte(content), 0o644))

	l := NewLoader(dir, slog.Default())
	rules, err := l.Load()
	require.NoError(t, err)

	require.Len(t, rules, len(builtinRules)+1)
	assert.Equal(t, "R301", rules[len(rules)-1].ID)
}

func TestEngineRulesFileListAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.rules")
	seed := `# local rules
alert tcp any any -> $HOME_NET 22 (msg:"SSH"; sid:1000001;)

# comment
alert icmp any any -> $HOME_NET any (msg:"ICMP"; sid:1000002;)
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	f := NewEngineRulesFile(path)
	listed, err := f.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "0", listed[0].ID)
	assert.Contains(t, listed[0].Content, "sid:1000001")
	assert.True(t, listed[0].IsActive)

	require.NoError(t, f.Append(`alert udp any any -> $HOME_NET 53 (msg:"DNS"; sid:1000003;)`))

	listed, err = f.List()
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Contains(t, listed[2].Content, "sid:1000003")
}

func TestEngineRulesFileMissing(t *testing.T) {
	f := NewEngineRulesFile(filepath.Join(t.TempDir(), "none.rules"))
	listed, err := f.List()
	require.NoError(t, err)
	assert.Empty(t, listed)
}
