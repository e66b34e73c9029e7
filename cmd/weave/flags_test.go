package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
)

func resetViperForTest(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func setViper(t *testing.T, key string, value any) {
	t.Helper()
	viper.Set(key, value)
}

func TestTagFlag(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []arweave.Tag
		wantErr bool
	}{
		{
			name:  "single tag",
			input: []string{"App=site"},
			want:  []arweave.Tag{{Name: "App", Value: "site"}},
		},
		{
			name:  "order preserved",
			input: []string{"b=2", "a=1"},
			want:  []arweave.Tag{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}},
		},
		{
			name:  "value may contain equals",
			input: []string{"Query=x=y"},
			want:  []arweave.Tag{{Name: "Query", Value: "x=y"}},
		},
		{
			name:  "empty value allowed",
			input: []string{"Flag="},
			want:  []arweave.Tag{{Name: "Flag", Value: ""}},
		},
		{
			name:    "missing separator",
			input:   []string{"novalue"},
			wantErr: true,
		},
		{
			name:    "empty name",
			input:   []string{"=value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f tagFlag
			var err error
			for _, in := range tt.input {
				if err = f.Set(in); err != nil {
					break
				}
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Tags())
		})
	}
}

func TestTagFlagString(t *testing.T) {
	var f tagFlag
	require.NoError(t, f.Set("a=1"))
	require.NoError(t, f.Set("b=2"))
	assert.Equal(t, "a=1,b=2", f.String())
	assert.Equal(t, "name=value", f.Type())
}

func TestDeployFlagsParse(t *testing.T) {
	var f deployFlags
	fs := pflag.NewFlagSet("deploy", pflag.ContinueOnError)
	f.register(fs)

	err := fs.Parse([]string{
		"--tag", "App=docs",
		"--tag", "Env=prod",
		"--index", "home.html",
		"--use-bundler", "https://node2.bundlr.network",
		"-e", "*.map", "-e", "drafts",
		"--fee-multiplier", "1.5",
		"-y",
	})
	require.NoError(t, err)

	assert.Equal(t, []arweave.Tag{{Name: "App", Value: "docs"}, {Name: "Env", Value: "prod"}}, f.tags.Tags())
	assert.Equal(t, "home.html", f.index)
	assert.Equal(t, "https://node2.bundlr.network", f.bundler)
	assert.Equal(t, []string{"*.map", "drafts"}, f.exclude)
	assert.InDelta(t, 1.5, f.feeMultiplier, 1e-9)
	assert.True(t, f.yes)
	assert.Equal(t, "pretty", f.output)
	assert.NoError(t, f.validate())
}

func TestDeployFlagsValidate(t *testing.T) {
	tests := []struct {
		name  string
		flags deployFlags
		ok    bool
	}{
		{name: "defaults", flags: deployFlags{feeMultiplier: 1}, ok: true},
		{name: "bundler and bundle", flags: deployFlags{feeMultiplier: 1, bundler: "https://b", localBundle: true}},
		{name: "multiplier below one", flags: deployFlags{feeMultiplier: 0.5}},
		{name: "negative concurrency", flags: deployFlags{feeMultiplier: 1, concurrency: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
