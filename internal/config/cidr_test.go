package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIDRHost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		prefix  string
		hostnum int
		want    string
		wantErr bool
	}{
		{name: "first host", prefix: "10.10.10.0/24", hostnum: 1, want: "10.10.10.1"},
		{name: "dev slot", prefix: "10.10.10.0/24", hostnum: 2, want: "10.10.10.2"},
		{name: "last address", prefix: "10.10.10.0/24", hostnum: -1, want: "10.10.10.255"},
		{name: "prefix not aligned", prefix: "10.10.10.77/24", hostnum: 4, want: "10.10.10.4"},
		{name: "out of range", prefix: "10.10.10.0/30", hostnum: 4, wantErr: true},
		{name: "negative out of range", prefix: "10.10.10.0/30", hostnum: -5, wantErr: true},
		{name: "ipv6 rejected", prefix: "fd00::/64", hostnum: 1, wantErr: true},
		{name: "garbage", prefix: "10.10.10.0", hostnum: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CIDRHost(tt.prefix, tt.hostnum)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCIDRContains(t *testing.T) {
	t.Parallel()

	ok, err := CIDRContains("10.10.10.0/24", "10.10.10.5")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CIDRContains("10.10.10.0/24", "10.10.11.5")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CIDRContains("10.10.10.0/24", "nope")
	assert.Error(t, err)
}

func TestCIDRHost_WholeSlashThirtyTwo(t *testing.T) {
	t.Parallel()

	got, err := CIDRHost("10.10.10.7/32", 0)
	require.NoError(t, err)
	assert.Equal(t, "10.10.10.7", got)

	_, err = CIDRHost("10.10.10.7/32", 1)
	assert.Error(t, err)
}
