package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/gattlink/internal/gatt"
	"github.com/srg/gattlink/pkg/config"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "v2", formatVersion("2"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "v1.0.0-rc1", formatVersion("v1.0.0-rc1"))
	assert.Equal(t, "", formatVersion(""))
}

func TestParseHexData(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{"plain hex", "ff01", []byte{0xFF, 0x01}},
		{"uppercase", "FF01", []byte{0xFF, 0x01}},
		{"space separated", "ff 01", []byte{0xFF, 0x01}},
		{"colon separated", "ff:01", []byte{0xFF, 0x01}},
		{"dash separated", "ff-01", []byte{0xFF, 0x01}},
		{"0x prefixed", "0xff01", []byte{0xFF, 0x01}},
		{"empty", "", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := parseHexData(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, data)
		})
	}

	_, err := parseHexData("not hex")
	assert.Error(t, err)

	_, err = parseHexData("fff")
	assert.Error(t, err, "odd-length hex must be rejected")
}

func TestFormatPayload(t *testing.T) {
	assert.Equal(t, "ff01", formatPayload([]byte{0xFF, 0x01}, true))
	assert.Equal(t, "abc", formatPayload([]byte("abc"), false))
}

func TestTimeoutFlagDefaults(t *testing.T) {
	want := config.DefaultConfig().OperationTimeout.String()

	flag := writeCmd.Flags().Lookup("timeout")
	require.NotNil(t, flag)
	assert.Equal(t, want, flag.DefValue, "write timeout default MUST come from the config")

	flag = watchCmd.Flags().Lookup("timeout")
	require.NotNil(t, flag)
	assert.Equal(t, want, flag.DefValue, "watch timeout default MUST come from the config")
}

func TestFormatUserError(t *testing.T) {
	assert.Contains(t, formatUserError(gatt.ErrConnectionLost), "connection lost")
	assert.Contains(t, formatUserError(gatt.ErrMissingConfigDescriptor), "notifications")
	assert.Contains(t, formatUserError(context.DeadlineExceeded), "timed out")
	assert.Contains(t, formatUserError(&gatt.RemoteWriteError{Status: gatt.StatusError}), "0x85")
	assert.Equal(t, "plain failure", formatUserError(errors.New("plain failure")))
}
