//go:build !pcap
// +build !pcap

package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadPCAPFile_Stub(t *testing.T) {
	err := ReadPCAPFile(context.Background(), "capture.pcap", 10006, NewBatcher(1), nil, false)
	assert.ErrorIs(t, err, ErrPCAPDisabled)
}
