package memsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dotsetgreg/dotrecall/pkg/bus"
)

func TestDeltaDigest(t *testing.T) {
	base := []Entry{
		{Role: bus.RoleHuman, Text: "hello"},
		{Role: bus.RoleAgent, Text: "hi"},
	}

	testcases := []struct {
		name       string
		sessionKey string
		watermark  int
		entries    []Entry
		wantEqual  bool
	}{
		{
			name:       "identical-inputs",
			sessionKey: "chat-1",
			watermark:  2,
			entries:    base,
			wantEqual:  true,
		},
		{
			name:       "different-session",
			sessionKey: "chat-2",
			watermark:  2,
			entries:    base,
		},
		{
			name:       "different-watermark",
			sessionKey: "chat-1",
			watermark:  3,
			entries:    base,
		},
		{
			name:       "different-content",
			sessionKey: "chat-1",
			watermark:  2,
			entries: []Entry{
				{Role: bus.RoleHuman, Text: "hello"},
				{Role: bus.RoleAgent, Text: "hi!"},
			},
		},
		{
			name:       "different-role",
			sessionKey: "chat-1",
			watermark:  2,
			entries: []Entry{
				{Role: bus.RoleAgent, Text: "hello"},
				{Role: bus.RoleHuman, Text: "hi"},
			},
		},
	}

	reference := deltaDigest("chat-1", 2, base)
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			digest := deltaDigest(tc.sessionKey, tc.watermark, tc.entries)
			assert.Len(t, digest, 32)
			if tc.wantEqual {
				assert.Equal(t, reference, digest)
			} else {
				assert.NotEqual(t, reference, digest)
			}
		})
	}
}

func TestDeltaDigest_EmptyDelta(t *testing.T) {
	a := deltaDigest("chat-1", 0, nil)
	b := deltaDigest("chat-1", 0, []Entry{})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, deltaDigest("chat-1", 1, nil))
}
