package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		msg  *protocol.Message
		want string
	}{
		{"chat", protocol.ChatEvent("alice", "hi", "14:03:09"), "[14:03:09] alice: hi"},
		{"system notice", protocol.ChatEvent("System", "bob connected", "14:03:10"), "[14:03:10] bob connected"},
		{"online users", protocol.OnlineUsers([]string{"alice", "bob"}), "Online (2): alice, bob"},
		{"nobody online", protocol.OnlineUsers(nil), "Online (0): "},
		{"error", protocol.Error("log in first: chat"), "Error: log in first: chat"},
		{"empty error", &protocol.Message{Type: protocol.TypeError}, "Error: unknown error"},
		{"login failure", protocol.Failure(protocol.TypeLoginResult, "already online"), "already online"},
		{"unknown", &protocol.Message{Type: "dance"}, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.msg))
		})
	}
}
