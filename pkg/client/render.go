package client

import (
	"fmt"
	"strings"

	"github.com/NicolasHaas/relaychat/pkg/model"
	"github.com/NicolasHaas/relaychat/pkg/protocol"
)

// Format renders a server frame as one line of terminal output. Frames the
// terminal has nothing to show for yield "".
func Format(msg *protocol.Message) string {
	switch msg.Type {
	case protocol.TypeChat:
		if msg.From == model.SystemSender {
			return fmt.Sprintf("[%s] %s", msg.Timestamp, msg.Text)
		}
		return fmt.Sprintf("[%s] %s: %s", msg.Timestamp, msg.From, msg.Text)
	case protocol.TypeOnlineUsers:
		return fmt.Sprintf("Online (%d): %s", len(msg.Users), strings.Join(msg.Users, ", "))
	case protocol.TypeError:
		reason := msg.Reason()
		if reason == "" {
			reason = "unknown error"
		}
		return "Error: " + reason
	case protocol.TypeRegisterResult, protocol.TypeLoginResult:
		return msg.Reason()
	default:
		return ""
	}
}

// HelpText lists the chat commands understood by the terminal client.
const HelpText = `Commands:
  /help     show this help
  /online   list online users
  /exit     leave the chat`
