package protocol

import "encoding/json"

// Type identifies a frame on the wire.
type Type string

const (
	TypeRegister       Type = "register"
	TypeRegisterResult Type = "register_result"
	TypeLogin          Type = "login"
	TypeLoginResult    Type = "login_result"
	TypeGetOnline      Type = "get_online"
	TypeOnlineUsers    Type = "online_users"
	TypeChat           Type = "chat"
	TypeError          Type = "error"
	TypeExit           Type = "exit"
)

// Message is a single frame. Only the fields relevant to Type are set.
type Message struct {
	Type Type `json:"type"`

	// register, login
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// register_result, login_result, error
	OK      *bool  `json:"ok,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// online_users
	Users []string `json:"users,omitempty"`

	// chat
	From      string `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Succeeded reports whether a result frame carries ok:true.
func (m *Message) Succeeded() bool {
	return m.OK != nil && *m.OK
}

// Reason returns the human-readable text of a result or error frame.
func (m *Message) Reason() string {
	if m.Error != "" {
		return m.Error
	}
	return m.Message
}

func boolPtr(b bool) *bool { return &b }

// Register builds a client registration request.
func Register(username, password string) *Message {
	return &Message{Type: TypeRegister, Username: username, Password: password}
}

// Login builds a client login request.
func Login(username, password string) *Message {
	return &Message{Type: TypeLogin, Username: username, Password: password}
}

// GetOnline builds a request for the online user list.
func GetOnline() *Message { return &Message{Type: TypeGetOnline} }

// Chat builds a client chat request.
func Chat(text string) *Message { return &Message{Type: TypeChat, Text: text} }

// Exit builds a client exit request.
func Exit() *Message { return &Message{Type: TypeExit} }

// Success builds an ok:true result of the given type.
func Success(t Type, message string) *Message {
	return &Message{Type: t, OK: boolPtr(true), Message: message}
}

// Failure builds an ok:false result of the given type.
func Failure(t Type, reason string) *Message {
	return &Message{Type: t, OK: boolPtr(false), Error: reason}
}

// Error builds a protocol error frame.
func Error(message string) *Message {
	return &Message{Type: TypeError, Message: message}
}

// OnlineUsers builds the online user list frame. A nil list is sent as [].
func OnlineUsers(users []string) *Message {
	if users == nil {
		users = []string{}
	}
	return &Message{Type: TypeOnlineUsers, Users: users}
}

// ChatEvent builds a relayed chat frame.
func ChatEvent(from, text, timestamp string) *Message {
	return &Message{Type: TypeChat, From: from, Text: text, Timestamp: timestamp}
}

// MarshalJSON always emits the users array for online_users frames, even
// when it is empty.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire Message
	if m.Type != TypeOnlineUsers {
		return json.Marshal(wire(m))
	}
	users := m.Users
	if users == nil {
		users = []string{}
	}
	return json.Marshal(struct {
		wire
		Users []string `json:"users"`
	}{wire(m), users})
}
