package fchat

import "github.com/feathrs/fchat-go/wire"

// Typed wrappers over Send for the common client commands. All of them
// fail with ErrNotConnected outside the Connected state.

// SendMessage posts a message to a channel.
func (c *Client) SendMessage(channel, message string) error {
	return c.Send(wire.CmdMessage, wire.MessagePayload{Channel: channel, Message: message})
}

// SendPrivateMessage sends a private message to a character.
func (c *Client) SendPrivateMessage(recipient, message string) error {
	return c.Send(wire.CmdPrivate, wire.PrivatePayload{Recipient: recipient, Message: message})
}

// SendAd posts a roleplay ad to a channel. Ads share the message payload
// shape but are throttled separately by the server.
func (c *Client) SendAd(channel, message string) error {
	return c.Send(wire.CmdAd, wire.MessagePayload{Channel: channel, Message: message})
}

// Broadcast sends a global broadcast. Requires admin rights; the server
// answers ERR otherwise.
func (c *Client) Broadcast(message string) error {
	return c.Send(wire.CmdBroadcast, wire.BroadcastPayload{Message: message})
}

// JoinChannel joins a channel by identifier.
func (c *Client) JoinChannel(channel string) error {
	return c.Send(wire.CmdJoin, wire.JoinPayload{Channel: channel})
}

// LeaveChannel leaves a channel by identifier.
func (c *Client) LeaveChannel(channel string) error {
	return c.Send(wire.CmdLeave, wire.JoinPayload{Channel: channel})
}

// SetStatus updates the own character's status.
func (c *Client) SetStatus(status, message string) error {
	return c.Send(wire.CmdStatus, wire.StatusPayload{Status: status, StatusMsg: message})
}

// SetTyping reports the own typing state on a private conversation.
func (c *Client) SetTyping(character, status string) error {
	return c.Send(wire.CmdTyping, wire.TypingPayload{Character: character, Status: status})
}

// RequestChannelList asks for the official channel list; the reply feeds
// the channel registry.
func (c *Client) RequestChannelList() error {
	return c.Send(wire.CmdChannels, nil)
}

// RequestOpenRooms asks for the open private room list.
func (c *Client) RequestOpenRooms() error {
	return c.Send(wire.CmdOpenRooms, nil)
}

// Roll rolls dice in a channel, e.g. "2d6+3" or "bottle".
func (c *Client) Roll(channel, dice string) error {
	return c.Send(wire.CmdRoll, wire.RollPayload{Channel: channel, Dice: dice})
}

// CreateRoom asks the server to create a private room with the given
// title. The server responds with a join for the new identifier.
func (c *Client) CreateRoom(title string) error {
	return c.Send(wire.CmdCreateRoom, wire.CreateRoomPayload{Channel: title})
}

// IgnoreCharacter adds a character to the server-side ignore list.
func (c *Client) IgnoreCharacter(character string) error {
	return c.Send(wire.CmdIgnore, wire.IgnorePayload{Action: "add", Character: character})
}

// UnignoreCharacter removes a character from the ignore list.
func (c *Client) UnignoreCharacter(character string) error {
	return c.Send(wire.CmdIgnore, wire.IgnorePayload{Action: "delete", Character: character})
}
