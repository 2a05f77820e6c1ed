package fchat

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/feathrs/fchat-go/roster"
	"github.com/feathrs/fchat-go/wire"
)

// handleFrame decodes one inbound frame and routes it. Decode failures and
// unknown codes never stop the read loop; they surface as diagnostic
// events instead.
func (c *Client) handleFrame(data []byte) {
	cmd, err := wire.Decode(data)
	if err != nil {
		raw := make([]byte, len(data))
		copy(raw, data)
		c.disp.publish(UnrecognizedFrame{Code: string(cmd.Code), Raw: raw})
		slog.Debug("unrecognized frame", "code", cmd.Code, "error", err)
		return
	}
	if h, ok := handlers[cmd.Code]; ok {
		h(c, cmd.Payload)
	}
}

// handlers routes server commands. Codes absent here (client-only commands
// and list frames we do not track) are accepted and ignored.
var handlers = map[wire.Code]func(*Client, json.RawMessage){
	wire.CmdPing:        handlePing,
	wire.CmdError:       handleError,
	wire.CmdHello:       handleHello,
	wire.CmdConnected:   handleConnected,
	wire.CmdVariable:    handleVariable,
	wire.CmdOnline:      handleOnline,
	wire.CmdOffline:     handleOffline,
	wire.CmdStatus:      handleStatus,
	wire.CmdTyping:      handleTyping,
	wire.CmdMessage:     handleChannelMessage,
	wire.CmdAd:          handleAd,
	wire.CmdPrivate:     handlePrivate,
	wire.CmdBroadcast:   handleBroadcast,
	wire.CmdSystem:      handleSystem,
	wire.CmdJoin:        handleJoined,
	wire.CmdLeave:       handleLeft,
	wire.CmdChannelInit: handleChannelInit,
	wire.CmdDescription: handleDescription,
	wire.CmdChannels:    handleChannelList,
	wire.CmdOpenRooms:   handleChannelList,
	wire.CmdInvite:      handleInvite,
	wire.CmdFriends:     handleFriends,
	wire.CmdGlobalOps:   handleGlobalOps,
	wire.CmdIdentify:    handleLateIdentify,
}

func handlePing(c *Client, _ json.RawMessage) {
	pong, _ := wire.Encode(wire.CmdPing, nil)
	select {
	case c.sendCh <- pong:
	default:
	}
}

func handleError(c *Client, raw json.RawMessage) {
	var p wire.ErrorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("malformed ERR payload", "error", err)
		return
	}
	code, err := wire.ErrorCodeFromInt(p.Number)
	if err != nil {
		slog.Debug("unknown error number", "number", p.Number)
	}
	c.lastErr.Store(int32(code))
	c.disp.publish(ProtocolError{Code: code, Raw: p.Number, Message: p.Message})
}

func handleHello(c *Client, raw json.RawMessage) {
	var p wire.HelloPayload
	json.Unmarshal(raw, &p)
	slog.Info("server hello", "message", p.Message)
}

func handleConnected(c *Client, raw json.RawMessage) {
	var p wire.ConnectedPayload
	json.Unmarshal(raw, &p)
	slog.Debug("handshake complete", "online", p.Count)
}

func handleVariable(c *Client, raw json.RawMessage) {
	var p wire.VariablePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.varsMu.Lock()
	defer c.varsMu.Unlock()
	switch p.Variable {
	case "chat_max":
		json.Unmarshal(p.Value, &c.vars.ChatMax)
	case "priv_max":
		json.Unmarshal(p.Value, &c.vars.PrivMax)
	case "lfrp_max":
		json.Unmarshal(p.Value, &c.vars.AdMax)
	case "msg_flood":
		json.Unmarshal(p.Value, &c.vars.ChatCooldown)
	case "lfrp_flood":
		json.Unmarshal(p.Value, &c.vars.AdCooldown)
	case "sta_flood":
		json.Unmarshal(p.Value, &c.vars.StatusCooldown)
	default:
		slog.Debug("unhandled server variable", "variable", p.Variable)
	}
}

// handleOnline registers observed characters under their own name. The
// wire carries no separate token for other characters, so the name doubles
// as the identifier; own characters keep the numeric ids the ticket seeded
// and are left alone here.
func handleOnline(c *Client, raw json.RawMessage) {
	var p wire.OnlinePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if _, ok := c.reg.Identifier(roster.Characters, p.Identity); !ok {
		c.upsertName(roster.Characters, p.Identity, p.Identity)
	}
	c.disp.publish(CharacterStatus{
		Character: p.Identity,
		Online:    true,
		Status:    p.Status,
		Gender:    p.Gender,
	})
}

// handleOffline drops the character's registry entry; a later NLN (or, for
// own characters, the next ticket acquisition) re-creates it.
func handleOffline(c *Client, raw json.RawMessage) {
	var p wire.OfflinePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if id, ok := c.reg.Identifier(roster.Characters, p.Character); ok {
		c.reg.Remove(roster.Characters, id)
	}
	c.disp.publish(CharacterStatus{Character: p.Character, Online: false})
}

func handleStatus(c *Client, raw json.RawMessage) {
	var p wire.StatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(CharacterStatus{
		Character: p.Character,
		Online:    true,
		Status:    p.Status,
		StatusMsg: p.StatusMsg,
	})
}

func handleTyping(c *Client, raw json.RawMessage) {
	var p wire.TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(Typing{Character: p.Character, Status: p.Status})
}

func handleChannelMessage(c *Client, raw json.RawMessage) {
	var p wire.MessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(MessageReceived{
		Source:  SourceChannel,
		Channel: p.Channel,
		Sender:  p.Character,
		Message: p.Message,
	})
}

func handleAd(c *Client, raw json.RawMessage) {
	var p wire.MessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(MessageReceived{
		Source:  SourceAd,
		Channel: p.Channel,
		Sender:  p.Character,
		Message: p.Message,
	})
}

func handlePrivate(c *Client, raw json.RawMessage) {
	var p wire.PrivatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(MessageReceived{
		Source:  SourcePrivate,
		Sender:  p.Character,
		Message: p.Message,
	})
}

func handleBroadcast(c *Client, raw json.RawMessage) {
	var p wire.BroadcastPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(MessageReceived{
		Source:  SourceBroadcast,
		Sender:  p.Character,
		Message: p.Message,
	})
}

func handleSystem(c *Client, raw json.RawMessage) {
	var p wire.SystemPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(SystemMessage{Channel: p.Channel, Message: p.Message})
}

func handleJoined(c *Client, raw json.RawMessage) {
	var p wire.JoinedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	title := p.Title
	if title == "" {
		title = p.Channel
	}
	c.upsertName(roster.Channels, p.Channel, title)
	if equalNames(p.Character.Identity, c.character) {
		c.joinedMu.Lock()
		c.joined[p.Channel] = true
		c.joinedMu.Unlock()
	}
	c.disp.publish(ChannelEvent{
		Kind:      ChannelJoined,
		Channel:   p.Channel,
		Character: p.Character.Identity,
		Title:     title,
	})
}

func handleLeft(c *Client, raw json.RawMessage) {
	var p wire.LeftPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if equalNames(p.Character, c.character) {
		c.joinedMu.Lock()
		delete(c.joined, p.Channel)
		c.joinedMu.Unlock()
		c.reg.Remove(roster.Channels, p.Channel)
	}
	c.disp.publish(ChannelEvent{
		Kind:      ChannelLeft,
		Channel:   p.Channel,
		Character: p.Character,
	})
}

func handleChannelInit(c *Client, raw json.RawMessage) {
	var p wire.ChannelInitPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	members := make([]string, 0, len(p.Users))
	for _, u := range p.Users {
		members = append(members, u.Identity)
	}
	c.disp.publish(ChannelEvent{
		Kind:    ChannelSync,
		Channel: p.Channel,
		Members: members,
	})
}

func handleDescription(c *Client, raw json.RawMessage) {
	var p wire.DescriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	c.disp.publish(ChannelEvent{
		Kind:        ChannelDescribed,
		Channel:     p.Channel,
		Description: p.Description,
	})
}

// handleChannelList folds CHA and ORS listings into the channel registry.
// Official channels use their name as both identifier and title; private
// rooms carry an opaque name and a human title.
func handleChannelList(c *Client, raw json.RawMessage) {
	var p wire.ChannelListPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	for _, ch := range p.Channels {
		title := ch.Title
		if title == "" {
			title = ch.Name
		}
		c.upsertName(roster.Channels, ch.Name, title)
	}
}

func handleInvite(c *Client, raw json.RawMessage) {
	var p wire.InvitePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	title := p.Title
	if title == "" {
		title = p.Name
	}
	c.upsertName(roster.Channels, p.Name, title)
	c.disp.publish(ChannelEvent{
		Kind:      ChannelInvite,
		Channel:   p.Name,
		Character: p.Sender,
		Title:     title,
	})
}

func handleFriends(c *Client, raw json.RawMessage) {
	var p wire.FriendsPayload
	json.Unmarshal(raw, &p)
	slog.Debug("friends list", "count", len(p.Characters))
}

func handleGlobalOps(c *Client, raw json.RawMessage) {
	var p wire.GlobalOpsPayload
	json.Unmarshal(raw, &p)
	slog.Debug("global operator list", "count", len(p.Ops))
}

// handleLateIdentify covers an IDN echo arriving after the handshake has
// already completed, which some server builds emit on rejoin.
func handleLateIdentify(c *Client, raw json.RawMessage) {
	var p wire.IdentifyAck
	json.Unmarshal(raw, &p)
	slog.Debug("late identify ack", "character", p.Character)
}

// equalNames compares display names the way the server does.
func equalNames(a, b string) bool { return strings.EqualFold(a, b) }
