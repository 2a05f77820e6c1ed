// Package wire defines the F-Chat command protocol: three-letter command
// codes, their JSON payload types, and the text codec. Every frame is a
// WebSocket text message of the form
//
//	XXX {"key":"value"}
//
// where XXX is a fixed-width alphabetic command tag and the JSON body is
// omitted for zero-argument commands (PIN, CHA, ORS, UPT).
package wire

import "encoding/json"

// Code is a three-letter protocol command tag.
type Code string

// Commands sent by the client.
const (
	CmdIdentify    Code = "IDN" // handshake; server echoes IDN on success
	CmdPing        Code = "PIN" // keepalive; shared both directions
	CmdMessage     Code = "MSG" // channel message
	CmdPrivate     Code = "PRI" // private message
	CmdAd          Code = "LRP" // roleplay ad in a channel
	CmdBroadcast   Code = "BRO" // admin broadcast
	CmdJoin        Code = "JCH" // join channel
	CmdLeave       Code = "LCH" // leave channel
	CmdChannels    Code = "CHA" // request official channel list
	CmdOpenRooms   Code = "ORS" // request open private room list
	CmdStatus      Code = "STA" // set own status
	CmdTyping      Code = "TPN" // typing notification
	CmdRoll        Code = "RLL" // dice roll
	CmdDescription Code = "CDS" // channel description
	CmdCreateRoom  Code = "CCR" // create private channel
	CmdIgnore      Code = "IGN" // ignore list management
	CmdUptime      Code = "UPT" // server uptime request
)

// Commands sent only by the server.
const (
	CmdError       Code = "ERR" // enumerated protocol error
	CmdHello       Code = "HLO" // server greeting after identification
	CmdConnected   Code = "CON" // connected user count; end of handshake
	CmdVariable    Code = "VAR" // server variable (limits, cooldowns)
	CmdOnline      Code = "NLN" // character came online
	CmdOffline     Code = "FLN" // character went offline
	CmdSystem      Code = "SYS" // system message
	CmdChannelInit Code = "ICH" // initial channel data on join
	CmdInvite      Code = "CIU" // channel invitation
	CmdBridge      Code = "RTB" // site bridge event (friends, notes)
	CmdFriends     Code = "FRL" // friends/bookmarks list
	CmdGlobalOps   Code = "ADL" // global operator list
	CmdListOnline  Code = "LIS" // bulk online character list
)

// knownCodes is the closed set the decoder accepts. Codes outside this set
// decode as ErrUnknownCommand so protocol extensions degrade gracefully.
var knownCodes = map[Code]bool{
	CmdIdentify: true, CmdPing: true, CmdMessage: true, CmdPrivate: true,
	CmdAd: true, CmdBroadcast: true, CmdJoin: true, CmdLeave: true,
	CmdChannels: true, CmdOpenRooms: true, CmdStatus: true, CmdTyping: true,
	CmdRoll: true, CmdDescription: true, CmdCreateRoom: true, CmdIgnore: true,
	CmdUptime: true, CmdError: true, CmdHello: true, CmdConnected: true,
	CmdVariable: true, CmdOnline: true, CmdOffline: true, CmdSystem: true,
	CmdChannelInit: true, CmdInvite: true, CmdBridge: true, CmdFriends: true,
	CmdGlobalOps: true, CmdListOnline: true,
}

// Known reports whether code is part of the supported command set.
func Known(code Code) bool { return knownCodes[code] }

// IdentifyPayload is the payload of IDN (client -> server). Method is
// always "ticket".
type IdentifyPayload struct {
	Method        string `json:"method"`
	Account       string `json:"account"`
	Ticket        string `json:"ticket"`
	Character     string `json:"character"`
	ClientName    string `json:"cname"`
	ClientVersion string `json:"cversion"`
}

// IdentifyAck is the payload of IDN (server -> client).
type IdentifyAck struct {
	Character string `json:"character"`
}

// ErrorPayload is the payload of ERR (server -> client).
type ErrorPayload struct {
	Number  int    `json:"number"`
	Message string `json:"message"`
}

// HelloPayload is the payload of HLO.
type HelloPayload struct {
	Message string `json:"message"`
}

// ConnectedPayload is the payload of CON.
type ConnectedPayload struct {
	Count int `json:"count"`
}

// VariablePayload is the payload of VAR. Value varies by variable: integers
// for limits, floats for cooldowns, string arrays for blacklists.
type VariablePayload struct {
	Variable string          `json:"variable"`
	Value    json.RawMessage `json:"value"`
}

// MessagePayload is the payload of MSG and LRP. Character is set only on
// the server -> client direction.
type MessagePayload struct {
	Channel   string `json:"channel"`
	Message   string `json:"message"`
	Character string `json:"character,omitempty"`
}

// PrivatePayload is the payload of PRI. Recipient is set by the client,
// Character by the server.
type PrivatePayload struct {
	Recipient string `json:"recipient,omitempty"`
	Character string `json:"character,omitempty"`
	Message   string `json:"message"`
}

// BroadcastPayload is the payload of BRO.
type BroadcastPayload struct {
	Message   string `json:"message"`
	Character string `json:"character,omitempty"`
}

// CharacterIdentity wraps a character name in channel membership lists.
type CharacterIdentity struct {
	Identity string `json:"identity"`
}

// JoinPayload is the payload of JCH (client -> server).
type JoinPayload struct {
	Channel string `json:"channel"`
}

// JoinedPayload is the payload of JCH (server -> client).
type JoinedPayload struct {
	Channel   string            `json:"channel"`
	Character CharacterIdentity `json:"character"`
	Title     string            `json:"title"`
}

// LeftPayload is the payload of LCH (server -> client).
type LeftPayload struct {
	Channel   string `json:"channel"`
	Character string `json:"character"`
}

// ChannelInitPayload is the payload of ICH, sent once after joining.
type ChannelInitPayload struct {
	Channel string              `json:"channel"`
	Mode    string              `json:"mode"`
	Users   []CharacterIdentity `json:"users"`
}

// DescriptionPayload is the payload of CDS.
type DescriptionPayload struct {
	Channel     string `json:"channel"`
	Description string `json:"description"`
}

// ChannelInfo is one entry of a CHA or ORS channel list. Official channels
// carry their display name in Name; private rooms have an opaque Name
// ("ADH-...") and a human Title.
type ChannelInfo struct {
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Characters int    `json:"characters"`
}

// ChannelListPayload is the payload of CHA and ORS (server -> client).
type ChannelListPayload struct {
	Channels []ChannelInfo `json:"channels"`
}

// InvitePayload is the payload of CIU (server -> client).
type InvitePayload struct {
	Sender string `json:"sender"`
	Title  string `json:"title"`
	Name   string `json:"name"`
}

// OnlinePayload is the payload of NLN.
type OnlinePayload struct {
	Identity string `json:"identity"`
	Gender   string `json:"gender"`
	Status   string `json:"status"`
}

// OfflinePayload is the payload of FLN.
type OfflinePayload struct {
	Character string `json:"character"`
}

// StatusPayload is the payload of STA in both directions. Character is set
// only on the server -> client direction.
type StatusPayload struct {
	Status    string `json:"status"`
	StatusMsg string `json:"statusmsg"`
	Character string `json:"character,omitempty"`
}

// TypingPayload is the payload of TPN in both directions.
type TypingPayload struct {
	Character string `json:"character"`
	Status    string `json:"status"`
}

// SystemPayload is the payload of SYS.
type SystemPayload struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

// CreateRoomPayload is the payload of CCR. Channel carries the desired
// room title; the server assigns the opaque identifier.
type CreateRoomPayload struct {
	Channel string `json:"channel"`
}

// IgnorePayload is the payload of IGN. Action is one of add, delete,
// notify or list.
type IgnorePayload struct {
	Action    string `json:"action"`
	Character string `json:"character,omitempty"`
}

// RollPayload is the payload of RLL (client -> server).
type RollPayload struct {
	Channel string `json:"channel"`
	Dice    string `json:"dice"`
}

// FriendsPayload is the payload of FRL.
type FriendsPayload struct {
	Characters []string `json:"characters"`
}

// GlobalOpsPayload is the payload of ADL.
type GlobalOpsPayload struct {
	Ops []string `json:"ops"`
}
