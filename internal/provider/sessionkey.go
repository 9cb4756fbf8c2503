// Session key codec.
//
// A session key is the stable string identity correlating a conversation to a
// messaging surface across agent/channel/peer dimensions:
//
//	agent:{agentId}:{channel}:{peerKind}:{peerId}[:{dmScope}]
//
// Build and Parse are inverses for every valid parameter combination.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// PeerKind classifies the remote end of a session.
type PeerKind string

const (
	PeerDirect  PeerKind = "direct"
	PeerGroup   PeerKind = "group"
	PeerChannel PeerKind = "channel"
)

// Valid reports whether k is a known peer kind.
func (k PeerKind) Valid() bool {
	switch k {
	case PeerDirect, PeerGroup, PeerChannel:
		return true
	}
	return false
}

// SessionKeyParams are the components of a session key. DMScope is optional
// and distinguishes per-user sub-sessions inside a shared surface.
type SessionKeyParams struct {
	AgentID  string
	Channel  string
	PeerKind PeerKind
	PeerID   string
	DMScope  string
}

// Session key parsing errors.
var (
	ErrBadSessionKey = errors.New("malformed session key")
	ErrBadPeerKind   = errors.New("invalid peer kind in session key")
)

const sessionKeyPrefix = "agent"

// BuildSessionKey renders params as a session key string. It is a pure
// function; validation happens in ParseSessionKey on the way back.
func BuildSessionKey(p SessionKeyParams) string {
	key := fmt.Sprintf("%s:%s:%s:%s:%s", sessionKeyPrefix, p.AgentID, p.Channel, p.PeerKind, p.PeerID)
	if p.DMScope != "" {
		key += ":" + p.DMScope
	}
	return key
}

// ParseSessionKey splits a session key back into its components. The peer id
// must not contain ':' — the optional trailing dmScope segment is the only
// ambiguity and is resolved by segment count.
func ParseSessionKey(key string) (SessionKeyParams, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 && len(parts) != 6 {
		return SessionKeyParams{}, ErrBadSessionKey
	}
	if parts[0] != sessionKeyPrefix {
		return SessionKeyParams{}, ErrBadSessionKey
	}
	for _, seg := range parts[1:] {
		if seg == "" {
			return SessionKeyParams{}, ErrBadSessionKey
		}
	}
	kind := PeerKind(parts[3])
	if !kind.Valid() {
		return SessionKeyParams{}, ErrBadPeerKind
	}
	p := SessionKeyParams{
		AgentID:  parts[1],
		Channel:  parts[2],
		PeerKind: kind,
		PeerID:   parts[4],
	}
	if len(parts) == 6 {
		p.DMScope = parts[5]
	}
	return p, nil
}
