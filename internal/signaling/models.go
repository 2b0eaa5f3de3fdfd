package signaling

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"call-relay/internal/calls"
)

type Type string

const (
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
)

const (
	maxSDPBytes       = 64 << 10
	maxCandidateBytes = 1 << 10
)

// Message is one entry of a call's append-only signaling log.
// Seq is 1-based and strictly increasing per call.
type Message struct {
	CallID   string `json:"call_id" db:"call_id"`
	Seq      int64  `json:"seq" db:"seq"`
	SenderID string `json:"sender_id" db:"sender_id"`
	Type     Type   `json:"type" db:"type"`

	SDP string `json:"sdp,omitempty" db:"sdp"`

	Candidate        string  `json:"candidate,omitempty" db:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" db:"sdp_mid"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" db:"sdp_mline_index"`
	UsernameFragment *string `json:"usernameFragment,omitempty" db:"username_fragment"`

	CreatedAt time.Time `json:"timestamp" db:"created_at"`
}

// SessionDescription converts an offer or answer to its pion form.
func (m Message) SessionDescription() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch m.Type {
	case TypeOffer:
		t = webrtc.SDPTypeOffer
	case TypeAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("message type %q carries no session description", m.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: m.SDP}, nil
}

func (m Message) ICECandidate() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        m.Candidate,
		SDPMid:           m.SDPMid,
		SDPMLineIndex:    m.SDPMLineIndex,
		UsernameFragment: m.UsernameFragment,
	}
}

// Validate checks the payload for its type. Offers and answers must parse as
// SDP and candidates as an ICE candidate line.
func (m Message) Validate() error {
	switch m.Type {
	case TypeOffer, TypeAnswer:
		if m.SDP == "" {
			return calls.Errorf(calls.CodeInvalidInput, "%s message missing sdp", m.Type)
		}
		if len(m.SDP) > maxSDPBytes {
			return calls.Errorf(calls.CodeInvalidInput, "sdp exceeds %d bytes", maxSDPBytes)
		}
		if m.Candidate != "" || m.SDPMid != nil || m.SDPMLineIndex != nil || m.UsernameFragment != nil {
			return calls.Errorf(calls.CodeInvalidInput, "%s message has unexpected candidate fields", m.Type)
		}
		desc, err := m.SessionDescription()
		if err != nil {
			return calls.Errorf(calls.CodeInvalidInput, "%v", err)
		}
		if _, err := desc.Unmarshal(); err != nil {
			return calls.Errorf(calls.CodeInvalidInput, "invalid sdp: %v", err)
		}
	case TypeICECandidate:
		if m.Candidate == "" {
			return calls.Errorf(calls.CodeInvalidInput, "ice-candidate message missing candidate")
		}
		if len(m.Candidate) > maxCandidateBytes {
			return calls.Errorf(calls.CodeInvalidInput, "candidate exceeds %d bytes", maxCandidateBytes)
		}
		if m.SDP != "" {
			return calls.Errorf(calls.CodeInvalidInput, "ice-candidate message has unexpected sdp")
		}
		init := m.ICECandidate()
		if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(init.Candidate, "candidate:")); err != nil {
			return calls.Errorf(calls.CodeInvalidInput, "invalid candidate: %v", err)
		}
	default:
		return calls.Errorf(calls.CodeInvalidInput, "unsupported signaling type %q", m.Type)
	}
	return nil
}
