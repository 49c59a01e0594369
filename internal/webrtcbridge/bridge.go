// Package webrtcbridge is the server side of the browser-preview WebRTC
// peer (§4.9 / C9): one peer connection per tab, a single ordered
// DataChannel, and a length-prefixed binary framing for encoded video and
// audio chunks produced upstream by the headless browser's capture
// surface.
package webrtcbridge

import (
	"encoding/binary"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/coderoom/server/internal/apierr"
)

const dataChannelLabel = "preview-media"

const (
	frameTypeVideo byte = 0
	frameTypeAudio byte = 1
)

// StateFunc reports peer-connection state transitions back to
// the gateway, which broadcasts them as preview:browser-stream-state.
type StateFunc func(tabID string, state webrtc.PeerConnectionState)

// CandidateFunc reports locally-gathered ICE candidates back to the
// gateway for relay to the client as preview:browser-stream-ice events.
type CandidateFunc func(tabID string, candidate webrtc.ICECandidateInit)

// Bridge owns one peer connection per tab.
type Bridge struct {
	mu       sync.Mutex
	sessions map[string]*Session

	onState     StateFunc
	onCandidate CandidateFunc
}

// Session is one tab's peer connection and its single DataChannel.
type Session struct {
	TabID string

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu    sync.Mutex
	ready bool
}

// NewBridge constructs an empty bridge; callbacks fire for every session
// it creates.
func NewBridge(onState StateFunc, onCandidate CandidateFunc) *Bridge {
	return &Bridge{
		sessions:    make(map[string]*Session),
		onState:     onState,
		onCandidate: onCandidate,
	}
}

// Start creates a new peer connection and DataChannel for tabID and
// returns the SDP offer to send to the client (preview:browser-stream-start
// / preview:browser-stream-offer).
func (b *Bridge) Start(tabID string) (*webrtc.SessionDescription, error) {
	b.mu.Lock()
	if existing, ok := b.sessions[tabID]; ok {
		existing.close()
		delete(b.sessions, tabID)
	}
	b.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeIO, "create peer connection", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, apierr.Wrap(apierr.CodeIO, "create data channel", err)
	}

	sess := &Session{TabID: tabID, pc: pc, dc: dc}

	dc.OnOpen(func() {
		sess.mu.Lock()
		sess.ready = true
		sess.mu.Unlock()
	})
	dc.OnClose(func() {
		sess.mu.Lock()
		sess.ready = false
		sess.mu.Unlock()
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || b.onCandidate == nil {
			return
		}
		b.onCandidate(tabID, c.ToJSON())
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if b.onState != nil {
			b.onState(tabID, s)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, apierr.Wrap(apierr.CodeIO, "create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, apierr.Wrap(apierr.CodeIO, "set local description", err)
	}

	b.mu.Lock()
	b.sessions[tabID] = sess
	b.mu.Unlock()

	return pc.LocalDescription(), nil
}

// Answer applies the client's SDP answer (preview:browser-stream-answer).
func (b *Bridge) Answer(tabID string, answer webrtc.SessionDescription) error {
	sess, err := b.get(tabID)
	if err != nil {
		return err
	}
	if err := sess.pc.SetRemoteDescription(answer); err != nil {
		return apierr.Wrap(apierr.CodeIO, "set remote description", err)
	}
	return nil
}

// AddICECandidate relays a client-gathered ICE candidate into the peer
// connection (preview:browser-stream-ice, inbound direction).
func (b *Bridge) AddICECandidate(tabID string, candidate webrtc.ICECandidateInit) error {
	sess, err := b.get(tabID)
	if err != nil {
		return err
	}
	if err := sess.pc.AddICECandidate(candidate); err != nil {
		return apierr.Wrap(apierr.CodeIO, "add ice candidate", err)
	}
	return nil
}

// Close tears down tabID's peer connection, if any.
func (b *Bridge) Close(tabID string) {
	b.mu.Lock()
	sess, ok := b.sessions[tabID]
	if ok {
		delete(b.sessions, tabID)
	}
	b.mu.Unlock()
	if ok {
		sess.close()
	}
}

func (b *Bridge) get(tabID string) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[tabID]
	if !ok {
		return nil, apierr.NotFound("no stream session for tab %s", tabID)
	}
	return sess, nil
}

func (s *Session) close() {
	if s.dc != nil {
		s.dc.Close()
	}
	if s.pc != nil {
		s.pc.Close()
	}
}

// WriteVideoFrame sends one encoded video chunk. Only the in-flight frame
// is ever buffered upstream; the bridge does not queue frames itself.
func (b *Bridge) WriteVideoFrame(tabID string, ts uint64, keyframe bool, data []byte) error {
	sess, err := b.get(tabID)
	if err != nil {
		return err
	}
	return sess.send(encodeVideoFrame(ts, keyframe, data))
}

// WriteAudioFrame sends one encoded audio chunk.
func (b *Bridge) WriteAudioFrame(tabID string, ts uint64, data []byte) error {
	sess, err := b.get(tabID)
	if err != nil {
		return err
	}
	return sess.send(encodeAudioFrame(ts, data))
}

func (s *Session) send(frame []byte) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		return apierr.Conflict("data channel not open for tab %s", s.TabID)
	}
	if err := s.dc.Send(frame); err != nil {
		return apierr.Wrap(apierr.CodeIO, "data channel send", err)
	}
	return nil
}

// encodeVideoFrame builds [type:1][ts:u64 LE][keyframe:1][size:u32 LE][data].
func encodeVideoFrame(ts uint64, keyframe bool, data []byte) []byte {
	buf := make([]byte, 1+8+1+4+len(data))
	buf[0] = frameTypeVideo
	binary.LittleEndian.PutUint64(buf[1:9], ts)
	if keyframe {
		buf[9] = 1
	}
	binary.LittleEndian.PutUint32(buf[10:14], uint32(len(data)))
	copy(buf[14:], data)
	return buf
}

// encodeAudioFrame builds [type:1][ts:u64 LE][size:u32 LE][data].
func encodeAudioFrame(ts uint64, data []byte) []byte {
	buf := make([]byte, 1+8+4+len(data))
	buf[0] = frameTypeAudio
	binary.LittleEndian.PutUint64(buf[1:9], ts)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(data)))
	copy(buf[13:], data)
	return buf
}
