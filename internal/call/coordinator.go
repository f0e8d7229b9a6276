package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v4"

	"github.com/studystim/studystim/internal/loop"
)

// State is the lifecycle of the peer connection.
type State int

const (
	StateAbsent State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Signal types carried inside webrtc_signal frames.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// Signal is the payload of a webrtc_signal frame.
type Signal struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	ICE   ICEConfig
	Media MediaSource

	// API replaces pion's default API, e.g. to tune the setting engine.
	API *pion.API

	// Device is announced to the partner over the data channel.
	Device DeviceInfo

	// Send delivers a signal to the partner through the relay.
	Send func(Signal) error
}

// Callbacks are invoked on the loop.
type Callbacks struct {
	OnState        func(State)
	OnRemoteStream func(*RemoteStream)
	OnStatus       func(notice string)
	OnPeerInfo     func(DeviceInfo)
}

// Coordinator negotiates the peer connection between the two members of a
// room. The member that found the room empty is the initiator and sends
// the offer; the other answers.
//
// All methods must be called from the owning loop. pion callbacks are
// posted back onto it.
type Coordinator struct {
	loop *loop.Loop
	opts Options
	cb   Callbacks

	joined      bool
	initiator   bool
	peerPresent bool
	failed      bool
	state       State

	// gen invalidates media capture started before the last Join/Leave.
	gen           uint64
	cancelCapture context.CancelFunc
	mediaReady    bool
	media         LocalMedia

	// pcGen invalidates callbacks of closed peer connections.
	pc             *pion.PeerConnection
	pcGen          uint64
	dc             *pion.DataChannel
	tracksAttached bool
	remote         *RemoteStream
	pending        []pion.ICECandidateInit
	pendingOffer   *pion.SessionDescription
}

// NewCoordinator creates an idle coordinator bound to l.
func NewCoordinator(l *loop.Loop, opts Options, cb Callbacks) *Coordinator {
	if opts.Media == nil {
		opts.Media = NoMedia{}
	}
	return &Coordinator{loop: l, opts: opts, cb: cb}
}

func (c *Coordinator) State() State { return c.state }

// Initiator reports whether this side sends the offer.
func (c *Coordinator) Initiator() bool { return c.initiator }

// Join starts a call session for a freshly joined room. participants are
// the other members at the time of joining.
func (c *Coordinator) Join(participants []string) {
	c.Leave()

	c.joined = true
	c.initiator = len(participants) == 0
	c.peerPresent = !c.initiator
	slog.Debug("call role decided", "initiator", c.initiator, "participants", len(participants))

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelCapture = cancel

	source := c.opts.Media
	go func() {
		media, err := source.Open(ctx)
		if !c.loop.Post(func() { c.mediaOpened(gen, media, err) }) && media != nil {
			media.Stop()
		}
	}()
}

// PeerJoined is called when another member enters the room.
func (c *Coordinator) PeerJoined(username string) {
	if !c.joined {
		return
	}
	if c.pc != nil {
		slog.Debug("peer connection already active", "username", username)
		return
	}
	c.peerPresent = true
	c.failed = false
	c.maybeOffer()
}

// PeerLeft ends the current peer connection. The remaining member offers
// to whoever joins next.
func (c *Coordinator) PeerLeft(username string) {
	if !c.joined {
		return
	}
	slog.Debug("peer left, closing call", "username", username)
	c.closePeer()
	c.peerPresent = false
	c.initiator = true
	c.failed = false
	c.setState(StateAbsent)
}

// Leave releases the peer connection and local media.
func (c *Coordinator) Leave() {
	c.closePeer()

	c.gen++
	if c.cancelCapture != nil {
		c.cancelCapture()
		c.cancelCapture = nil
	}
	if c.media != nil {
		c.media.Stop()
		c.media = nil
	}
	c.mediaReady = false

	c.joined = false
	c.initiator = false
	c.peerPresent = false
	c.failed = false
	c.setState(StateAbsent)
}

// HandleSignal applies a signal relayed from the partner.
func (c *Coordinator) HandleSignal(raw json.RawMessage) {
	var sig Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		slog.Warn("dropping malformed signal", "error", err)
		return
	}
	if !c.joined {
		return
	}
	if c.failed {
		slog.Debug("ignoring signal after call failure", "type", sig.Type)
		return
	}

	switch sig.Type {
	case SignalOffer:
		c.handleOffer(sig)
	case SignalAnswer:
		c.handleAnswer(sig)
	case SignalCandidate:
		c.handleCandidate(sig)
	default:
		slog.Warn("ignoring signal", "error", WrapError("handle signal", ErrUnexpectedSignal, sig.Type))
	}
}

func (c *Coordinator) mediaOpened(gen uint64, media LocalMedia, err error) {
	if gen != c.gen {
		if media != nil {
			media.Stop()
		}
		return
	}
	if c.cancelCapture != nil {
		c.cancelCapture()
		c.cancelCapture = nil
	}

	c.mediaReady = true
	if err != nil {
		slog.Warn("local media unavailable", "error", err)
		c.status("Camera and microphone unavailable, continuing receive-only")
	} else {
		c.media = media
	}

	if c.pendingOffer != nil {
		offer := *c.pendingOffer
		c.pendingOffer = nil
		c.answer(offer)
		return
	}
	c.maybeOffer()
}

func (c *Coordinator) maybeOffer() {
	if !c.initiator || !c.peerPresent || !c.mediaReady || c.pc != nil || c.failed {
		return
	}

	if err := c.ensurePeer(); err != nil {
		c.fail(err)
		return
	}
	if err := c.attachMedia(); err != nil {
		c.fail(err)
		return
	}

	dc, err := c.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		c.fail(NewError("create data channel", err))
		return
	}
	c.watchDataChannel(dc, c.pcGen)
	c.dc = dc

	offer, err := createOffer(c.pc)
	if err != nil {
		c.fail(err)
		return
	}
	c.sendSignal(Signal{Type: SignalOffer, SDP: offer.SDP})
}

func (c *Coordinator) handleOffer(sig Signal) {
	if sig.SDP == "" {
		slog.Warn("dropping offer", "error", NewError("handle offer", ErrMalformedSignal))
		return
	}
	if c.pc != nil && c.pc.SignalingState() == pion.SignalingStateHaveLocalOffer {
		slog.Warn("offer collision, keeping local offer")
		return
	}
	if c.initiator && c.pc == nil {
		// The partner is already calling.
		c.initiator = false
	}
	c.peerPresent = true

	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sig.SDP}
	if !c.mediaReady {
		c.pendingOffer = &offer
		return
	}
	c.answer(offer)
}

func (c *Coordinator) answer(offer pion.SessionDescription) {
	if err := c.ensurePeer(); err != nil {
		c.fail(err)
		return
	}
	if err := c.attachMedia(); err != nil {
		c.fail(err)
		return
	}

	answer, err := createAnswer(c.pc, offer)
	if err != nil {
		c.fail(err)
		return
	}
	c.flushCandidates()
	c.sendSignal(Signal{Type: SignalAnswer, SDP: answer.SDP})
}

func (c *Coordinator) handleAnswer(sig Signal) {
	if c.pc == nil {
		slog.Warn("dropping answer", "error", NewError("handle answer", ErrNoPeer))
		return
	}
	if c.pc.SignalingState() != pion.SignalingStateHaveLocalOffer {
		slog.Debug("dropping stale answer", "state", c.pc.SignalingState().String())
		return
	}

	desc := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		c.fail(negotiationError("set remote description", err))
		return
	}
	c.flushCandidates()
}

func (c *Coordinator) handleCandidate(sig Signal) {
	if sig.Candidate == nil {
		slog.Warn("dropping candidate", "error", NewError("handle candidate", ErrMalformedSignal))
		return
	}
	if c.pc == nil {
		if c.initiator {
			slog.Debug("dropping candidate without peer connection")
			return
		}
		if err := c.ensurePeer(); err != nil {
			c.fail(err)
			return
		}
	}

	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, *sig.Candidate)
		return
	}
	c.addCandidate(*sig.Candidate)
}

func (c *Coordinator) flushCandidates() {
	pending := c.pending
	c.pending = nil
	for _, cand := range pending {
		c.addCandidate(cand)
	}
}

func (c *Coordinator) addCandidate(cand pion.ICECandidateInit) {
	if err := c.pc.AddICECandidate(cand); err != nil {
		slog.Warn("failed to add ICE candidate", "error", err)
	}
}

// ensurePeer creates the peer connection and registers its callbacks.
func (c *Coordinator) ensurePeer() error {
	if c.pc != nil {
		return nil
	}

	pc, err := newPeerConnection(c.opts.API, c.opts.ICE)
	if err != nil {
		return err
	}
	c.pcGen++
	gen := c.pcGen
	c.pc = pc

	pc.OnICECandidate(func(cand *pion.ICECandidate) {
		if cand == nil {
			return
		}
		candInit := cand.ToJSON()
		c.loop.Post(func() {
			if gen != c.pcGen {
				return
			}
			c.sendSignal(Signal{Type: SignalCandidate, Candidate: &candInit})
		})
	})

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		c.loop.Post(func() {
			if gen != c.pcGen {
				return
			}
			c.connectionChanged(s)
		})
	})

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		if track.Kind() == pion.RTPCodecTypeVideo {
			pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
			if err := pc.WriteRTCP(pli); err != nil {
				slog.Debug("failed to request keyframe", "error", err)
			}
		}
		go drainTrack(track)
		c.loop.Post(func() {
			if gen != c.pcGen {
				return
			}
			c.trackArrived(track)
		})
	})

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		c.watchDataChannel(dc, gen)
		c.loop.Post(func() {
			if gen == c.pcGen {
				c.dc = dc
			}
		})
	})

	c.setState(StateNegotiating)
	return nil
}

// attachMedia adds local tracks once per peer connection. Without media the
// initiator offers receive-only transceivers; a responder's answer mirrors
// the offer on its own.
func (c *Coordinator) attachMedia() error {
	if c.tracksAttached {
		return nil
	}
	c.tracksAttached = true

	if c.media != nil {
		for _, track := range c.media.Tracks() {
			sender, err := c.pc.AddTrack(track)
			if err != nil {
				return NewError("add track", err)
			}
			go drainRTCP(sender)
		}
		return nil
	}

	if !c.initiator {
		return nil
	}
	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		_, err := c.pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return NewError("add transceiver", err)
		}
	}
	return nil
}

func (c *Coordinator) watchDataChannel(dc *pion.DataChannel, gen uint64) {
	dc.OnOpen(func() {
		c.loop.Post(func() {
			if gen == c.pcGen {
				c.sendHello(dc)
			}
		})
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		data := msg.Data
		c.loop.Post(func() {
			if gen == c.pcGen {
				c.receiveData(data)
			}
		})
	})
}

func (c *Coordinator) sendHello(dc *pion.DataChannel) {
	if dc.ReadyState() != pion.DataChannelStateOpen {
		slog.Debug("skipping hello", "error", NewError("send hello", ErrChannelNotOpen))
		return
	}
	data, err := encodeMessage(MessageTypeDeviceInfo, c.opts.Device)
	if err != nil {
		slog.Warn("failed to encode hello", "error", err)
		return
	}
	if err := dc.Send(data); err != nil {
		slog.Warn("failed to send hello", "error", err)
	}
}

func (c *Coordinator) receiveData(data []byte) {
	info, err := decodeDeviceInfo(data)
	if err != nil {
		slog.Warn("dropping data channel message", "error", err)
		return
	}
	slog.Info("partner client", "device", info.String())
	if c.cb.OnPeerInfo != nil {
		c.cb.OnPeerInfo(info)
	}
}

func (c *Coordinator) trackArrived(track *pion.TrackRemote) {
	if c.remote == nil {
		c.remote = &RemoteStream{ID: track.StreamID()}
	}
	c.remote.Tracks = append(c.remote.Tracks, track)
	slog.Debug("remote track", "kind", track.Kind().String(), "stream", track.StreamID())
	if c.cb.OnRemoteStream != nil {
		c.cb.OnRemoteStream(c.remote)
	}
}

func (c *Coordinator) connectionChanged(s pion.PeerConnectionState) {
	slog.Debug("peer connection state", "state", s.String())
	switch s {
	case pion.PeerConnectionStateConnected:
		c.setState(StateConnected)
		c.status("Call connected")
	case pion.PeerConnectionStateDisconnected:
		c.status("Call interrupted, waiting for the network")
	case pion.PeerConnectionStateFailed:
		c.fail(NewError("connect", ErrConnectionFailed))
	}
}

// fail closes the call and reports err once. There is no retry until the
// next peer joins or the room is joined again.
func (c *Coordinator) fail(err error) {
	if c.failed {
		slog.Debug("call already failed", "error", err)
		return
	}
	c.failed = true
	slog.Error("call failed", "error", err)
	c.closePeer()
	c.setState(StateClosed)
	c.status(fmt.Sprintf("Call failed: %v", err))
}

func (c *Coordinator) closePeer() {
	c.pcGen++
	c.pending = nil
	c.pendingOffer = nil
	c.remote = nil
	c.dc = nil
	c.tracksAttached = false

	if c.pc == nil {
		return
	}
	pc := c.pc
	c.pc = nil
	go func() {
		if err := pc.Close(); err != nil {
			slog.Debug("failed to close peer connection", "error", err)
		}
	}()
}

func (c *Coordinator) sendSignal(sig Signal) {
	if c.opts.Send == nil {
		return
	}
	if err := c.opts.Send(sig); err != nil {
		slog.Warn("failed to send signal", "type", sig.Type, "error", err)
	}
}

func (c *Coordinator) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.cb.OnState != nil {
		c.cb.OnState(s)
	}
}

func (c *Coordinator) status(notice string) {
	if c.cb.OnStatus != nil {
		c.cb.OnStatus(notice)
	}
}

func drainTrack(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
