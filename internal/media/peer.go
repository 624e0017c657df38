package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// PeerConnectionHeader names the server's id for a screen-share peer.
const PeerConnectionHeader = "X-Peer-Connection-ID"

const (
	defaultCandidatePolls    = 50
	defaultCandidateInterval = 500 * time.Millisecond
)

// errPolling keeps the candidate poll going until its attempts run out.
var errPolling = errors.New("still polling")

type sessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// PeerSession implements Session directly over WebRTC against the server's
// screen-share endpoints. It receives the server's video and exchanges
// messages on a reliable data channel. Local tracks must be published before
// Connect; the signalling endpoints do not support renegotiation.
type PeerSession struct {
	http       *http.Client
	iceServers []webrtc.ICEServer

	pollAttempts uint
	pollInterval time.Duration

	mu        sync.Mutex
	baseURL   string
	token     string
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	peerID    string
	pending   []webrtc.ICECandidateInit
	senders   map[string]*webrtc.RTPSender
	tracks    map[string]*webrtc.TrackLocalStaticSample
	connected bool
	cancel    context.CancelFunc

	onTrack       func(RemoteTrack)
	onParticipant func(ParticipantEvent)
	onData        func(DataMessage)
}

var _ Session = (*PeerSession)(nil)

type PeerOption func(*PeerSession)

// WithICEServers sets STUN/TURN servers. Without them only host candidates
// are gathered.
func WithICEServers(servers ...webrtc.ICEServer) PeerOption {
	return func(p *PeerSession) {
		p.iceServers = servers
	}
}

// WithCandidatePolling overrides how often the server's candidates are
// fetched.
func WithCandidatePolling(attempts uint, interval time.Duration) PeerOption {
	return func(p *PeerSession) {
		p.pollAttempts = attempts
		p.pollInterval = interval
	}
}

// NewPeerSession creates an unconnected session.
func NewPeerSession(httpClient *http.Client, opts ...PeerOption) *PeerSession {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	p := &PeerSession{
		http:         httpClient,
		pollAttempts: defaultCandidatePolls,
		pollInterval: defaultCandidateInterval,
		senders:      make(map[string]*webrtc.RTPSender),
		tracks:       make(map[string]*webrtc.TrackLocalStaticSample),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PeerFactory returns a Factory producing PeerSessions.
func PeerFactory(httpClient *http.Client, opts ...PeerOption) Factory {
	return func() (Session, error) {
		return NewPeerSession(httpClient, opts...), nil
	}
}

func (p *PeerSession) OnRemoteTrack(fn func(RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *PeerSession) OnParticipantChange(fn func(ParticipantEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onParticipant = fn
}

func (p *PeerSession) OnData(fn func(DataMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onData = fn
}

// PublishLocal adds a sample track to the offer. Samples are written through
// the track returned by SampleTrack.
func (p *PeerSession) PublishLocal(_ context.Context, track LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return ErrRenegotiationRequired
	}

	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	if track.Kind == KindAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}

	local, err := webrtc.NewTrackLocalStaticSample(codec, track.ID, track.Source)
	if err != nil {
		return fmt.Errorf("failed to create local track: %w", err)
	}
	p.tracks[track.ID] = local

	return nil
}

// SampleTrack returns the pion track behind a published local track.
func (p *PeerSession) SampleTrack(id string) (*webrtc.TrackLocalStaticSample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tracks[id]
	return t, ok
}

func (p *PeerSession) Unpublish(trackID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		delete(p.tracks, trackID)
		return nil
	}

	sender, ok := p.senders[trackID]
	if !ok {
		return nil
	}
	delete(p.senders, trackID)
	delete(p.tracks, trackID)

	return p.pc.RemoveTrack(sender)
}

func (p *PeerSession) PublishData(_ context.Context, payload []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotConnected
	}
	return dc.Send(payload)
}

// Connect negotiates with the screen-share endpoints on the origin of
// rawURL. token, when set, is sent as a bearer credential.
func (p *PeerSession) Connect(ctx context.Context, rawURL, token string) error {
	base, err := originOf(rawURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.pc != nil {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}

	pc, err := p.newPeerConnection()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	p.pc = pc
	p.baseURL = base
	p.token = token
	p.mu.Unlock()

	if err := p.negotiate(ctx, pc); err != nil {
		p.teardown()
		return err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.connected = true
	p.cancel = cancel
	peerID := p.peerID
	p.mu.Unlock()

	if peerID != "" {
		go p.pollCandidates(pollCtx, peerID)
	}

	log.Info().Str("peer_id", peerID).Msg("screen share peer negotiated")

	return nil
}

func (p *PeerSession) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: p.iceServers})
	if err != nil {
		return nil, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("adding video transceiver: %w", err)
	}

	for id, track := range p.tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("adding track %s: %w", id, err)
		}
		p.senders[id] = sender
	}

	dc, err := pc.CreateDataChannel("data", nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.mu.Lock()
		fn := p.onData
		peerID := p.peerID
		p.mu.Unlock()

		if fn != nil {
			fn(DataMessage{ParticipantID: peerID, Payload: msg.Data})
		}
	})
	p.dc = dc

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.mu.Lock()
		fn := p.onTrack
		p.mu.Unlock()

		log.Debug().Str("kind", track.Kind().String()).Str("stream", track.StreamID()).Msg("remote track")

		if fn != nil {
			fn(RemoteTrack{
				ID:            track.ID(),
				ParticipantID: track.StreamID(),
				Kind:          TrackKind(track.Kind().String()),
				Source:        "screen",
			})
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.sendCandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("state", state.String()).Msg("peer connection state")

		p.mu.Lock()
		fn := p.onParticipant
		peerID := p.peerID
		p.mu.Unlock()

		if fn == nil {
			return
		}

		switch state {
		case webrtc.PeerConnectionStateConnected:
			fn(ParticipantEvent{ParticipantID: peerID, Name: "server", Joined: true})
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			fn(ParticipantEvent{ParticipantID: peerID, Name: "server", Joined: false})
		}
	})

	return pc, nil
}

func (p *PeerSession) negotiate(ctx context.Context, pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}

	var answer sessionDescription
	resp, err := p.post(ctx, "/screen-share/offer", sessionDescription{SDP: offer.SDP, Type: offer.Type.String()})
	if err != nil {
		return fmt.Errorf("sending offer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return signalError(resp, "failed to establish connection with server")
	}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return fmt.Errorf("decoding answer: %w", err)
	}

	p.mu.Lock()
	p.peerID = resp.Header.Get(PeerConnectionHeader)
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	sdpType := webrtc.NewSDPType(answer.Type)
	if sdpType == webrtc.SDPTypeUnknown {
		sdpType = webrtc.SDPTypeAnswer
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	for _, c := range pending {
		p.sendCandidate(c)
	}

	return nil
}

// sendCandidate trickles a local candidate, queueing it until the server
// has assigned a peer id.
func (p *PeerSession) sendCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	peerID := p.peerID
	if peerID == "" {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	resp, err := p.post(context.Background(), "/screen-share/ice/"+url.PathEscape(peerID), c)
	if err != nil {
		log.Warn().Err(err).Msg("failed to send ICE candidate")
		return
	}
	resp.Body.Close()
}

// pollCandidates fetches the server's candidates at a fixed interval for a
// bounded number of attempts.
func (p *PeerSession) pollCandidates(ctx context.Context, peerID string) {
	_, _ = backoff.Retry(ctx, func() (struct{}, error) {
		p.mu.Lock()
		pc := p.pc
		p.mu.Unlock()

		if pc == nil {
			return struct{}{}, nil
		}

		candidates, err := p.fetchCandidates(ctx, peerID)
		if err != nil {
			log.Debug().Err(err).Msg("failed to poll ICE candidates")
		}
		for _, c := range candidates {
			if err := pc.AddICECandidate(c); err != nil {
				log.Debug().Err(err).Msg("failed to add server ICE candidate")
			}
		}

		return struct{}{}, errPolling
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.pollInterval)),
		backoff.WithMaxTries(p.pollAttempts),
	)
}

func (p *PeerSession) fetchCandidates(ctx context.Context, peerID string) ([]webrtc.ICECandidateInit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/screen-share/ice/"+url.PathEscape(peerID), nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Candidates []webrtc.ICECandidateInit `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Candidates, nil
}

// Disconnect hangs up with the server and closes the peer connection.
func (p *PeerSession) Disconnect() error {
	p.mu.Lock()
	peerID := p.peerID
	base := p.baseURL
	p.mu.Unlock()

	if peerID != "" && base != "" {
		resp, err := p.post(context.Background(), "/screen-share/hangup/"+url.PathEscape(peerID), nil)
		if err != nil {
			log.Warn().Err(err).Msg("failed to hang up screen share")
		} else {
			resp.Body.Close()
		}
	}

	return p.teardown()
}

func (p *PeerSession) teardown() error {
	p.mu.Lock()
	pc := p.pc
	cancel := p.cancel
	p.pc = nil
	p.dc = nil
	p.peerID = ""
	p.connected = false
	p.cancel = nil
	p.senders = make(map[string]*webrtc.RTPSender)
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pc == nil {
		return nil
	}
	return pc.Close()
}

func (p *PeerSession) post(ctx context.Context, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	p.mu.Lock()
	base := p.baseURL
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	p.authorize(req)

	return p.http.Do(req)
}

func (p *PeerSession) authorize(req *http.Request) {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid signalling url %q", rawURL)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}

	return strings.TrimRight((&url.URL{Scheme: u.Scheme, Host: u.Host}).String(), "/"), nil
}

func signalError(resp *http.Response, fallback string) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := fallback
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return fmt.Errorf("screen share signalling: %s (status %d)", msg, resp.StatusCode)
}
