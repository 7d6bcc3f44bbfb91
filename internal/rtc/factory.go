package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/netutil"
)

const eventBuffer = 256

// Options binds the ICE configuration used by every connection a Factory makes.
type Options struct {
	ICEServers []webrtc.ICEServer
	RelayOnly  bool
	// LocalID is this participant's user id. It breaks offer collisions: the
	// side with the lower id rolls its own offer back.
	LocalID int64
	// SettingEngine overrides pion's transport defaults; nil uses pion's.
	SettingEngine *webrtc.SettingEngine
}

// OptionsFromConfig builds ICE servers from STUN/TURN settings and picks the
// relay-only policy when forced or when a tunnel interface is detected.
func OptionsFromConfig(cfg *config.Config) Options {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	return Options{
		ICEServers: servers,
		RelayOnly:  turn != nil && (cfg.ForceRelay || netutil.ShouldForceRelay()),
	}
}

// Factory creates pion-backed connections that all report on one event channel.
type Factory struct {
	localID int64
	api     *webrtc.API
	config  webrtc.Configuration
	events  chan Event
	log     zerolog.Logger
}

// NewFactory registers the default codecs and interceptors once for all peers.
func NewFactory(opts Options, log zerolog.Logger) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, newError("register codecs", 0, err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, newError("register interceptors", 0, err)
	}

	apiOpts := []func(*webrtc.API){webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry)}
	if opts.SettingEngine != nil {
		apiOpts = append(apiOpts, webrtc.WithSettingEngine(*opts.SettingEngine))
	}

	policy := webrtc.ICETransportPolicyAll
	if opts.RelayOnly {
		policy = webrtc.ICETransportPolicyRelay
	}

	return &Factory{
		localID: opts.LocalID,
		api:     webrtc.NewAPI(apiOpts...),
		config: webrtc.Configuration{
			ICEServers:         opts.ICEServers,
			ICETransportPolicy: policy,
		},
		events: make(chan Event, eventBuffer),
		log:    logging.Module(log, "rtc"),
	}, nil
}

// Events delivers signal, stream, data and closed events for every connection.
func (f *Factory) Events() <-chan Event {
	return f.events
}

// Create builds a connection to peerID. A nil local stream yields a
// receive-only connection.
func (f *Factory) Create(role Role, peerID int64, peerName string, local *media.Stream) (Connection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, newError("create peer connection", peerID, err)
	}

	p := newPeer(pc, role, peerID, peerName, f.events, f.log)
	p.polite = f.localID < peerID
	if err := p.start(local); err != nil {
		_ = pc.Close()
		return nil, err
	}

	f.log.Debug().Int64("peer", peerID).Str("role", role.String()).Msg("connection created")
	return p, nil
}
