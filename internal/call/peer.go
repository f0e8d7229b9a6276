package call

import (
	pion "github.com/pion/webrtc/v4"

	"github.com/studystim/studystim/internal/config"
)

// ICEConfig lists the ICE servers used for every peer connection.
type ICEConfig struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts candidates to TURN relays. It only applies
	// when TURN servers are configured.
	ForceRelay bool
}

// ICEConfigFrom builds the ICE configuration from client settings.
func ICEConfigFrom(cfg *config.ClientConfig) ICEConfig {
	user, pass := cfg.GetTURNCredentials()
	return ICEConfig{
		STUNServers: cfg.GetSTUNServers(),
		TURNServers: cfg.GetTURNServers(),
		TURNUser:    user,
		TURNPass:    pass,
		ForceRelay:  cfg.ForceRelay,
	}
}

func (c ICEConfig) configuration() pion.Configuration {
	var iceServers []pion.ICEServer
	if len(c.STUNServers) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNServers) > 0 {
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	policy := pion.ICETransportPolicyAll
	if len(c.TURNServers) > 0 && (c.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

func newPeerConnection(api *pion.API, ice ICEConfig) (*pion.PeerConnection, error) {
	var (
		pc  *pion.PeerConnection
		err error
	)
	if api != nil {
		pc, err = api.NewPeerConnection(ice.configuration())
	} else {
		pc, err = pion.NewPeerConnection(ice.configuration())
	}
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}

func createOffer(pc *pion.PeerConnection) (*pion.SessionDescription, error) {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, negotiationError("create offer", err)
	}
	if err = pc.SetLocalDescription(offer); err != nil {
		return nil, negotiationError("set local description", err)
	}
	return pc.LocalDescription(), nil
}

func createAnswer(pc *pion.PeerConnection, offer pion.SessionDescription) (*pion.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, negotiationError("set remote description", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, negotiationError("create answer", err)
	}
	if err = pc.SetLocalDescription(answer); err != nil {
		return nil, negotiationError("set local description", err)
	}
	return pc.LocalDescription(), nil
}
