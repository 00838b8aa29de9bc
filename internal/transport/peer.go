package transport

import (
	"github.com/pion/webrtc/v4"
)

// newAPI builds a pion API whose logs go through the application logger.
// Loopback candidates are off by default and only useful when both peers
// share a host.
func newAPI(cfg Config) *webrtc.API {
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// newDataChannel creates the ordered, reliable DataChannel used for file
// transfer. Ordering and reliability stay at their defaults:
// the receiver detects completion by byte count and never resequences.
func newDataChannel(pc *webrtc.PeerConnection, label string) (*webrtc.DataChannel, error) {
	ordered := true
	return pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
}
