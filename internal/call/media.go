package call

import (
	"context"

	pion "github.com/pion/webrtc/v4"
)

// MediaSource acquires local audio and video.
type MediaSource interface {
	Open(ctx context.Context) (LocalMedia, error)
}

// LocalMedia is a set of local tracks that can be released.
type LocalMedia interface {
	Tracks() []pion.TrackLocal
	Stop()
}

// RemoteStream is the partner's media as it arrives, one entry per track.
type RemoteStream struct {
	ID     string
	Tracks []*pion.TrackRemote
}

// HasVideo reports whether a video track has arrived.
func (s *RemoteStream) HasVideo() bool {
	for _, t := range s.Tracks {
		if t.Kind() == pion.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}

// SyntheticSource provides an opus and a vp8 track that never carry
// samples. A terminal has no camera; the tracks keep the call symmetric
// with browser partners.
type SyntheticSource struct {
	StreamID string
}

func (s SyntheticSource) Open(ctx context.Context) (LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := s.StreamID
	if streamID == "" {
		streamID = "studystim"
	}

	audio, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, NewError("create audio track", err)
	}
	video, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, NewError("create video track", err)
	}
	return &staticMedia{tracks: []pion.TrackLocal{audio, video}}, nil
}

// NoMedia refuses capture, so calls run receive-only.
type NoMedia struct{}

func (NoMedia) Open(context.Context) (LocalMedia, error) {
	return nil, ErrMediaDenied
}

type staticMedia struct {
	tracks []pion.TrackLocal
}

func (m *staticMedia) Tracks() []pion.TrackLocal { return m.tracks }

func (m *staticMedia) Stop() {}
