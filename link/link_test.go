package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rns-go/reticulum/identity"
)

func establishLink(t *testing.T) (*Link, *Link, time.Time) {
	t.Helper()
	now := time.Unix(0, 0)

	initLink, initHS, err := NewInitiator(now)
	require.NoError(t, err)
	linkID := identity.Trunc16([]byte("request-hashable"))
	initLink.BindInitiatorRequest(initHS, linkID)

	respLink, respProof, err := NewResponder(linkID, initHS.EphPub, now)
	require.NoError(t, err)

	initiatorProof, err := initLink.HandleResponderProof(respProof, now)
	require.NoError(t, err)
	initLink.MarkActive(now)

	err = respLink.HandleInitiatorProof(initiatorProof, now)
	require.NoError(t, err)

	require.Equal(t, StateActive, initLink.State)
	require.Equal(t, StateActive, respLink.State)
	return initLink, respLink, now
}

func TestLinkHandshakeReachesActive(t *testing.T) {
	establishLink(t)
}

func TestLinkEncodeDecodeRoundTrip(t *testing.T) {
	initLink, respLink, now := establishLink(t)

	token, err := initLink.EncodeMessage([]byte("hello, responder"), now)
	require.NoError(t, err)

	plaintext, err := respLink.DecodeMessage(token, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, "hello, responder", string(plaintext))
}

func TestLinkDecodeRejectsReplayedSequence(t *testing.T) {
	initLink, respLink, now := establishLink(t)

	token, err := initLink.EncodeMessage([]byte("msg"), now)
	require.NoError(t, err)

	_, err = respLink.DecodeMessage(token, now)
	require.NoError(t, err)

	_, err = respLink.DecodeMessage(token, now.Add(time.Second))
	require.Error(t, err)
}

func TestLinkTickTransitionsToStaleThenClosed(t *testing.T) {
	initLink, _, now := establishLink(t)

	stale := now.Add(StaleThreshold + time.Second)
	actions := initLink.Tick(stale)
	require.Equal(t, StateStale, initLink.State)
	var sawStale bool
	for _, a := range actions {
		if sc, ok := a.(StateChanged); ok && sc.To == StateStale {
			sawStale = true
		}
	}
	require.True(t, sawStale)

	closed := now.Add(TeardownThreshold + time.Second)
	actions = initLink.Tick(closed)
	require.Equal(t, StateClosed, initLink.State)
	var sawTeardown bool
	for _, a := range actions {
		if _, ok := a.(Teardown); ok {
			sawTeardown = true
		}
	}
	require.True(t, sawTeardown)
}

func TestLinkStaleRecoversOnInboundTraffic(t *testing.T) {
	initLink, respLink, now := establishLink(t)

	initLink.Tick(now.Add(StaleThreshold + time.Second))
	require.Equal(t, StateStale, initLink.State)

	token, err := respLink.EncodeMessage([]byte("still here"), now.Add(StaleThreshold+time.Second))
	require.NoError(t, err)

	_, err = initLink.DecodeMessage(token, now.Add(StaleThreshold+2*time.Second))
	require.NoError(t, err)
	require.Equal(t, StateActive, initLink.State)
}

func TestLinkHandshakeTimeoutClosesPendingLink(t *testing.T) {
	now := time.Unix(0, 0)
	initLink, _, err := NewInitiator(now)
	require.NoError(t, err)

	actions := initLink.Tick(now.Add(HandshakeTimeout + time.Second))
	require.Equal(t, StateClosed, initLink.State)
	require.Len(t, actions, 1)
}

func TestIdentifyExchangeRoundTrip(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)

	linkID := identity.Trunc16([]byte("link"))
	var ephPub [32]byte
	copy(ephPub[:], []byte("01234567890123456789012345678901"))

	msg := BuildIdentify(id, linkID, ephPub)
	packed := msg.Pack()

	parsed, err := UnpackIdentify(packed)
	require.NoError(t, err)

	gotHash, err := parsed.Verify(linkID, ephPub)
	require.NoError(t, err)
	require.Equal(t, id.Hash(), gotHash)
}

func TestIdentifyExchangeRejectsWrongLinkID(t *testing.T) {
	id, err := identity.New()
	require.NoError(t, err)

	var ephPub [32]byte
	msg := BuildIdentify(id, identity.Trunc16([]byte("link-a")), ephPub)
	_, err = msg.Verify(identity.Trunc16([]byte("link-b")), ephPub)
	require.Error(t, err)
}
