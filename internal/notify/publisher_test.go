package notify

import (
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestChannelKey(t *testing.T) {
    assert.Equal(t, "app:pos:abc", ChannelKey("pos", "abc"))
}

func TestMarshalEnvelope(t *testing.T) {
    ready := true
    body, err := MarshalEnvelope(EventEntryScan, "app-key", ScanStatus{HasNFT: true, UtilizeReady: &ready})
    require.NoError(t, err)

    var env Envelope
    require.NoError(t, json.Unmarshal(body, &env))
    assert.Equal(t, EventEntryScan, env.Event)
    assert.Equal(t, "app-key", env.Key)

    var st ScanStatus
    require.NoError(t, json.Unmarshal(env.Payload, &st))
    assert.True(t, st.HasNFT)
    require.NotNil(t, st.UtilizeReady)
    assert.True(t, *st.UtilizeReady)
}

func TestScanStatus_IntermediateOmitsReadiness(t *testing.T) {
    body, err := json.Marshal(ScanStatus{HasNFT: false})
    require.NoError(t, err)
    assert.JSONEq(t, `{"hasNft":false}`, string(body))
}
