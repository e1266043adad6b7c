package api

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)

	in := &ListBatchRecordsRequest{BatchID: "b1", Status: "failed", Page: Page{Page: 2, Limit: 20}}
	b, err := c.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"batch_id":"b1","status":"failed","page":2,"limit":20}`, string(b))

	var out ListBatchRecordsRequest
	require.NoError(t, c.Unmarshal(b, &out))
	require.Equal(t, *in, out)

	var empty DeleteBatchResponse
	require.NoError(t, c.Unmarshal(nil, &empty))
	require.Error(t, c.Unmarshal([]byte("{"), &out))
}
