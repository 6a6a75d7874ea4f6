package pathcodec_test

import (
	"errors"
	"testing"

	"github.com/docspace/conversation-service/internal/pathcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "1/5/20/", pathcodec.Encode([]int64{1, 5}, 20))
	assert.Equal(t, "7/", pathcodec.Encode(nil, 7))
}

func TestAppend(t *testing.T) {
	assert.Equal(t, "1/5/20/", pathcodec.Append("1/5/", 20))
	assert.Equal(t, "7/", pathcodec.Append("", 7))
}

func TestDecode(t *testing.T) {
	ids, err := pathcodec.Decode("1/5/20/")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 20}, ids)

	ids, err = pathcodec.Decode("42/")
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)

	ids, err = pathcodec.Decode("")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDecodeRoundTrip(t *testing.T) {
	path := pathcodec.Encode([]int64{3, 9, 27}, 81)
	ids, err := pathcodec.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9, 27, 81}, ids)
}

func TestDecodeMalformed(t *testing.T) {
	for _, path := range []string{"1/x/3/", "abc/", "1//3/", "-/"} {
		_, err := pathcodec.Decode(path)
		require.Error(t, err, "path %q", path)
		var malformed *pathcodec.MalformedPathError
		assert.True(t, errors.As(err, &malformed), "path %q: expected MalformedPathError, got %T", path, err)
	}
}

func TestDecodeNegativeID(t *testing.T) {
	// ParseInt accepts "-1"; ids are assigned by the database and never
	// negative, but the codec does not enforce sign. Document the behavior.
	ids, err := pathcodec.Decode("-1/")
	require.NoError(t, err)
	assert.Equal(t, []int64{-1}, ids)
}
