package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeResponse(t *testing.T) {
	require.Equal(t, "&OK|CONNECTED", Encode(StatusOK, "CONNECTED"))
	require.Equal(t, "&WARNING|MOVING", Warning("MOVING").Encode())
	require.Equal(t, "&PRINT|", Print("").Encode())
}

func TestDecodeResponseRoundTrip(t *testing.T) {
	frames := []string{
		"&OK|COORDS 10 20 30 40 50 60",
		"&PRINT|finishedPointing",
		"&ERROR|Already measuring!",
		"&WARNING|Invalid coordinates values. Pointing aborted.",
		"&OK|",
	}
	for _, frame := range frames {
		resp, err := DecodeResponse(frame)
		require.NoError(t, err, frame)
		require.Equal(t, frame, resp.Encode())
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	_, err := DecodeResponse("&OK")
	require.ErrorIs(t, err, ErrMissingStatusField)

	_, err = DecodeResponse("&DONE|x")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestSplitSingleFrame(t *testing.T) {
	frames, err := Split("&pointAzAlt 10 20")
	require.NoError(t, err)
	require.Equal(t, []string{"pointAzAlt 10 20"}, frames)
}

func TestSplitDiscardsLeadingNoise(t *testing.T) {
	frames, err := Split("garbage&connect")
	require.NoError(t, err)
	require.Equal(t, []string{"connect"}, frames)
}

func TestSplitConcatenatedFramesKeepOrder(t *testing.T) {
	frames, err := Split("&connect&pointAzAlt 10 20&disconnect")
	require.NoError(t, err)
	require.Equal(t, []string{"connect", "pointAzAlt 10 20", "disconnect"}, frames)
}

func TestSplitWithoutFrameStartIsMalformed(t *testing.T) {
	_, err := Split("connect")
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("pointRA  83.6 22.0\n")
	require.NoError(t, err)
	require.Equal(t, "pointRA", cmd.Verb)
	require.Equal(t, []string{"83.6", "22.0"}, cmd.Args)

	cmd, err = ParseCommand("&connect")
	require.NoError(t, err)
	require.Equal(t, "connect", cmd.Verb)
	require.Empty(t, cmd.Args)

	_, err = ParseCommand("   ")
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = ParseCommand("point|x 1")
	require.ErrorIs(t, err, ErrReservedCharacter)
}

func TestCommandEncodeRoundTrip(t *testing.T) {
	frames := []string{"&connect", "&pointGal 120 -5", "&measure repo p 1 2 3 4 5 6 7 8 0 1 0"}
	for _, frame := range frames {
		bodies, err := Split(frame)
		require.NoError(t, err)
		require.Len(t, bodies, 1)

		cmd, err := ParseCommand(bodies[0])
		require.NoError(t, err)
		require.Equal(t, frame, cmd.Encode())
	}
}

func TestNewCommandRejectsReservedAndWhitespace(t *testing.T) {
	_, err := NewCommand("track&RA", "1", "2")
	require.ErrorIs(t, err, ErrReservedCharacter)

	_, err = NewCommand("trackRA", "1 2")
	require.Error(t, err)

	_, err = NewCommand("")
	require.ErrorIs(t, err, ErrEmptyCommand)

	cmd, err := NewCommand("trackRA", "1", "2")
	require.NoError(t, err)
	require.Equal(t, "&trackRA 1 2", cmd.Encode())
}

func TestStatusValid(t *testing.T) {
	require.True(t, StatusPrint.Valid())
	require.True(t, StatusError.Valid())
	require.False(t, Status("BUSY").Valid())
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "a+b/c", Sanitize("a&b|c"))
	require.False(t, ContainsReserved(Sanitize("&|&")))
}
