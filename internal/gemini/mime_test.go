package gemini

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMIME(t *testing.T) {
	tests := []struct {
		meta string
		want MIME
	}{
		{"text/gemini", MIME{ContentType: "text/gemini", Charset: "utf-8"}},
		{"", MIME{ContentType: "text/gemini", Charset: "utf-8"}},
		{"Text/Plain; Charset=ISO-8859-1", MIME{ContentType: "text/plain", Charset: "iso-8859-1"}},
		{"text/gemini; lang=en; charset=utf-8", MIME{
			ContentType: "text/gemini",
			Charset:     "utf-8",
			Attributes:  map[string]string{"lang": "en"},
		}},
		{`image/png; name="cat.png"; flag`, MIME{
			ContentType: "image/png",
			Charset:     "utf-8",
			Attributes:  map[string]string{"name": "cat.png", "flag": ""},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.meta, func(t *testing.T) {
			require.Equal(t, tt.want, ParseMIME(tt.meta))
		})
	}
}

func TestMIME_Lang(t *testing.T) {
	require.Equal(t, "de", ParseMIME("text/gemini; lang=de").Lang())
	require.Equal(t, "", ParseMIME("text/gemini").Lang())
}

func TestMIME_Decode(t *testing.T) {
	t.Run("utf-8", func(t *testing.T) {
		s, err := ParseMIME("text/plain").Decode([]byte("héllo"))
		require.NoError(t, err)
		require.Equal(t, "héllo", s)
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		_, err := ParseMIME("text/plain; charset=utf-8").Decode([]byte{0xff, 0xfe, 'a'})
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		require.Equal(t, "utf-8", decodeErr.Charset)
		require.Equal(t, "could not parse body with encoding utf-8", err.Error())
	})

	t.Run("latin1", func(t *testing.T) {
		s, err := ParseMIME("text/plain; charset=iso-8859-1").Decode([]byte{'c', 'a', 'f', 0xe9})
		require.NoError(t, err)
		require.Equal(t, "café", s)
	})

	t.Run("malformed in declared charset", func(t *testing.T) {
		body := []byte{0x82, 0xff, 0xff, 0x41}
		for _, charset := range []string{"shift_jis", "euc-kr", "us-ascii"} {
			_, err := ParseMIME("text/plain; charset=" + charset).Decode(body)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr, charset)
			require.Equal(t, charset, decodeErr.Charset)
		}
	})

	t.Run("utf-16 odd length", func(t *testing.T) {
		_, err := ParseMIME("text/plain; charset=utf-16le").Decode([]byte{'h', 0, 'i'})
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
	})

	t.Run("utf-16 genuine replacement character", func(t *testing.T) {
		s, err := ParseMIME("text/plain; charset=utf-16le").Decode([]byte{0xfd, 0xff, 'a', 0})
		require.NoError(t, err)
		require.Equal(t, "\ufffda", s)
	})

	t.Run("shift_jis", func(t *testing.T) {
		s, err := ParseMIME("text/plain; charset=shift_jis").Decode([]byte{0x82, 0xa0})
		require.NoError(t, err)
		require.Equal(t, "あ", s)
	})

	t.Run("us-ascii", func(t *testing.T) {
		s, err := ParseMIME("text/plain; charset=us-ascii").Decode([]byte("plain"))
		require.NoError(t, err)
		require.Equal(t, "plain", s)
	})

	t.Run("unknown charset", func(t *testing.T) {
		_, err := ParseMIME("text/plain; charset=klingon").Decode([]byte("x"))
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		require.Equal(t, "klingon", decodeErr.Charset)
	})
}

func TestMIME_IsText(t *testing.T) {
	require.True(t, ParseMIME("text/gemini").IsText())
	require.True(t, ParseMIME("text/x-unknown").IsText())
	require.False(t, ParseMIME("image/png").IsText())
}

func TestMIME_StringIsStable(t *testing.T) {
	m := MIME{
		ContentType: "text/gemini",
		Charset:     "utf-8",
		Attributes:  map[string]string{"lang": "en", "b": "2", "a": "1"},
	}
	require.Equal(t, "text/gemini; charset=utf-8; a=1; b=2; lang=en", m.String())
	require.Equal(t, m, ParseMIME(m.String()))
}
