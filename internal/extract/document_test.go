package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        []byte
		contentType string
		wantErr     bool
		wantText    string
	}{
		{name: "empty", body: nil, wantErr: true},
		{name: "whitespace", body: []byte("  \n\t"), wantErr: true},
		{name: "binary", body: []byte("GIF89a\x00\x01\x02"), wantErr: true},
		{name: "utf8", body: []byte("<p>café</p>"), contentType: "text/html; charset=utf-8", wantText: "café"},
		{name: "latin1 header", body: []byte("<p>caf\xe9</p>"), contentType: "text/html; charset=iso-8859-1", wantText: "café"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doc, err := ParseDocument(tc.body, tc.contentType)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnparseable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantText, doc.Find("p").Text())
		})
	}
}

func TestFoldLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  Instructor(s):  ": "instructor(s",
		"ＣＬＡＳＳ   Level":     "class level",
		"• Term •":           "term",
		"":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, FoldLabel(in), "input %q", in)
	}
}
