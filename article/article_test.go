package article

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	url := "https://xtrend.nikkei.com/atcl/contents/18/00001/"

	assert.Equal(t, Fingerprint(url), Fingerprint(url))
	assert.Len(t, Fingerprint(url), 32)
}

func TestFingerprintDistinguishesURLs(t *testing.T) {
	seen := make(map[string]string)
	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/a?page=2",
		"http://example.com/a",
		"https://example.org/a",
	}
	for _, u := range urls {
		fp := Fingerprint(u)
		prev, dup := seen[fp]
		require.False(t, dup, "fingerprint collision between %q and %q", prev, u)
		seen[fp] = u
	}
}

func TestFingerprintKnownValue(t *testing.T) {
	// md5("https://example.com")
	assert.Equal(t, "c984d06aafbecf6bc55569f964148ea3", Fingerprint("https://example.com"))
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{"", "", false},
		{"primary", Primary, false},
		{" Secondary ", Secondary, false},
		{"ja", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLanguage(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestHasTag(t *testing.T) {
	a := &Article{Tags: []string{"AI", "SNS"}}
	assert.True(t, a.HasTag("SNS"))
	assert.False(t, a.HasTag("sns"))
}
