package biliup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

func TestBuildJobPayload_Defaults(t *testing.T) {
	payload := buildJobPayload(model.JobSpec{Title: "t"})

	assert.Equal(t, []string{}, payload["files"])
	params := payload["params"].(map[string]any)
	assert.Equal(t, model.CopyrightOriginal, params["copyright"])
	assert.Equal(t, "", params["source"])
	assert.Equal(t, []string{}, params["tag"])
	assert.NotContains(t, params, "dtime")
	assert.NotContains(t, params, "dolby")
	for _, key := range []string{"open_subtitle", "up_selection_reply", "up_close_reply", "up_close_danmu"} {
		assert.Equal(t, false, params[key], key)
	}
}

func TestBuildJobPayload_Reprint(t *testing.T) {
	dolby := 1
	payload := buildJobPayload(model.JobSpec{
		Copyright: model.CopyrightReprint,
		Source:    "https://example.com/src",
		Dolby:     &dolby,
	})

	params := payload["params"].(map[string]any)
	assert.Equal(t, model.CopyrightReprint, params["copyright"])
	assert.Equal(t, "https://example.com/src", params["source"])
	assert.Equal(t, 1, params["dolby"])
}

func TestDecodeObject(t *testing.T) {
	obj, err := decodeObject([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, obj)

	_, err = decodeObject([]byte(`"text"`))
	assert.ErrorIs(t, err, model.ErrUpstreamProtocol)

	_, err = decodeObject([]byte(`{broken`))
	assert.ErrorIs(t, err, model.ErrUpstreamProtocol)

	obj, err = decodeObject([]byte(`{"mid":1234567890123456789}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1234567890123456789), toInt64(obj["mid"]))
}

func TestMapProfile_StringNumbers(t *testing.T) {
	p, err := mapProfile(map[string]any{"mid": "42", "name": "bob", "level": "3"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.MID)
	assert.Equal(t, 3, p.Level)
}

func TestMapProfile_MissingMID(t *testing.T) {
	_, err := mapProfile(map[string]any{"code": float64(0), "data": map[string]any{"name": "x"}})
	assert.ErrorIs(t, err, model.ErrCredentialRejected)
}
