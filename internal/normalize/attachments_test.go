package normalize

import (
	"encoding/json"
	"testing"

	"NeuroBot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertAllValid(t *testing.T, got []model.Attachment) {
	t.Helper()
	require.NotNil(t, got)
	for _, a := range got {
		assert.NotEmpty(t, a.URL)
		assert.NotEmpty(t, a.Type)
	}
}

func TestAttachmentsTotality(t *testing.T) {
	malformed := `'[\n' +
  '  {\n' +
  "    url: 'https://cdn.example.com/a.png',\n" +
  "    type: 'image',\n" +
  "    name: 'a.png'\n" +
  '  }\n' +
  ']'`

	tests := []struct {
		name string
		in   any
		want []model.Attachment
	}{
		{"nil", nil, []model.Attachment{}},
		{"json null", json.RawMessage("null"), []model.Attachment{}},
		{"empty raw", json.RawMessage(""), []model.Attachment{}},
		{"empty array", []any{}, []model.Attachment{}},
		{"empty array raw", json.RawMessage("[]"), []model.Attachment{}},
		{"undefined string", "undefined", []model.Attachment{}},
		{
			"single object",
			map[string]any{"url": "a", "type": "image"},
			[]model.Attachment{{URL: "a", Type: "image"}},
		},
		{
			"array of objects",
			[]any{map[string]any{"url": "a", "type": "video", "name": "clip"}},
			[]model.Attachment{{URL: "a", Type: "video", Name: "clip"}},
		},
		{
			"json string",
			`[{"url":"a","type":"image"}]`,
			[]model.Attachment{{URL: "a", Type: "image"}},
		},
		{
			"double encoded json string",
			json.RawMessage(`"[{\"url\":\"a\",\"type\":\"audio\"}]"`),
			[]model.Attachment{{URL: "a", Type: "audio"}},
		},
		{
			"concatenation artifact",
			malformed,
			[]model.Attachment{{URL: "https://cdn.example.com/a.png", Type: "image", Name: "a.png"}},
		},
		{
			"mixed strings and objects",
			[]any{
				"garbage",
				map[string]any{"url": "b", "type": "file"},
				`{"url":"c","type":"image"}`,
				42,
				nil,
			},
			[]model.Attachment{{URL: "b", Type: "file"}, {URL: "c", Type: "image"}},
		},
		{"object object", "[object Object]", []model.Attachment{}},
		{
			"key text inside a quoted value",
			"{ name: 'my url: x', url: 'https://x/b.png', type: 'video' }",
			[]model.Attachment{{URL: "https://x/b.png", Type: "video", Name: "my url: x"}},
		},
		{
			"braces inside a quoted value",
			"{ url: 'https://x/{id}.png', type: 'image' }",
			[]model.Attachment{{URL: "https://x/{id}.png", Type: "image"}},
		},
		{
			"two loose objects",
			"[{ url: 'https://x/1.png' }, { url = \"https://x/2.mp4\", type = 'video/mp4' }]",
			[]model.Attachment{{URL: "https://x/1.png", Type: "image"}, {URL: "https://x/2.mp4", Type: "video"}},
		},
		{
			"unescaped quotes",
			`[{"url":"https://x/y"z.png","type":"image"}]`,
			[]model.Attachment{{URL: "https://x/y", Type: "image"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Attachments(tt.in)
			assertAllValid(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAttachmentsTypeCoercion(t *testing.T) {
	got := Attachments([]any{
		map[string]any{"url": "a"},
		map[string]any{"url": "b", "type": "sticker"},
		map[string]any{"url": "c", "type": "image/png"},
		map[string]any{"url": "d", "mimeType": "application/pdf"},
		map[string]any{"url": "e", "type": "VIDEO"},
	})

	require.Len(t, got, 5)
	assert.Equal(t, "image", got[0].Type)
	assert.Equal(t, "image", got[1].Type)
	assert.Equal(t, "image", got[2].Type)
	assert.Equal(t, "file", got[3].Type)
	assert.Equal(t, "video", got[4].Type)
}

func TestAttachmentsDropsEntriesWithoutURL(t *testing.T) {
	got := Attachments([]any{
		map[string]any{"type": "image"},
		map[string]any{"url": "   ", "type": "image"},
		map[string]any{"url": "null"},
		map[string]any{"url": 12},
	})
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestAttachmentsTypedInputs(t *testing.T) {
	a := model.Attachment{URL: "x", Type: "weird"}
	assert.Equal(t, []model.Attachment{{URL: "x", Type: "image"}}, Attachments(a))
	assert.Equal(t, []model.Attachment{{URL: "x", Type: "image"}}, Attachments(&a))
	assert.Empty(t, Attachments((*model.Attachment)(nil)))
	assert.Len(t, Attachments([]model.Attachment{a, {}}), 1)
}

// Whatever comes out must go back in unchanged.
func TestAttachmentsRoundTrip(t *testing.T) {
	inputs := []any{
		`[{"url":"a","type":"image"},{"url":"b","type":"document","name":"spec.pdf"}]`,
		"{ url: 'https://h/p.jpg', type: 'image' }",
		[]any{map[string]any{"url": "a", "type": "audio"}, "junk"},
	}

	for _, in := range inputs {
		first := Attachments(in)
		encoded, err := json.Marshal(first)
		require.NoError(t, err)

		assert.Equal(t, first, Attachments(json.RawMessage(encoded)))
		assert.Equal(t, first, Attachments(string(encoded)))
		assert.Equal(t, first, Attachments(first))
	}
}

func TestAttachmentsDepthLimit(t *testing.T) {
	v := `[{"url":"a","type":"image"}]`
	for i := 0; i < 10; i++ {
		b, _ := json.Marshal(v)
		v = string(b)
	}
	assert.Empty(t, Attachments(v))
}
