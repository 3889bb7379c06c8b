package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Student ID", "student_id"},
		{"  First   Name ", "first_name"},
		{"Grade-Level", "grade_level"},
		{"E-mail Address!", "e_mail_address"},
		{"__weird__name__", "weird_name"},
		{"Año de publicación", "ano_de_publicacion"},
		{"Café", "cafe"},
		{"Pages (#)", "pages"},
		{"\ufeffStudent ID", "student_id"},
		{"123", "123"},
		{"***", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.in))
		})
	}
}

func TestNormalizeHeaders(t *testing.T) {
	headers, warnings := NormalizeHeaders([]string{"Name", "name", "", "NAME", "Email"})

	require.Len(t, headers, 5)
	assert.Equal(t, "name", headers[0].Normalized)
	assert.Equal(t, "name_2", headers[1].Normalized)
	assert.Equal(t, "column_3", headers[2].Normalized)
	assert.Equal(t, "name_3", headers[3].Normalized)
	assert.Equal(t, "email", headers[4].Normalized)

	for i, h := range headers {
		assert.Equal(t, i, h.Index)
	}
	assert.Equal(t, "NAME", headers[3].Original)

	// Two duplicates and one empty header.
	assert.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.Equal(t, StageNormalize, w.Stage)
	}
}

func TestNormalizeHeaders_GeneratedNameCollision(t *testing.T) {
	headers, _ := NormalizeHeaders([]string{"column_2", ""})

	assert.Equal(t, "column_2", headers[0].Normalized)
	assert.Equal(t, "column_2_2", headers[1].Normalized)
}
