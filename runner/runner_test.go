package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{
			name:  "fits on one line",
			text:  "short",
			width: 20,
			want:  []string{"short"},
		},
		{
			name:  "wraps at width",
			text:  "abcdefghij",
			width: 4,
			want:  []string{"abcd", "efgh", "ij"},
		},
		{
			name:  "empty input",
			text:  "",
			width: 10,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, wrapText(tt.text, tt.width))
		})
	}
}

func TestBannerWidth(t *testing.T) {
	out := banner([]string{"hello"}, 30)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "╔"))
	require.True(t, strings.HasPrefix(lines[2], "╚"))
}

func TestBannerMinimumWidth(t *testing.T) {
	out := banner([]string{"x"}, 5)

	require.Contains(t, out, "╔")
	// width is clamped to 20 columns
	require.Contains(t, out, strings.Repeat("═", 18))
}
