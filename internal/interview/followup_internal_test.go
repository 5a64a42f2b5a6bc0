package interview

import (
	"testing"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/stretchr/testify/require"
)

func Test_parseFollowUps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		completion string
		want       []string
		wantErr    error
	}{
		{
			name:       "plain JSON",
			completion: `{"follow_ups": ["How do you track orders?"]}`,
			want:       []string{"How do you track orders?"},
		},
		{
			name:       "empty list",
			completion: `{"follow_ups": []}`,
			want:       []string{},
		},
		{
			name: "fenced code block",
			completion: "```json\n" +
				`{"follow_ups": ["One?", "Two?"]}` + "\n```",
			want: []string{"One?", "Two?"},
		},
		{
			name:       "excess discarded in emission order",
			completion: `{"follow_ups": ["One?", "Two?", "Three?", "Four?"]}`,
			want:       []string{"One?", "Two?"},
		},
		{
			name:       "blank entries skipped",
			completion: `{"follow_ups": ["", "  ", "Real question?"]}`,
			want:       []string{"Real question?"},
		},
		{
			name:       "prose instead of JSON",
			completion: "Sure! Here are some follow-ups you could ask.",
			wantErr:    ai.ErrInvalidResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseFollowUps(tt.completion)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
