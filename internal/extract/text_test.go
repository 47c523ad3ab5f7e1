package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want TextFields
	}{
		{
			name: "empty",
			text: "  \n\n  ",
			want: TextFields{},
		},
		{
			name: "single line",
			text: "مج سيراميك",
			want: TextFields{Name: "مج سيراميك"},
		},
		{
			name: "two lines",
			text: "مج سيراميك\nلون أبيض",
			want: TextFields{Name: "مج سيراميك", ShortDescription: "لون أبيض"},
		},
		{
			name: "full post",
			text: "مج سيراميك\nلون أبيض\nخامة ممتازة\nالسعر 150 جنيه",
			want: TextFields{
				Name:             "مج سيراميك",
				ShortDescription: "لون أبيض",
				Description:      "خامة ممتازة\nالسعر 150 جنيه",
			},
		},
		{
			name: "name label stripped",
			text: "اسم المنتج: مج سيراميك\nلون أبيض",
			want: TextFields{Name: ": مج سيراميك", ShortDescription: "لون أبيض"},
		},
		{
			name: "blank lines skipped",
			text: "\nمج سيراميك\n\nلون أبيض\n",
			want: TextFields{Name: "مج سيراميك", ShortDescription: "لون أبيض"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.text))
		})
	}
}
