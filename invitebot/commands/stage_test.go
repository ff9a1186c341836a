package commands

import (
	"testing"

	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/stretchr/testify/assert"
)

func TestMatchStages(t *testing.T) {
	stages := []*models.Stage{
		{ID: "Newborn Butterflies: Stage 1", Ended: true},
		{ID: "Newborn Butterflies: Stage 2"},
		{ID: "Grown Butterflies: Stage 3"},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty query keeps order", query: "", want: []string{"Newborn Butterflies: Stage 2", "Grown Butterflies: Stage 3"}},
		{name: "case insensitive", query: "GROWN", want: []string{"Grown Butterflies: Stage 3"}},
		{name: "ended stages are hidden", query: "stage 1", want: []string{}},
		{name: "no match", query: "xyz", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchStages(stages, tt.query))
		})
	}
}
