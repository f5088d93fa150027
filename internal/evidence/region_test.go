package evidence

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"posture-monitor/internal/models"
)

func lm(x, y float64) models.Landmark {
	return models.Landmark{X: x, Y: y, Presence: 1}
}

func TestFaceRegion(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		landmarks map[string]models.Landmark
		want      image.Rectangle
	}{
		{
			name:      "ear distance sets half width",
			w:         100,
			h:         100,
			landmarks: map[string]models.Landmark{"0": lm(0.5, 0.5), "7": lm(0.3, 0.5), "8": lm(0.7, 0.5)},
			want:      image.Rect(10, 10, 90, 90),
		},
		{
			name:      "narrow ears floored at ten percent",
			w:         100,
			h:         100,
			landmarks: map[string]models.Landmark{"0": lm(0.5, 0.5), "7": lm(0.49, 0.5), "8": lm(0.51, 0.5)},
			want:      image.Rect(40, 40, 60, 60),
		},
		{
			name:      "one ear missing uses fallback",
			w:         100,
			h:         100,
			landmarks: map[string]models.Landmark{"0": lm(0.5, 0.5), "7": lm(0.3, 0.5)},
			want:      image.Rect(35, 35, 65, 65),
		},
		{
			name:      "no nose centers on image",
			w:         200,
			h:         100,
			landmarks: map[string]models.Landmark{},
			want:      image.Rect(70, 20, 130, 80),
		},
		{
			name:      "clamped to bounds",
			w:         100,
			h:         100,
			landmarks: map[string]models.Landmark{"0": lm(0, 0)},
			want:      image.Rect(0, 0, 15, 15),
		},
		{
			name: "zero size image",
			w:    0,
			h:    0,
			want: image.Rectangle{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FaceRegion(tt.w, tt.h, tt.landmarks)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.In(image.Rect(0, 0, tt.w, tt.h)) || got.Empty())
		})
	}
}
