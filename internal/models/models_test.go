package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnergyCostTable(t *testing.T) {
	costs := map[ModelType]int{
		ModelTextFlash:  1,
		ModelTextPro:    2,
		ModelImageFlash: 3,
		ModelImagePro:   6,
		ModelVideoFast:  70,
		ModelVideoHD:    140,
	}
	for model, want := range costs {
		assert.Equal(t, want, EnergyCost(model), "cost for %s", model)
	}
	assert.Equal(t, 0, EnergyCost("made-up-model"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindText, KindOf(ModelTextFlash))
	assert.Equal(t, KindText, KindOf(ModelTextPro))
	assert.Equal(t, KindImage, KindOf(ModelImageFlash))
	assert.Equal(t, KindImage, KindOf(ModelImagePro))
	assert.Equal(t, KindVideo, KindOf(ModelVideoFast))
	assert.Equal(t, KindVideo, KindOf(ModelVideoHD))
	assert.Equal(t, Kind(""), KindOf("made-up-model"))
}
