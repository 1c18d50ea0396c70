package logfields

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	assert.Equal(t, KeyUnit, Unit("src/main.cpp").Key)
	assert.Equal(t, "src/main.cpp", Unit("src/main.cpp").Value.String())
	assert.Equal(t, KeyObject, Object("build/obj/debug/main.o").Key)
	assert.Equal(t, "compile", Stage("compile").Value.String())
	assert.Equal(t, int64(3), Count(3).Value.Int64())
	assert.InDelta(t, 1.5, Duration(1500*time.Microsecond).Value.Float64(), 0.0001)
}

func TestError(t *testing.T) {
	assert.Equal(t, "", Error(nil).Value.String())
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}
