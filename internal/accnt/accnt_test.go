package accnt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUtaddAccumulates(t *testing.T) {
	var a Accnt_t
	a.Utadd(100)
	a.Utadd(50)
	assert.EqualValues(t, 150, a.Userns)
	assert.Zero(t, a.Sysns)
}

func TestSystaddAccumulates(t *testing.T) {
	var a Accnt_t
	a.Systadd(20)
	a.Systadd(5)
	assert.EqualValues(t, 25, a.Sysns)
	assert.Zero(t, a.Userns)
}
