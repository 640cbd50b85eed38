package InputParameters

import (
	"testing"

	"github.com/magiconair/properties/assert"
)

func TestParseMarkerParameters(t *testing.T) {
	var (
		err error
	)
	fileInput := []byte(`
Title: Test Case
ManagerName: markers
InterpKernel: IB_4
SpreadKernel: PIECEWISE_LINEAR
AlphaWork: 1.
BetaWork: 2.
NumRanks: 2
NumMarkers: 64
Steps: 10
RedistributeInterval: 5
XLower: [0, 0, 0]
XUpper: [16, 8, 8]
DomainCells: [16, 8, 8]
Structures:
  fiber: [0, 32]
  shell: [32, 64]
`)
	var input MarkerParameters
	if err = input.Parse(fileInput); err != nil {
		panic(err)
	}
	assert.Equal(t, input.InterpKernel, "IB_4")
	assert.Equal(t, input.SpreadKernel, "PIECEWISE_LINEAR")
	assert.Equal(t, input.Structures["fiber"], [2]int{0, 32})
	assert.Equal(t, input.Structures["shell"], [2]int{32, 64})
	input.Print()
	assert.Equal(t, input.BetaWork, 2.)
}
