package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWidgetInputProxies(t *testing.T) {
	ids := ParseWidgetInput("6533, gate")
	if assert.Len(t, ids, 2) {
		assert.True(t, ids[0].IsNumeric())
		assert.Equal(t, "gate", ids[1].String())
	}
}

func TestNewDashboardProxies(t *testing.T) {
	assert.NotNil(t, NewDashboard(Options{}))
}
