package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustMarshal(t *testing.T) {
	body := MustMarshal(map[string]string{"event": "order.created"})
	assert.JSONEq(t, `{"event":"order.created"}`, string(body))

	assert.Panics(t, func() {
		MustMarshal(make(chan int))
	})
}
