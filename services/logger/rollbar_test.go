package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/identity"
)

func TestRollbarLogger_prepare(t *testing.T) {
	l := NewRollbarLogger(log.New(&bytes.Buffer{}, "", 0), core.NewTestConfig())
	err := errors.New("boom")
	extras := map[string]interface{}{"kind": "storage_blocked"}
	p := identity.Principal{ID: "u1", Email: "ada@college.test"}
	var noPrincipal *identity.Principal

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "message only", want: []interface{}{"msg"}},
		{name: "error and extras", args: []interface{}{err, extras}, want: []interface{}{"msg", err, extras}},
		{name: "principal is not forwarded", args: []interface{}{err, p}, want: []interface{}{"msg", err}},
		{name: "principal pointer", args: []interface{}{&p, err}, want: []interface{}{"msg", err}},
		{name: "nils dropped", args: []interface{}{nil, noPrincipal, err}, want: []interface{}{"msg", err}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.prepare("msg", tt.args))
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())

	l.Info("login: wrong_password", nil, identity.Principal{ID: "u1"})
	assert.Equal(t, "login: wrong_password\n{ID:u1 Email:}\n", buf.String())
}
