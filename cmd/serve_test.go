package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "localhost with port", addr: "localhost:8080", wantErr: false},
		{name: "loopback with port", addr: "127.0.0.1:8080", wantErr: false},
		{name: "port only", addr: ":8080", wantErr: false},
		{name: "auto-assign port", addr: ":0", wantErr: false},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "non-numeric port", addr: ":abc", wantErr: true},
		{name: "port out of range", addr: ":70000", wantErr: true},
		{name: "bad host", addr: "not a host:8080", wantErr: true},
		{name: "empty", addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
