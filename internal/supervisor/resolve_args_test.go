package supervisor

import (
	"reflect"
	"testing"

	"github.com/activitywatch/aw-tauri/internal/config"
)

func TestResolveArgs(t *testing.T) {
	cases := []struct {
		name string
		args []string
		port int
		want []string
	}{
		{"verbatim custom args win", []string{"daemon"}, 5601, []string{"daemon"}},
		{"default port yields no args", nil, config.DefaultPort, []string{}},
		{"non-default port appends --port", nil, 5601, []string{"--port", "5601"}},
		{"explicit empty slice is verbatim, not re-resolved", []string{}, 5601, []string{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := resolveArgs(c.args, c.port)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("resolveArgs(%v, %d) = %v, want %v", c.args, c.port, got, c.want)
			}
		})
	}
}
