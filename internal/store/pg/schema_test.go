package pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaStatusEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		current uint
		dirty   bool
		want    string
	}{
		{"up to date", 1, false, "v1 (up to date)"},
		{"outdated", 0, false, "v0, requires v1 (run: goturn migrate up)"},
		{"ahead", 2, false, "v2 is newer than this binary (requires v1)"},
		{"dirty", 1, true, "v1 dirty (run: goturn migrate force 0)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &SchemaStatus{CurrentVersion: tc.current, RequiredVersion: RequiredSchemaVersion, Dirty: tc.dirty}
			evaluate(s)
			assert.Equal(t, tc.want, s.Describe())
		})
	}
}
