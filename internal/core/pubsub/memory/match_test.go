package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"changes.users", "changes.users", true},
		{"changes.users", "changes.orders", false},
		{"changes.*", "changes.users", true},
		{"changes.*", "changes.users.x", false},
		{"changes.>", "changes.users", true},
		{"changes.>", "changes.users.x", true},
		{"changes.>", "changes", false},
		{"notify.*.users.>", "notify.billing.users.renewsAt", true},
		{">", "a", true},
		{"", "a", false},
		{"a", "", false},
		{"a.b", "a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject), "%s ~ %s", tt.pattern, tt.subject)
	}
}
