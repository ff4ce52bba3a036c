package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy text", errors.New("exec: SQLITE_BUSY"), true},
		{"locked text", fmt.Errorf("insert message: %w", errors.New("database is locked (5)")), true},
		{"other", errors.New("constraint failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSQLiteConflictError(tt.err); got != tt.want {
				t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
