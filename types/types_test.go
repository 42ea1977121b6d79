package types

import (
	"errors"
	"testing"
)

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		wantErr bool
	}{
		{"postgres", Descriptor{Kind: KindPostgres, User: "app", Database: "shop"}, false},
		{"sqlite without user", Descriptor{Kind: KindSQLite, Database: "shop.db"}, false},
		{"missing type", Descriptor{User: "app", Database: "shop"}, true},
		{"missing user", Descriptor{Kind: KindMySQL, Database: "shop"}, true},
		{"unsupported type", Descriptor{Kind: "oracle", User: "app", Database: "shop"}, true},
		{"bad port", Descriptor{Kind: KindMySQL, User: "app", Database: "shop", Port: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			var bad *BadRequestError
			if err != nil && !errors.As(err, &bad) {
				t.Errorf("expected BadRequestError, got %T", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"MariaDB": KindMySQL, "pg": KindPostgres, " sqlite3 ": KindSQLite} {
		if got, err := ParseKind(in); err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("oracle"); err == nil {
		t.Error("expected an error for an unsupported type")
	}
}
