package postgres

import (
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: " postgres://u@h/db ", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "db", Database: "ledger", User: "app", Password: "pw"},
			want: "postgres://app:pw@db:5432/ledger?sslmode=disable&application_name=marketledger",
		},
		{
			name: "timeout and ssl",
			cfg:  ClientConfig{Host: "db", Port: 6432, Database: "ledger", User: "app", SSLMode: "require", ConnectTimeout: 5 * time.Second},
			want: "postgres://app:@db:6432/ledger?sslmode=require&application_name=marketledger&connect_timeout=5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuditListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := auditListQuery("seller-1", domain.ListOpts{Since: &since, Limit: 10})

	want := `SELECT id, seller, event, detail, created_at FROM audit_log WHERE seller = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3`
	if query != want {
		t.Errorf("query = %q\nwant    %q", query, want)
	}
	if len(args) != 3 || args[0] != "seller-1" || args[2] != 10 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Errorf("unexpected migrations %v", names)
	}
}
