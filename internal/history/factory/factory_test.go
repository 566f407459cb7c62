package factory

import (
	"path/filepath"
	"testing"
)

func TestNewSinkFromDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantErr bool
	}{
		{"empty", "", true},
		{"unsupported scheme", "kafka://broker:9092/topic", true},
		{"sqlite memory", "sqlite://:memory:", false},
		{"bare memory", ":memory:", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(tt.dsn)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewSinkFromDSN(%q): expected error", tt.dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSinkFromDSN(%q): %v", tt.dsn, err)
			}
			_ = sink.Close()
		})
	}
}

func TestNewSinkFromDSNBarePathIsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("bare path DSN: %v", err)
	}
	_ = sink.Close()
}

func TestParseOpenSearchDSNDefaults(t *testing.T) {
	sink, err := parseOpenSearchDSN("opensearch://localhost:9200")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer func() { _ = sink.Close() }()
	// No connection is made at construction, so a sink must come back
	// even when nothing listens on the host. The default index applies.
	if sink == nil {
		t.Fatal("nil sink")
	}
}

func TestParseOpenSearchDSNElasticsearchAlias(t *testing.T) {
	sink, err := parseOpenSearchDSN("elasticsearch://localhost:9200/shells")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_ = sink.Close()
}
