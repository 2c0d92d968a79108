package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "postgres", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "valid json config",
			config:  Config{Backend: BackendJSON, DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: BackendSQLite, DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "negative quota returns ErrQuotaNegative",
			config:  Config{Backend: BackendJSON, DataDir: "/tmp/data", QuotaBytes: -1},
			wantErr: ErrQuotaNegative,
		},
		{
			name:    "memory with empty DataDir is valid",
			config:  Config{Backend: BackendMemory, DataDir: ""},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigPersistent(t *testing.T) {
	if !(Config{Backend: BackendJSON}).Persistent() {
		t.Error("json backend should be persistent")
	}
	if !(Config{Backend: BackendSQLite}).Persistent() {
		t.Error("sqlite backend should be persistent")
	}
	if (Config{Backend: BackendMemory}).Persistent() {
		t.Error("memory backend should not be persistent")
	}
}
