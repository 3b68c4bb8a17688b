package transport

import (
	"testing"
	"time"
)

func TestParseFingerprint(t *testing.T) {
	tests := []struct {
		in      string
		want    Fingerprint
		wantErr bool
	}{
		{"", FingerprintDefault, false},
		{"default", FingerprintDefault, false},
		{" Chrome ", FingerprintChrome, false},
		{"firefox", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFingerprint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFingerprint(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFingerprint(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if rt := New(FingerprintDefault, time.Second); rt != nil {
		t.Errorf("New(default) = %T, want nil", rt)
	}
	if _, ok := New(FingerprintChrome, time.Second).(*chromeTransport); !ok {
		t.Error("New(chrome) did not return the chrome transport")
	}
}
