package stream_test

import (
	"errors"
	"testing"

	"ispeak/internal/pipeline"
	"ispeak/internal/services"
	"ispeak/internal/stream"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		status  pipeline.Token
	}{
		{name: "minimal", payload: `{"status":"trimming","message":"Trimming audio"}`, status: pipeline.TokenTrimming},
		{name: "with result", payload: `{"status":"completed","message":"","result":{"acoustic_results":{}}}`, status: pipeline.TokenCompleted},
		{name: "unknown status", payload: `{"status":"paused","message":"x"}`, wantErr: true},
		{name: "missing message", payload: `{"status":"converting"}`, wantErr: true},
		{name: "message not string", payload: `{"status":"converting","message":3}`, wantErr: true},
		{name: "result not object", payload: `{"status":"completed","message":"","result":[1]}`, wantErr: true},
		{name: "result null", payload: `{"status":"completed","message":"","result":null}`, wantErr: true},
		{name: "not json", payload: `status=converting`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := stream.ParseMessage([]byte(tc.payload))
			if tc.wantErr {
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Status != tc.status {
				t.Fatalf("status = %s, want %s", msg.Status, tc.status)
			}
		})
	}
}
