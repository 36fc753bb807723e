package models

import "testing"

func TestCreateRenderRequestValidate(t *testing.T) {
	neg := -1.0
	ok := 50.0
	tiny := 0.01
	huge := 1e6
	tests := []struct {
		name    string
		req     CreateRenderRequest
		wantErr bool
	}{
		{name: "preset", req: CreateRenderRequest{Preset: "leeds"}},
		{name: "bbox", req: CreateRenderRequest{BoundingBox: []float64{-1, 53, 0, 54}, MetersPerPixel: &ok}},
		{name: "empty", req: CreateRenderRequest{}, wantErr: true},
		{name: "both", req: CreateRenderRequest{Preset: "leeds", BoundingBox: []float64{-1, 53, 0, 54}}, wantErr: true},
		{name: "short bbox", req: CreateRenderRequest{BoundingBox: []float64{-1, 53, 0}}, wantErr: true},
		{name: "bad scale", req: CreateRenderRequest{Preset: "leeds", MetersPerPixel: &neg}, wantErr: true},
		{name: "scale too fine", req: CreateRenderRequest{Preset: "leeds", MetersPerPixel: &tiny}, wantErr: true},
		{name: "scale too coarse", req: CreateRenderRequest{Preset: "leeds", MetersPerPixel: &huge}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidRunID(t *testing.T) {
	if !ValidRunID("3f0c2d5e-8a4b-4c1d-9e2f-1a2b3c4d5e6f") {
		t.Error("uuid should be valid")
	}
	if ValidRunID("../etc/passwd") {
		t.Error("path should not be a valid run id")
	}
}
