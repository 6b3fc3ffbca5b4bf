package filehandler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImage(t *testing.T) {
	tests := []struct {
		ext      string
		expected bool
	}{
		{".jpg", true},
		{".jpeg", true},
		{".JPG", true},
		{".png", true},
		{".PNG", true},
		{".gif", true},
		{".webp", true},
		{".bmp", true},
		{".tiff", true},
		{".heic", false},
		{".mp4", false},
		{".txt", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			result := IsImage(tt.ext)
			if result != tt.expected {
				t.Errorf("IsImage(%q) = %v, want %v", tt.ext, result, tt.expected)
			}
		})
	}
}

func TestGetMIMEType(t *testing.T) {
	mime, err := GetMIMEType(".JPEG")
	if err != nil || mime != "image/jpeg" {
		t.Errorf("GetMIMEType(.JPEG) = %q, %v", mime, err)
	}
	if _, err := GetMIMEType(".mov"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestLoadImageFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, []byte("pngbytes"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadImageFile(path)
	if err != nil {
		t.Fatalf("LoadImageFile: %v", err)
	}
	if f.Name != "photo.png" || f.MIMEType != "image/png" || f.Size != 8 || string(f.Data) != "pngbytes" {
		t.Errorf("unexpected file: %+v", f)
	}

	if _, err := LoadImageFile(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadImageFile(dir); err == nil {
		t.Error("expected error for directory")
	}
}

func TestCoordinatesToDMS(t *testing.T) {
	got := CoordinatesToDMS(40.5, -74.25)
	want := "40°30'0.00\"N, 74°15'0.00\"W"
	if got != want {
		t.Errorf("CoordinatesToDMS = %q, want %q", got, want)
	}
}
