package main

import (
	"os"
	"path/filepath"
	"testing"
)

// TestHandlerCompilesValidSource drives Handler the same way main does,
// checking the exit status and that the sibling .obj/.asm artifacts land
// next to the source file.
func TestHandlerCompilesValidSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.n86")
	if err := os.WriteFile(src, []byte("uint8 main() { return 0; }\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	status := Handler([]string{dir}, map[string]string{})
	if status != 0 {
		t.Fatalf("Handler: got status %d, want 0", status)
	}

	if _, err := os.Stat(filepath.Join(dir, "hello.obj")); err != nil {
		t.Fatalf("expected hello.obj to be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hello.asm")); err != nil {
		t.Fatalf("expected hello.asm to be written: %v", err)
	}
}

// TestHandlerKeepGoingContinuesPastFailures covers the --keep-going option:
// without it, the first failing input stops the batch; with it, every
// input is attempted and a failure is still reflected in the exit status.
func TestHandlerKeepGoingContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.n86")
	good := filepath.Join(dir, "good.n86")
	if err := os.WriteFile(bad, []byte("uint8 main( {\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(good, []byte("uint8 main() { return 0; }\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	status := Handler([]string{dir}, map[string]string{"keep-going": "true"})
	if status == 0 {
		t.Fatalf("Handler: got status 0, want a non-zero status reflecting bad.n86's failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "good.obj")); err != nil {
		t.Fatalf("expected good.obj to still be written under --keep-going: %v", err)
	}
}

// TestHandlerNoInputsFails mirrors the teacher CLIs' "use --help" guard.
func TestHandlerNoInputsFails(t *testing.T) {
	if status := Handler(nil, map[string]string{}); status == 0 {
		t.Fatalf("Handler with no inputs: got status 0, want non-zero")
	}
}
