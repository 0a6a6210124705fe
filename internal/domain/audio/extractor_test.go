package audio

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	platformerrors "github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
)

func TestExtractor_Extract(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace error: %v", err)
	}
	defer ws.Close()

	extractor := NewExtractor(logging.Discard(), 0.5)
	extractor.runner = &fakeRunner{
		run: func(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
			switch name {
			case "ffmpeg":
				out := args[len(args)-1]
				if err := os.WriteFile(out, []byte("fake wav payload"), 0o644); err != nil {
					return nil, nil, err
				}
				return nil, nil, nil
			case "ffprobe":
				return []byte("300.0\n"), nil, nil
			}
			return nil, nil, errors.New("unexpected command")
		},
	}

	desc := SegmentDescriptor{Index: 0, StartSeconds: 0, EndSeconds: 300}
	artifact, err := extractor.Extract(context.Background(), &Asset{Data: []byte("mp3"), ContentType: "audio/mpeg"}, desc, ws)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if artifact.Descriptor != desc {
		t.Errorf("artifact descriptor mismatch: %+v", artifact.Descriptor)
	}
	if artifact.SizeBytes == 0 {
		t.Error("artifact size not recorded")
	}
	if !strings.HasPrefix(artifact.Path, ws.Dir()) {
		t.Errorf("artifact %s escaped workspace %s", artifact.Path, ws.Dir())
	}
}

func TestExtractor_FailureCarriesDiagnostics(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace error: %v", err)
	}
	defer ws.Close()

	extractor := NewExtractor(logging.Discard(), 0.5)
	extractor.runner = &fakeRunner{
		run: func(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
			return nil, []byte("Invalid data found when processing input"), errors.New("exit status 1")
		},
	}

	desc := SegmentDescriptor{Index: 2, StartSeconds: 600, EndSeconds: 900}
	_, err = extractor.Extract(context.Background(), &Asset{Data: []byte("zz"), ContentType: "audio/mpeg"}, desc, ws)
	if err == nil {
		t.Fatal("expected extraction failure")
	}
	if !platformerrors.IsKind(err, platformerrors.KindExtraction) {
		t.Errorf("expected extraction kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("diagnostic text missing from error: %v", err)
	}
}

func TestWorkspace_CloseRemovesArtifacts(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	if err != nil {
		t.Fatalf("NewWorkspace error: %v", err)
	}

	path := ws.Path("chunk_000.wav")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Error("workspace directory should be removed on close")
	}
	// Second close is a no-op.
	if err := ws.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestWorkspace_Isolation(t *testing.T) {
	root := t.TempDir()
	a, err := NewWorkspace(root)
	if err != nil {
		t.Fatalf("NewWorkspace error: %v", err)
	}
	defer a.Close()
	b, err := NewWorkspace(root)
	if err != nil {
		t.Fatalf("NewWorkspace error: %v", err)
	}
	defer b.Close()

	if a.Dir() == b.Dir() {
		t.Error("two jobs must never share a workspace directory")
	}
}
