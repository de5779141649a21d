package worker

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-platform/internal/model"
	"github.com/aliskhannn/image-platform/internal/pipeline"
	"github.com/aliskhannn/image-platform/internal/rpc"
)

var jpegMagic = []byte{0xFF, 0xD8}

func newTestService() *Service {
	return NewService(pipeline.New(""), NewMemoryResults())
}

// writeSource writes a small PNG into dir and returns its path.
func writeSource(t *testing.T, dir string) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 400, 200))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("failed to encode source image: %v", err)
	}

	path := filepath.Join(dir, "source.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write source image: %v", err)
	}
	return path
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}

func TestProcessCompletesWithFileURIs(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir)
	destination := filepath.Join(dir, "out", "result.png")

	s := newTestService()
	id := uuid.New()

	res := s.Process(context.Background(), rpc.ProcessRequest{
		JobID:          id,
		SourceURI:      fileURI(source),
		DestinationURI: fileURI(destination),
		Operations:     []model.Operation{{Type: model.OperationGrayscale}},
	})

	if res.Status != rpc.ResultCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.ErrorMessage)
	}
	if res.OutputURI != destination {
		t.Fatalf("expected output %s, got %s", destination, res.OutputURI)
	}
	if _, err := os.Stat(destination); err != nil {
		t.Fatalf("expected output file: %v", err)
	}

	// The result store must remember the terminal state.
	if got := s.Status(id); got.Status != rpc.ResultCompleted {
		t.Fatalf("expected stored completed result, got %s", got.Status)
	}
}

func TestProcessAcceptsBarePaths(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir)
	destination := filepath.Join(dir, "result.png")

	s := newTestService()
	res := s.Process(context.Background(), rpc.ProcessRequest{
		JobID:          uuid.New(),
		SourceURI:      source,
		DestinationURI: destination,
		Operations:     []model.Operation{{Type: model.OperationGrayscale}},
	})

	if res.Status != rpc.ResultCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.ErrorMessage)
	}
}

func TestProcessEmptyOperationsUsesDefaultPipeline(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir)
	destination := filepath.Join(dir, "result.jpg")

	s := newTestService()
	res := s.Process(context.Background(), rpc.ProcessRequest{
		JobID:          uuid.New(),
		SourceURI:      source,
		DestinationURI: destination,
	})

	if res.Status != rpc.ResultCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.ErrorMessage)
	}

	// The default pipeline ends with a compress step, so the output is JPEG.
	out, err := os.ReadFile(destination)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, jpegMagic) {
		t.Fatal("expected jpeg output from the default pipeline")
	}
}

func TestProcessMissingSourceFails(t *testing.T) {
	dir := t.TempDir()

	s := newTestService()
	res := s.Process(context.Background(), rpc.ProcessRequest{
		JobID:          uuid.New(),
		SourceURI:      filepath.Join(dir, "nope.png"),
		DestinationURI: filepath.Join(dir, "out.png"),
	})

	if res.Status != rpc.ResultFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if !strings.Contains(res.ErrorMessage, "source image not found") {
		t.Fatalf("unexpected error message %q", res.ErrorMessage)
	}
}

func TestProcessRejectsUnsupportedScheme(t *testing.T) {
	dir := t.TempDir()

	s := newTestService()
	res := s.Process(context.Background(), rpc.ProcessRequest{
		JobID:          uuid.New(),
		SourceURI:      "https://example.com/image.png",
		DestinationURI: filepath.Join(dir, "out.png"),
	})

	if res.Status != rpc.ResultFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if !strings.Contains(res.ErrorMessage, `unsupported uri scheme "https"`) {
		t.Fatalf("unexpected error message %q", res.ErrorMessage)
	}
}

func TestProcessMissingLocatorsFail(t *testing.T) {
	s := newTestService()

	res := s.Process(context.Background(), rpc.ProcessRequest{JobID: uuid.New()})
	if res.Status != rpc.ResultFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if !strings.Contains(res.ErrorMessage, "source uri is required") {
		t.Fatalf("unexpected error message %q", res.ErrorMessage)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	s := newTestService()
	id := uuid.New()

	res := s.Status(id)
	if res.Status != rpc.ResultUnknown {
		t.Fatalf("expected unknown, got %s", res.Status)
	}
	if res.JobID != id {
		t.Fatalf("expected echoed job id, got %s", res.JobID)
	}
}
